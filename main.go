// Package main provides the main entry point for the Shrty link service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shrtyhq/shrty/app/handlers"
	"github.com/shrtyhq/shrty/app/router"
	"github.com/shrtyhq/shrty/app/scheduler"
	"github.com/shrtyhq/shrty/app/services"
	businessflow "github.com/shrtyhq/shrty/business_flow"
	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/repository"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.Config
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Shrty...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeLogging builds the application logger from the logging config
func initializeLogging(cfg config.LoggingConfig) (*log.Logger, error) {
	var writer io.Writer

	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "file", "both":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		if cfg.Output == "both" {
			writer = io.MultiWriter(os.Stdout, fileWriter)
		} else {
			writer = fileWriter
		}
	default:
		writer = os.Stdout
	}

	return log.New(writer, "", log.LstdFlags|log.LUTC), nil
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established to %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	return db, nil
}

// initializeCache builds the configured cache backend. The memory provider
// needs no external service and is the fallback when redis is unreachable.
func initializeCache(cfg *config.Config, appLogger *log.Logger) (cache.CacheManager, *redis.Client, error) {
	if cfg.Cache.Provider != "redis" {
		return cache.NewMemoryCacheManager(cfg.Security.SessionTTL), nil, nil
	}

	opt, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.Cache.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Cache.PingTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.Cache.RedisDB)
	return cache.NewRedisCacheManager(rc, cfg.Cache.RedisPrefix, cfg.Security.SessionTTL, appLogger), rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires repositories, flows, handlers and schedulers
func initializeApplication(cfg *config.Config) (*Application, error) {
	var stopFuncs []func()

	appLogger, err := initializeLogging(cfg.Logging)
	if err != nil {
		return nil, err
	}

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	cacheManager, redisClient, err := initializeCache(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	stopFuncs = append(stopFuncs, rootCancel)

	if redisClient != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(rootCtx, redisClient, 30*time.Second))
	}

	// Repositories
	shortURLRepo := repository.NewShortURLRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Domain services
	allocator, err := services.NewShortCodeAllocator(cfg.Security, shortURLRepo)
	if err != nil {
		return nil, err
	}

	// Flows
	linkFlow := businessflow.NewLinkFlow(shortURLRepo, allocator, cacheManager, db, appLogger)
	authFlow := businessflow.NewAuthFlow(userRepo, sessionRepo, cacheManager, db, cfg.Security, appLogger)

	// Handlers
	linkHandler := handlers.NewLinkHandler(linkFlow)
	authHandler := handlers.NewAuthHandler(authFlow, cfg.Security)

	// Schedulers
	if cfg.Scheduler.HitCountEnabled {
		hitScheduler := scheduler.NewHitCountScheduler(
			shortURLRepo, cacheManager, cfg.Scheduler.HitCountInterval, cfg.Scheduler.ReconcileBatchSize, appLogger)
		stopFuncs = append(stopFuncs, hitScheduler.Start(rootCtx))
	}
	if cfg.Scheduler.SessionExpiryEnabled {
		expiryScheduler := scheduler.NewSessionExpiryScheduler(
			sessionRepo, cacheManager, cfg.Scheduler.SessionExpiryInterval, appLogger)
		stopFuncs = append(stopFuncs, expiryScheduler.Start(rootCtx))
	}

	fiberRouter := router.NewFiberRouter(cfg, linkHandler, authHandler, authFlow, appLogger)

	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
