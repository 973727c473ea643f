// Package scheduler contains the background reconciliation loops
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitReconcilePasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrty_hit_reconcile_passes_total",
		Help: "Completed hit count reconciliation passes",
	})
	hitReconcileSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrty_hit_reconcile_skipped_total",
		Help: "Scheduler ticks skipped because the previous pass is still catching up",
	})
	hitReconcileUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrty_hit_reconcile_updates_total",
		Help: "Durable hit counts advanced from the cache",
	})
	primaryCodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shrty_primary_codes",
		Help: "Distinct short codes with a live primary version",
	})
)

// HitCountScheduler periodically folds cached hit counts back into the
// database.
type HitCountScheduler struct {
	shortURLs repository.ShortURLRepository
	cache     cache.CacheManager
	interval  time.Duration
	batchSize int
	logger    *log.Logger

	mu            sync.Mutex
	lastCompleted time.Time
}

// NewHitCountScheduler creates a hit count reconciliation scheduler
func NewHitCountScheduler(
	shortURLs repository.ShortURLRepository,
	cacheManager cache.CacheManager,
	interval time.Duration,
	batchSize int,
	logger *log.Logger,
) *HitCountScheduler {
	return &HitCountScheduler{
		shortURLs: shortURLs,
		cache:     cacheManager,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start launches the reconciliation loop and returns a stop function
func (s *HitCountScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Printf("hit count scheduler started, interval %s", s.interval)

		for {
			select {
			case <-ctx.Done():
				s.logger.Printf("hit count scheduler stopped")
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Printf("hit count pass failed: %v", err)
				}
			}
		}
	}()

	return cancel
}

// RunOnce performs a single reconciliation pass. A tick that arrives
// before a full interval has elapsed since the previous pass completed
// is skipped, so a slow pass does not pile work behind itself.
func (s *HitCountScheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if !s.lastCompleted.IsZero() && time.Since(s.lastCompleted) < s.interval {
		s.mu.Unlock()
		hitReconcileSkips.Inc()
		return nil
	}
	s.mu.Unlock()

	start := time.Now()
	seen := make(map[string]struct{})
	var updated int

	err := s.shortURLs.IterateAll(ctx, s.batchSize, func(link *models.ShortURL) error {
		if _, ok := seen[link.ShortCode]; ok {
			return nil
		}
		seen[link.ShortCode] = struct{}{}

		cached, err := s.cache.FindURL(ctx, link.ShortCode)
		if err != nil {
			if errors.Is(err, cache.ErrNotCached) {
				return nil
			}
			s.logger.Printf("cache lookup failed for code %q: %v", link.ShortCode, err)
			return nil
		}

		if cached.HitCount <= link.HitCount {
			return nil
		}

		changed, err := s.shortURLs.ReconcileHitCount(ctx, link.ID, cached.HitCount)
		if err != nil {
			s.logger.Printf("hit reconcile failed for code %q: %v", link.ShortCode, err)
			return nil
		}
		if changed {
			updated++
			hitReconcileUpdates.Inc()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if codes, err := s.shortURLs.CountDistinctCodes(ctx); err == nil {
		primaryCodes.Set(float64(codes))
	}

	s.mu.Lock()
	s.lastCompleted = time.Now()
	s.mu.Unlock()

	hitReconcilePasses.Inc()
	if updated > 0 {
		s.logger.Printf("hit count pass reconciled %d code(s) in %s", updated, time.Since(start))
	}
	return nil
}
