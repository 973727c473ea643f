package business_flow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/repository"
	"github.com/shrtyhq/shrty/utils"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// maxKeyAttempts bounds the session key collision retry loop.
const maxKeyAttempts = 16

// AuthFlow handles login, session lookup and logout
type AuthFlow interface {
	Login(ctx context.Context, email, password string) (*models.Session, error)
	GetSession(ctx context.Context, key string) (*models.Session, error)
	Logout(ctx context.Context, key string) error
}

type authFlow struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	cache    cache.CacheManager
	db       *gorm.DB
	ttl      time.Duration
	logger   *log.Logger
}

// NewAuthFlow creates an auth flow with its dependencies
func NewAuthFlow(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	cacheManager cache.CacheManager,
	db *gorm.DB,
	cfg config.SecurityConfig,
	logger *log.Logger,
) AuthFlow {
	return &authFlow{
		users:    users,
		sessions: sessions,
		cache:    cacheManager,
		db:       db,
		ttl:      cfg.SessionTTL,
		logger:   logger,
	}
}

// Login verifies credentials and returns a live session. An open session
// for the user is reused and its expiry extended rather than opening a
// second one.
func (f *authFlow) Login(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, NewBusinessError(ErrCodeValidationFailed, "Email and password are required", ErrInvalidInput)
	}

	user, err := f.users.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError(ErrCodeDatabaseError, "Failed to look up user", err)
	}
	if user == nil {
		return nil, NewBusinessError(ErrCodeUserNotFound, "User does not exist", ErrUserDoesNotExist)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		f.logger.Printf("failed login for user %d request_id=%s", user.ID, RequestID(ctx))
		return nil, NewBusinessError(ErrCodeInvalidPassword, "Invalid password", ErrInvalidPassword)
	}

	now := utils.UTCNow()

	// Coalesce onto the most recent open session when one exists.
	session, err := f.sessions.OpenSessionForUser(ctx, user.ID)
	if err != nil {
		return nil, NewBusinessError(ErrCodeDatabaseError, "Failed to look up sessions", err)
	}

	if session == nil {
		key, err := f.newSessionKey(ctx)
		if err != nil {
			return nil, NewBusinessError(ErrCodeInternalError, "Failed to create session", err)
		}
		session = &models.Session{
			Key:       key,
			UserID:    user.ID,
			StartedAt: now,
			Expired:   utils.ToPtr(false),
		}
	}

	session.Touch(f.ttl)
	session.User = *user

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		return f.sessions.Save(txCtx, session)
	})
	if err != nil {
		return nil, NewBusinessError(ErrCodeDatabaseError, "Failed to persist session", err)
	}

	if err := f.cache.StoreSession(ctx, session); err != nil {
		f.logger.Printf("session cache store failed: %v", err)
	}

	return session, nil
}

// GetSession resolves a session key to a live session and slides its
// expiry forward. The cached copy absorbs the touch; the expiry sweep
// carries it to the database later.
func (f *authFlow) GetSession(ctx context.Context, key string) (*models.Session, error) {
	if key == "" {
		return nil, NewBusinessError(ErrCodeSessionNotFound, "Session not found or expired", ErrSessionNotFound)
	}

	cached, err := f.cache.FindSession(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrNotCached) {
		f.logger.Printf("session cache lookup failed: %v", err)
	}
	if cached != nil && !cached.IsExpired() {
		// The cached payload carries only the user id, not the full record.
		if cached.User.ID == 0 {
			cached.User = models.User{ID: cached.UserID}
		}
		cached.Touch(f.ttl)
		if err := f.cache.StoreSession(ctx, cached); err != nil {
			f.logger.Printf("session cache store failed: %v", err)
		}
		return cached, nil
	}

	session, err := f.sessions.ByKey(ctx, key)
	if err != nil {
		return nil, NewBusinessError(ErrCodeDatabaseError, "Failed to look up session", err)
	}
	if session == nil || session.IsExpired() {
		return nil, NewBusinessError(ErrCodeSessionNotFound, "Session not found or expired", ErrSessionNotFound)
	}

	session.Touch(f.ttl)
	if err := f.cache.StoreSession(ctx, session); err != nil {
		f.logger.Printf("session cache store failed: %v", err)
	}

	return session, nil
}

// Logout retires the session on both sides
func (f *authFlow) Logout(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	session, err := f.sessions.ByKey(ctx, key)
	if err != nil {
		return NewBusinessError(ErrCodeDatabaseError, "Failed to look up session", err)
	}
	if session != nil {
		if err := f.sessions.MarkExpired(ctx, session.ID); err != nil {
			return NewBusinessError(ErrCodeDatabaseError, "Failed to expire session", err)
		}
	}

	if err := f.cache.RemoveSession(ctx, key); err != nil {
		f.logger.Printf("session cache remove failed: %v", err)
	}

	return nil
}

// newSessionKey draws keys until one with no existing session comes up.
// Keys are opaque digests of a timestamp and a random draw.
func (f *authFlow) newSessionKey(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		nonce, err := rand.Int(rand.Reader, big.NewInt(1<<62))
		if err != nil {
			return "", fmt.Errorf("failed to draw session key nonce: %w", err)
		}

		key := utils.Base64HashOf(fmt.Sprintf("%s-%d", utils.UTCNow().Format(time.RFC3339Nano), nonce.Int64()))

		existing, err := f.sessions.ByKey(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to check session key availability: %w", err)
		}
		if existing == nil {
			return key, nil
		}
	}

	return "", fmt.Errorf("failed to allocate a free session key after %d attempts", maxKeyAttempts)
}
