// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/shrtyhq/shrty/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ShortURLRepository defines operations for short URL versions
type ShortURLRepository interface {
	Repository[models.ShortURL, models.ShortURLFilter]

	// PrimaryByCode returns the primary record for a code, most recently
	// created first as a tie-break. Returns nil when no primary exists.
	PrimaryByCode(ctx context.Context, code string) (*models.ShortURL, error)

	// DemoteAll clears the primary flag on every record for a code and
	// returns the number of rows updated.
	DemoteAll(ctx context.Context, code string) (int64, error)

	// ReconcileHitCount applies cachedCount to the row only when it exceeds
	// the stored count. Reports whether the row was updated.
	ReconcileHitCount(ctx context.Context, id uint, cachedCount int64) (bool, error)

	// IterateAll walks every short URL row ordered by short code ascending
	// and creation time descending, in batches, invoking fn per row.
	IterateAll(ctx context.Context, batchSize int, fn func(*models.ShortURL) error) error

	// CountDistinctCodes returns the number of distinct primary codes.
	CountDistinctCodes(ctx context.Context) (int64, error)
}

// SessionRepository defines operations for durable session records
type SessionRepository interface {
	Repository[models.Session, models.SessionFilter]

	ByKey(ctx context.Context, key string) (*models.Session, error)

	// OpenSessionForUser returns the most recent non-expired session for a
	// user whose deadline is still in the future, or nil.
	OpenSessionForUser(ctx context.Context, userID uint) (*models.Session, error)

	// ListExpiryCandidates returns non-retired sessions whose durable
	// deadline is in the past.
	ListExpiryCandidates(ctx context.Context, now time.Time) ([]*models.Session, error)

	// UpdateExpiresAt overwrites the durable deadline for a session.
	UpdateExpiresAt(ctx context.Context, id uint, expiresAt time.Time) error

	// MarkExpired permanently retires a session.
	MarkExpired(ctx context.Context, id uint) error
}

// UserRepository defines operations for users
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByEmail(ctx context.Context, email string) (*models.User, error)
}
