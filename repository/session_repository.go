package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shrtyhq/shrty/models"
	"gorm.io/gorm"
)

// SessionRepositoryImpl implements SessionRepository
type SessionRepositoryImpl struct {
	*BaseRepository[models.Session, models.SessionFilter]
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &SessionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Session, models.SessionFilter](db),
	}
}

func (r *SessionRepositoryImpl) applyFilter(db *gorm.DB, f models.SessionFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Key != nil {
		db = db.Where("session_key = ?", *f.Key)
	}
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	if f.Expired != nil {
		db = db.Where("expired = ?", *f.Expired)
	}
	if f.ExpiresAfter != nil {
		db = db.Where("expires_at > ?", *f.ExpiresAfter)
	}
	if f.ExpiresBefore != nil {
		db = db.Where("expires_at < ?", *f.ExpiresBefore)
	}
	return db
}

// ByFilter retrieves sessions based on filter criteria
func (r *SessionRepositoryImpl) ByFilter(ctx context.Context, filter models.SessionFilter, orderBy string, limit, offset int) ([]*models.Session, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Session{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Session
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find sessions by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of sessions matching the filter
func (r *SessionRepositoryImpl) Count(ctx context.Context, filter models.SessionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Session{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Exists checks if any session matching the filter exists
func (r *SessionRepositoryImpl) Exists(ctx context.Context, filter models.SessionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ByKey retrieves a non-retired session by its key
func (r *SessionRepositoryImpl) ByKey(ctx context.Context, key string) (*models.Session, error) {
	db := r.getDB(ctx)

	var session models.Session
	err := db.Where("session_key = ? AND expired = ?", key, false).
		Preload("User").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session by key: %w", err)
	}

	return &session, nil
}

// OpenSessionForUser returns the most recent live session for a user, or nil
func (r *SessionRepositoryImpl) OpenSessionForUser(ctx context.Context, userID uint) (*models.Session, error) {
	db := r.getDB(ctx)

	var session models.Session
	err := db.Where("user_id = ? AND expired = ? AND expires_at > ?", userID, false, time.Now().UTC()).
		Order("expires_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find open session for user %d: %w", userID, err)
	}

	return &session, nil
}

// ListExpiryCandidates returns non-retired sessions whose deadline has passed
func (r *SessionRepositoryImpl) ListExpiryCandidates(ctx context.Context, now time.Time) ([]*models.Session, error) {
	db := r.getDB(ctx)

	var rows []*models.Session
	err := db.Where("expired = ? AND expires_at < ?", false, now).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expiry candidates: %w", err)
	}

	return rows, nil
}

// UpdateExpiresAt overwrites the durable deadline for a session
func (r *SessionRepositoryImpl) UpdateExpiresAt(ctx context.Context, id uint, expiresAt time.Time) error {
	db := r.getDB(ctx)

	err := db.Model(&models.Session{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt).Error
	if err != nil {
		return fmt.Errorf("failed to update session %d expiry: %w", id, err)
	}

	return nil
}

// MarkExpired permanently retires a session
func (r *SessionRepositoryImpl) MarkExpired(ctx context.Context, id uint) error {
	db := r.getDB(ctx)

	err := db.Model(&models.Session{}).
		Where("id = ?", id).
		Update("expired", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark session %d expired: %w", id, err)
	}

	return nil
}
