package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shrtyhq/shrty/models"
	"gorm.io/gorm"
)

// ShortURLRepositoryImpl implements ShortURLRepository
type ShortURLRepositoryImpl struct {
	*BaseRepository[models.ShortURL, models.ShortURLFilter]
}

// NewShortURLRepository creates a new short URL repository
func NewShortURLRepository(db *gorm.DB) ShortURLRepository {
	return &ShortURLRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ShortURL, models.ShortURLFilter](db),
	}
}

func (r *ShortURLRepositoryImpl) applyFilter(db *gorm.DB, f models.ShortURLFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ShortCode != nil {
		db = db.Where("short_code = ?", *f.ShortCode)
	}
	if f.IsPrimary != nil {
		db = db.Where("is_primary = ?", *f.IsPrimary)
	}
	if f.CreatedByID != nil {
		db = db.Where("created_by_id = ?", *f.CreatedByID)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	if f.Search != nil && *f.Search != "" {
		pattern := fmt.Sprintf("%%%s%%", *f.Search)
		db = db.Where("title ILIKE ? OR short_code ILIKE ? OR url ILIKE ?", pattern, pattern, pattern)
	}
	return db
}

// ByFilter retrieves short URLs based on filter criteria
func (r *ShortURLRepositoryImpl) ByFilter(ctx context.Context, filter models.ShortURLFilter, orderBy string, limit, offset int) ([]*models.ShortURL, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ShortURL{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ShortURL
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find short URLs by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of short URLs matching the filter
func (r *ShortURLRepositoryImpl) Count(ctx context.Context, filter models.ShortURLFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ShortURL{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count short URLs: %w", err)
	}
	return count, nil
}

// Exists checks if any short URL matching the filter exists
func (r *ShortURLRepositoryImpl) Exists(ctx context.Context, filter models.ShortURLFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PrimaryByCode returns the primary record for a code. Creation time
// descending breaks ties if more than one primary ever exists.
func (r *ShortURLRepositoryImpl) PrimaryByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	db := r.getDB(ctx)

	var row models.ShortURL
	err := db.Where("short_code = ? AND is_primary = ?", code, true).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find primary short URL for code %s: %w", code, err)
	}

	return &row, nil
}

// DemoteAll clears the primary flag on every record for a code
func (r *ShortURLRepositoryImpl) DemoteAll(ctx context.Context, code string) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	result := db.Model(&models.ShortURL{}).
		Where("short_code = ?", code).
		Update("is_primary", false)
	if result.Error != nil {
		err = fmt.Errorf("failed to demote short URLs for code %s: %w", code, result.Error)
		return 0, err
	}

	return result.RowsAffected, nil
}

// ReconcileHitCount applies the cached count only when it exceeds the stored
// count, so a stale cache read can never regress a persisted counter.
func (r *ShortURLRepositoryImpl) ReconcileHitCount(ctx context.Context, id uint, cachedCount int64) (bool, error) {
	db := r.getDB(ctx)

	result := db.Model(&models.ShortURL{}).
		Where("id = ? AND hit_count < ?", id, cachedCount).
		Update("hit_count", cachedCount)
	if result.Error != nil {
		return false, fmt.Errorf("failed to reconcile hit count for short URL %d: %w", id, result.Error)
	}

	return result.RowsAffected > 0, nil
}

// IterateAll walks every short URL row in reconciliation order: codes
// ascending, newest version first within a code. Batches advance by
// keyset on (short_code, created_at, id) so the custom order holds
// across batch boundaries and no row is skipped.
func (r *ShortURLRepositoryImpl) IterateAll(ctx context.Context, batchSize int, fn func(*models.ShortURL) error) error {
	db := r.getDB(ctx)
	if batchSize <= 0 {
		batchSize = 500
	}

	var (
		lastCode    string
		lastCreated time.Time
		lastID      uint
		first       = true
	)

	for {
		query := db.Model(&models.ShortURL{}).
			Order("short_code ASC, created_at DESC, id DESC").
			Limit(batchSize)
		if !first {
			query = query.Where(
				"short_code > ? OR (short_code = ? AND (created_at < ? OR (created_at = ? AND id < ?)))",
				lastCode, lastCode, lastCreated, lastCreated, lastID)
		}

		var rows []*models.ShortURL
		if err := query.Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to iterate short URLs: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		for _, row := range rows {
			if err := fn(row); err != nil {
				return err
			}
		}

		last := rows[len(rows)-1]
		lastCode, lastCreated, lastID = last.ShortCode, last.CreatedAt, last.ID
		first = false

		if len(rows) < batchSize {
			return nil
		}
	}
}

// CountDistinctCodes returns the number of distinct primary codes
func (r *ShortURLRepositoryImpl) CountDistinctCodes(ctx context.Context) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.ShortURL{}).
		Where("is_primary = ?", true).
		Distinct("short_code").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct short codes: %w", err)
	}

	return count, nil
}
