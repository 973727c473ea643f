package business_flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shrtyhq/shrty/app/services"
	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/repository"
	"github.com/shrtyhq/shrty/utils"

	"gorm.io/gorm"
)

// LinkFlow handles short link creation, resolution and retirement
type LinkFlow interface {
	CreateLink(ctx context.Context, user *models.User, title, targetURL, customCode string) (*models.ShortURL, error)
	ResolveLink(ctx context.Context, code string) (string, error)
	ListLinks(ctx context.Context, user *models.User, search, sortBy, sortDir string, page, pageSize int) ([]*models.ShortURL, int64, error)
	RetireLink(ctx context.Context, user *models.User, code string) (int64, error)
}

type linkFlow struct {
	shortURLs repository.ShortURLRepository
	allocator services.ShortCodeAllocator
	cache     cache.CacheManager
	db        *gorm.DB
	logger    *log.Logger
}

// NewLinkFlow creates a link flow with its dependencies
func NewLinkFlow(
	shortURLs repository.ShortURLRepository,
	allocator services.ShortCodeAllocator,
	cacheManager cache.CacheManager,
	db *gorm.DB,
	logger *log.Logger,
) LinkFlow {
	return &linkFlow{
		shortURLs: shortURLs,
		allocator: allocator,
		cache:     cacheManager,
		db:        db,
		logger:    logger,
	}
}

// CreateLink creates a new primary short link. When customCode is set the
// caller claims that code and any previous primary for it is demoted,
// which is how a code changes hands between users.
func (f *linkFlow) CreateLink(ctx context.Context, user *models.User, title, targetURL, customCode string) (*models.ShortURL, error) {
	if user == nil {
		return nil, NewBusinessError(ErrCodeSessionNotFound, "Authentication required", ErrSessionNotFound)
	}

	targetURL = strings.TrimSpace(targetURL)
	if targetURL == "" {
		return nil, NewBusinessError(ErrCodeValidationFailed, "Target URL is required", ErrInvalidInput)
	}

	code := strings.TrimSpace(customCode)
	if code == "" {
		allocated, err := f.allocator.Allocate(ctx)
		if err != nil {
			f.logger.Printf("short code allocation failed: %v", err)
			return nil, NewBusinessError(ErrCodeInternalError, "Could not allocate a short code", ErrCodeExhausted)
		}
		code = allocated
	}

	link := &models.ShortURL{
		ShortCode:   code,
		Title:       strings.TrimSpace(title),
		URL:         targetURL,
		HitCount:    0,
		IsPrimary:   utils.ToPtr(true),
		CreatedAt:   utils.UTCNow(),
		CreatedByID: user.ID,
	}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		demoted, err := f.shortURLs.DemoteAll(txCtx, code)
		if err != nil {
			return fmt.Errorf("failed to demote previous links for %q: %w", code, err)
		}
		if demoted > 0 {
			f.logger.Printf("demoted %d previous link(s) for code %q request_id=%s", demoted, code, RequestID(txCtx))
		}
		return f.shortURLs.Save(txCtx, link)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race for the same code. The caller can retry with a
			// fresh allocation.
			return nil, NewBusinessError(ErrCodeShortCodeTaken, "Short code was claimed concurrently", ErrShortCodeConflict)
		}
		f.logger.Printf("link creation failed for code %q: %v", code, err)
		return nil, NewBusinessError(ErrCodeDatabaseError, "Failed to create link", err)
	}

	// Write-through so reads after a takeover see the new target.
	if err := f.cache.StoreURL(ctx, link); err != nil {
		f.logger.Printf("cache store failed for code %q: %v", code, err)
	}

	return link, nil
}

// ResolveLink returns the target URL for a code and records the hit. The
// cache is authoritative for hit counts between reconciliation passes.
func (f *linkFlow) ResolveLink(ctx context.Context, code string) (string, error) {
	cached, err := f.cache.FindURL(ctx, code)
	if err == nil && cached != nil {
		if _, err := f.cache.BumpURLHit(ctx, code); err != nil {
			f.logger.Printf("hit bump failed for code %q: %v", code, err)
		}
		return cached.URL, nil
	}
	if err != nil && !errors.Is(err, cache.ErrNotCached) {
		f.logger.Printf("cache lookup failed for code %q: %v", code, err)
	}

	link, err := f.shortURLs.PrimaryByCode(ctx, code)
	if err != nil {
		return "", NewBusinessError(ErrCodeDatabaseError, "Failed to resolve link", err)
	}
	if link == nil {
		return "", NewBusinessError(ErrCodeLinkNotFound, "Short link not found", ErrLinkNotFound)
	}

	if err := f.cache.StoreURL(ctx, link); err != nil {
		f.logger.Printf("cache store failed for code %q: %v", code, err)
	}
	if _, err := f.cache.BumpURLHit(ctx, code); err != nil {
		f.logger.Printf("hit bump failed for code %q: %v", code, err)
	}

	return link.URL, nil
}

// sortColumns whitelists user-supplied sort fields
var sortColumns = map[string]string{
	"created":   "created_at",
	"title":     "title",
	"hits":      "hit_count",
	"shortCode": "short_code",
}

// ListLinks returns the caller's primary links, paged, with optional
// substring search over title, code and target.
func (f *linkFlow) ListLinks(ctx context.Context, user *models.User, search, sortBy, sortDir string, page, pageSize int) ([]*models.ShortURL, int64, error) {
	if user == nil {
		return nil, 0, NewBusinessError(ErrCodeSessionNotFound, "Authentication required", ErrSessionNotFound)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	column, ok := sortColumns[sortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(sortDir, "asc") {
		direction = "ASC"
	}
	orderBy := fmt.Sprintf("%s %s", column, direction)

	filter := models.ShortURLFilter{
		CreatedByID: &user.ID,
		IsPrimary:   utils.ToPtr(true),
	}
	if s := strings.TrimSpace(search); s != "" {
		filter.Search = &s
	}

	total, err := f.shortURLs.Count(ctx, filter)
	if err != nil {
		return nil, 0, NewBusinessError(ErrCodeDatabaseError, "Failed to count links", err)
	}

	links, err := f.shortURLs.ByFilter(ctx, filter, orderBy, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, NewBusinessError(ErrCodeDatabaseError, "Failed to list links", err)
	}

	return links, total, nil
}

// RetireLink demotes every row for a code the caller owns and drops the
// cache entry so the code stops resolving immediately. Returns the number
// of rows demoted.
func (f *linkFlow) RetireLink(ctx context.Context, user *models.User, code string) (int64, error) {
	if user == nil {
		return 0, NewBusinessError(ErrCodeSessionNotFound, "Authentication required", ErrSessionNotFound)
	}

	link, err := f.shortURLs.PrimaryByCode(ctx, code)
	if err != nil {
		return 0, NewBusinessError(ErrCodeDatabaseError, "Failed to load link", err)
	}
	if link == nil || link.CreatedByID != user.ID {
		return 0, NewBusinessError(ErrCodeLinkNotFound, "Short link not found", ErrLinkNotFound)
	}

	// Flush any hits still sitting in the cache before the entry goes away.
	if cached, cacheErr := f.cache.FindURL(ctx, code); cacheErr == nil && cached != nil && cached.HitCount > link.HitCount {
		if _, err := f.shortURLs.ReconcileHitCount(ctx, link.ID, cached.HitCount); err != nil {
			f.logger.Printf("final hit reconcile failed for code %q: %v", code, err)
		}
	}

	var demoted int64
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		demoted, err = f.shortURLs.DemoteAll(txCtx, code)
		return err
	})
	if err != nil {
		return 0, NewBusinessError(ErrCodeDatabaseError, "Failed to retire link", err)
	}

	if err := f.cache.RemoveURL(ctx, code); err != nil {
		f.logger.Printf("cache remove failed for code %q: %v", code, err)
	}

	return demoted, nil
}
