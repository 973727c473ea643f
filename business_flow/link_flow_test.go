package business_flow

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinkRepo struct {
	rows []*models.ShortURL
}

func (f *fakeLinkRepo) ByID(ctx context.Context, id uint) (*models.ShortURL, error) {
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeLinkRepo) ByFilter(ctx context.Context, filter models.ShortURLFilter, orderBy string, limit, offset int) ([]*models.ShortURL, error) {
	var out []*models.ShortURL
	for _, row := range f.rows {
		if matchesFilter(row, filter) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLinkRepo) Save(ctx context.Context, entity *models.ShortURL) error {
	f.rows = append(f.rows, entity)
	return nil
}

func (f *fakeLinkRepo) Count(ctx context.Context, filter models.ShortURLFilter) (int64, error) {
	rows, _ := f.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (f *fakeLinkRepo) Exists(ctx context.Context, filter models.ShortURLFilter) (bool, error) {
	count, _ := f.Count(ctx, filter)
	return count > 0, nil
}

func (f *fakeLinkRepo) PrimaryByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	var best *models.ShortURL
	for _, row := range f.rows {
		if row.ShortCode != code || !utils.IsTrue(row.IsPrimary) {
			continue
		}
		if best == nil || row.CreatedAt.After(best.CreatedAt) {
			best = row
		}
	}
	return best, nil
}

func (f *fakeLinkRepo) DemoteAll(ctx context.Context, code string) (int64, error) {
	var n int64
	for _, row := range f.rows {
		if row.ShortCode == code && utils.IsTrue(row.IsPrimary) {
			row.IsPrimary = utils.ToPtr(false)
			n++
		}
	}
	return n, nil
}

func (f *fakeLinkRepo) ReconcileHitCount(ctx context.Context, id uint, cachedCount int64) (bool, error) {
	for _, row := range f.rows {
		if row.ID == id && row.HitCount < cachedCount {
			row.HitCount = cachedCount
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLinkRepo) IterateAll(ctx context.Context, batchSize int, fn func(*models.ShortURL) error) error {
	for _, row := range f.rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLinkRepo) CountDistinctCodes(ctx context.Context) (int64, error) {
	codes := make(map[string]struct{})
	for _, row := range f.rows {
		if utils.IsTrue(row.IsPrimary) {
			codes[row.ShortCode] = struct{}{}
		}
	}
	return int64(len(codes)), nil
}

func matchesFilter(row *models.ShortURL, f models.ShortURLFilter) bool {
	if f.ShortCode != nil && row.ShortCode != *f.ShortCode {
		return false
	}
	if f.IsPrimary != nil && utils.IsTrue(row.IsPrimary) != *f.IsPrimary {
		return false
	}
	if f.CreatedByID != nil && row.CreatedByID != *f.CreatedByID {
		return false
	}
	return true
}

func flowTestLogger() *log.Logger {
	return log.New(os.Stderr, "test ", log.LstdFlags)
}

func TestResolveLinkMissFallsBackToStore(t *testing.T) {
	ctx := context.Background()

	link := &models.ShortURL{
		ID:        1,
		ShortCode: "abc12",
		URL:       "https://example.com",
		HitCount:  7,
		IsPrimary: utils.ToPtr(true),
		CreatedAt: utils.UTCNow(),
	}
	repo := &fakeLinkRepo{rows: []*models.ShortURL{link}}
	cm := cache.NewMemoryCacheManager(time.Hour)

	flow := NewLinkFlow(repo, nil, cm, nil, flowTestLogger())

	target, err := flow.ResolveLink(ctx, "abc12")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)

	// The entry lands in the cache with the visit already counted.
	cached, err := cm.FindURL(ctx, "abc12")
	require.NoError(t, err)
	assert.Equal(t, int64(8), cached.HitCount)
}

func TestResolveLinkServesFromCache(t *testing.T) {
	ctx := context.Background()

	repo := &fakeLinkRepo{}
	cm := cache.NewMemoryCacheManager(time.Hour)
	require.NoError(t, cm.StoreURL(ctx, &models.ShortURL{
		ShortCode: "abc12",
		URL:       "https://cached.example.com",
		HitCount:  1,
	}))

	flow := NewLinkFlow(repo, nil, cm, nil, flowTestLogger())

	target, err := flow.ResolveLink(ctx, "abc12")
	require.NoError(t, err)
	assert.Equal(t, "https://cached.example.com", target)

	cached, err := cm.FindURL(ctx, "abc12")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.HitCount)
}

func TestResolveLinkUnknownCode(t *testing.T) {
	flow := NewLinkFlow(&fakeLinkRepo{}, nil, cache.NewMemoryCacheManager(time.Hour), nil, flowTestLogger())

	_, err := flow.ResolveLink(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLinkNotFound))
}

func TestResolveLinkIgnoresDemotedRows(t *testing.T) {
	ctx := context.Background()

	demoted := &models.ShortURL{
		ID:        1,
		ShortCode: "abc12",
		URL:       "https://old.example.com",
		IsPrimary: utils.ToPtr(false),
		CreatedAt: utils.UTCNow(),
	}
	repo := &fakeLinkRepo{rows: []*models.ShortURL{demoted}}

	flow := NewLinkFlow(repo, nil, cache.NewMemoryCacheManager(time.Hour), nil, flowTestLogger())

	_, err := flow.ResolveLink(ctx, "abc12")
	assert.True(t, errors.Is(err, ErrLinkNotFound))
}

func TestListLinksRequiresUser(t *testing.T) {
	flow := NewLinkFlow(&fakeLinkRepo{}, nil, cache.NewMemoryCacheManager(time.Hour), nil, flowTestLogger())

	_, _, err := flow.ListLinks(context.Background(), nil, "", "", "", 1, 20)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestListLinksReturnsOwnPrimaryLinks(t *testing.T) {
	ctx := context.Background()
	owner := &models.User{ID: 1}

	repo := &fakeLinkRepo{rows: []*models.ShortURL{
		{ID: 1, ShortCode: "mine1", URL: "https://a.example.com", IsPrimary: utils.ToPtr(true), CreatedByID: 1, CreatedAt: utils.UTCNow()},
		{ID: 2, ShortCode: "mine2", URL: "https://b.example.com", IsPrimary: utils.ToPtr(false), CreatedByID: 1, CreatedAt: utils.UTCNow()},
		{ID: 3, ShortCode: "other", URL: "https://c.example.com", IsPrimary: utils.ToPtr(true), CreatedByID: 2, CreatedAt: utils.UTCNow()},
	}}

	flow := NewLinkFlow(repo, nil, cache.NewMemoryCacheManager(time.Hour), nil, flowTestLogger())

	links, total, err := flow.ListLinks(ctx, owner, "", "created", "desc", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, links, 1)
	assert.Equal(t, "mine1", links[0].ShortCode)
}
