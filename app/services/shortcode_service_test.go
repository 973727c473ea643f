package services

import (
	"context"
	"strings"
	"testing"

	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubShortURLRepo struct {
	taken map[string]bool
}

func (s *stubShortURLRepo) ByID(ctx context.Context, id uint) (*models.ShortURL, error) {
	return nil, nil
}

func (s *stubShortURLRepo) ByFilter(ctx context.Context, filter models.ShortURLFilter, orderBy string, limit, offset int) ([]*models.ShortURL, error) {
	return nil, nil
}

func (s *stubShortURLRepo) Save(ctx context.Context, entity *models.ShortURL) error {
	return nil
}

func (s *stubShortURLRepo) Count(ctx context.Context, filter models.ShortURLFilter) (int64, error) {
	return 0, nil
}

func (s *stubShortURLRepo) Exists(ctx context.Context, filter models.ShortURLFilter) (bool, error) {
	return false, nil
}

func (s *stubShortURLRepo) PrimaryByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	if s.taken[code] {
		return &models.ShortURL{ShortCode: code, IsPrimary: utils.ToPtr(true)}, nil
	}
	return nil, nil
}

func (s *stubShortURLRepo) DemoteAll(ctx context.Context, code string) (int64, error) {
	return 0, nil
}

func (s *stubShortURLRepo) ReconcileHitCount(ctx context.Context, id uint, cachedCount int64) (bool, error) {
	return false, nil
}

func (s *stubShortURLRepo) IterateAll(ctx context.Context, batchSize int, fn func(*models.ShortURL) error) error {
	return nil
}

func (s *stubShortURLRepo) CountDistinctCodes(ctx context.Context) (int64, error) {
	return 0, nil
}

type takenRepo struct{ stubShortURLRepo }

func (takenRepo) PrimaryByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	return &models.ShortURL{ShortCode: code, IsPrimary: utils.ToPtr(true)}, nil
}

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		ShortCodeSalt:     "test-salt",
		ShortCodeLength:   5,
		ShortCodeAlphabet: config.DefaultShortCodeAlphabet,
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	allocator, err := NewShortCodeAllocator(testSecurityConfig(), &stubShortURLRepo{})
	require.NoError(t, err)

	first, err := allocator.Encode(12345)
	require.NoError(t, err)
	second, err := allocator.Encode(12345)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, len(first), 5)
	for _, ch := range first {
		assert.True(t, strings.ContainsRune(config.DefaultShortCodeAlphabet, ch))
	}
}

func TestEncodeDependsOnSalt(t *testing.T) {
	cfg := testSecurityConfig()
	allocator, err := NewShortCodeAllocator(cfg, &stubShortURLRepo{})
	require.NoError(t, err)

	cfg.ShortCodeSalt = "another-salt"
	other, err := NewShortCodeAllocator(cfg, &stubShortURLRepo{})
	require.NoError(t, err)

	var differ bool
	for _, seed := range []int{1, 42, 12345, 9999999} {
		a, err := allocator.Encode(seed)
		require.NoError(t, err)
		b, err := other.Encode(seed)
		require.NoError(t, err)
		if a != b {
			differ = true
		}
	}
	assert.True(t, differ)
}

func TestAllocateReturnsFreeCode(t *testing.T) {
	allocator, err := NewShortCodeAllocator(testSecurityConfig(), &stubShortURLRepo{})
	require.NoError(t, err)

	code, err := allocator.Allocate(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(code), 5)
}

func TestAllocateFailsWhenEveryCodeIsTaken(t *testing.T) {
	allocator, err := NewShortCodeAllocator(testSecurityConfig(), &takenRepo{})
	require.NoError(t, err)

	_, err = allocator.Allocate(context.Background())
	assert.Error(t, err)
}
