package business_flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users []*models.User
}

func (f *fakeUserRepo) ByID(ctx context.Context, id uint) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) ByFilter(ctx context.Context, filter models.UserFilter, orderBy string, limit, offset int) ([]*models.User, error) {
	return f.users, nil
}

func (f *fakeUserRepo) Save(ctx context.Context, entity *models.User) error {
	f.users = append(f.users, entity)
	return nil
}

func (f *fakeUserRepo) Count(ctx context.Context, filter models.UserFilter) (int64, error) {
	return int64(len(f.users)), nil
}

func (f *fakeUserRepo) Exists(ctx context.Context, filter models.UserFilter) (bool, error) {
	return len(f.users) > 0, nil
}

func (f *fakeUserRepo) ByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type fakeSessionStore struct {
	rows []*models.Session
}

func (f *fakeSessionStore) ByID(ctx context.Context, id uint) (*models.Session, error) {
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionStore) ByFilter(ctx context.Context, filter models.SessionFilter, orderBy string, limit, offset int) ([]*models.Session, error) {
	return f.rows, nil
}

func (f *fakeSessionStore) Save(ctx context.Context, entity *models.Session) error {
	for _, row := range f.rows {
		if row.ID == entity.ID && entity.ID != 0 {
			*row = *entity
			return nil
		}
	}
	entity.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, entity)
	return nil
}

func (f *fakeSessionStore) Count(ctx context.Context, filter models.SessionFilter) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *fakeSessionStore) Exists(ctx context.Context, filter models.SessionFilter) (bool, error) {
	return len(f.rows) > 0, nil
}

func (f *fakeSessionStore) ByKey(ctx context.Context, key string) (*models.Session, error) {
	for _, row := range f.rows {
		if row.Key == key && !utils.IsTrue(row.Expired) {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionStore) OpenSessionForUser(ctx context.Context, userID uint) (*models.Session, error) {
	var best *models.Session
	now := utils.UTCNow()
	for _, row := range f.rows {
		if row.UserID != userID || utils.IsTrue(row.Expired) || !row.ExpiresAt.After(now) {
			continue
		}
		if best == nil || row.ExpiresAt.After(best.ExpiresAt) {
			best = row
		}
	}
	return best, nil
}

func (f *fakeSessionStore) ListExpiryCandidates(ctx context.Context, now time.Time) ([]*models.Session, error) {
	var out []*models.Session
	for _, row := range f.rows {
		if !utils.IsTrue(row.Expired) && row.ExpiresAt.Before(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) UpdateExpiresAt(ctx context.Context, id uint, expiresAt time.Time) error {
	for _, row := range f.rows {
		if row.ID == id {
			row.ExpiresAt = expiresAt
		}
	}
	return nil
}

func (f *fakeSessionStore) MarkExpired(ctx context.Context, id uint) error {
	for _, row := range f.rows {
		if row.ID == id {
			row.Expired = utils.ToPtr(true)
		}
	}
	return nil
}

func newTestAuthFlow(users *fakeUserRepo, sessions *fakeSessionStore, cm cache.CacheManager) AuthFlow {
	cfg := config.SecurityConfig{SessionTTL: time.Hour}
	return NewAuthFlow(users, sessions, cm, nil, cfg, flowTestLogger())
}

func TestGetSessionServesFromCacheAndSlidesExpiry(t *testing.T) {
	ctx := context.Background()
	cm := cache.NewMemoryCacheManager(time.Hour)

	before := utils.UTCNowAdd(10 * time.Minute)
	require.NoError(t, cm.StoreSession(ctx, &models.Session{
		ID:        1,
		Key:       "cached-key",
		UserID:    7,
		ExpiresAt: before,
		Expired:   utils.ToPtr(false),
	}))

	flow := newTestAuthFlow(&fakeUserRepo{}, &fakeSessionStore{}, cm)

	session, err := flow.GetSession(ctx, "cached-key")
	require.NoError(t, err)
	assert.Equal(t, uint(7), session.UserID)
	assert.Equal(t, uint(7), session.User.ID)
	assert.True(t, session.ExpiresAt.After(before))

	// The touched deadline is written back to the cache.
	cached, err := cm.FindSession(ctx, "cached-key")
	require.NoError(t, err)
	assert.True(t, cached.ExpiresAt.After(before))
}

func TestGetSessionFallsBackToDurableStore(t *testing.T) {
	ctx := context.Background()
	cm := cache.NewMemoryCacheManager(time.Hour)

	sessions := &fakeSessionStore{rows: []*models.Session{{
		ID:        1,
		Key:       "durable-key",
		UserID:    3,
		User:      models.User{ID: 3, Email: "user@example.com"},
		ExpiresAt: utils.UTCNowAdd(10 * time.Minute),
		Expired:   utils.ToPtr(false),
	}}}

	flow := newTestAuthFlow(&fakeUserRepo{}, sessions, cm)

	session, err := flow.GetSession(ctx, "durable-key")
	require.NoError(t, err)
	assert.Equal(t, uint(3), session.UserID)

	// The read repopulates the cache.
	cached, err := cm.FindSession(ctx, "durable-key")
	require.NoError(t, err)
	require.NotNil(t, cached)
}

func TestGetSessionRejectsUnknownAndLapsedKeys(t *testing.T) {
	ctx := context.Background()
	cm := cache.NewMemoryCacheManager(time.Hour)

	sessions := &fakeSessionStore{rows: []*models.Session{{
		ID:        1,
		Key:       "lapsed-key",
		UserID:    3,
		ExpiresAt: utils.UTCNowAdd(-time.Minute),
		Expired:   utils.ToPtr(false),
	}}}

	flow := newTestAuthFlow(&fakeUserRepo{}, sessions, cm)

	_, err := flow.GetSession(ctx, "unknown-key")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = flow.GetSession(ctx, "lapsed-key")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = flow.GetSession(ctx, "")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestLogoutRetiresSessionOnBothSides(t *testing.T) {
	ctx := context.Background()
	cm := cache.NewMemoryCacheManager(time.Hour)

	session := &models.Session{
		ID:        1,
		Key:       "live-key",
		UserID:    3,
		ExpiresAt: utils.UTCNowAdd(time.Hour),
		Expired:   utils.ToPtr(false),
	}
	sessions := &fakeSessionStore{rows: []*models.Session{session}}
	require.NoError(t, cm.StoreSession(ctx, session))

	flow := newTestAuthFlow(&fakeUserRepo{}, sessions, cm)

	require.NoError(t, flow.Logout(ctx, "live-key"))

	assert.True(t, utils.IsTrue(session.Expired))
	_, err := cm.FindSession(ctx, "live-key")
	assert.ErrorIs(t, err, cache.ErrNotCached)

	// Logging out twice is harmless.
	require.NoError(t, flow.Logout(ctx, "live-key"))
}
