package tests

import (
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/shrtyhq/shrty/app/scheduler"
	"github.com/shrtyhq/shrty/app/services"
	businessflow "github.com/shrtyhq/shrty/business_flow"
	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/repository"
	apptesting "github.com/shrtyhq/shrty/testing"
	"github.com/shrtyhq/shrty/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		ShortCodeSalt:     "integration-salt",
		ShortCodeLength:   5,
		ShortCodeAlphabet: config.DefaultShortCodeAlphabet,
		SessionTTL:        time.Hour,
		BcryptCost:        10,
	}
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test ", log.LstdFlags)
}

func TestCreateLinkAllocatesCodeAndWarmsCache(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := apptesting.CreateTestContext(t)

	repo := repository.NewShortURLRepository(db.DB)
	cm := cache.NewMemoryCacheManager(time.Hour)
	allocator, err := services.NewShortCodeAllocator(testSecurityConfig(), repo)
	require.NoError(t, err)
	flow := businessflow.NewLinkFlow(repo, allocator, cm, db.DB, testLogger())

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	link, err := flow.CreateLink(ctx, user, "My link", "https://example.com", "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(link.ShortCode), 5)
	assert.True(t, utils.IsTrue(link.IsPrimary))

	// Write-through: the new link resolves from the cache immediately.
	cached, err := cm.FindURL(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cached.URL)

	target, err := flow.ResolveLink(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
}

func TestCreateLinkClaimsCodeFromAnotherUser(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := apptesting.CreateTestContext(t)

	repo := repository.NewShortURLRepository(db.DB)
	cm := cache.NewMemoryCacheManager(time.Hour)
	allocator, err := services.NewShortCodeAllocator(testSecurityConfig(), repo)
	require.NoError(t, err)
	flow := businessflow.NewLinkFlow(repo, allocator, cm, db.DB, testLogger())

	alice, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	bob, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	_, err = flow.CreateLink(ctx, alice, "Alice's", "https://alice.example.com", "mycode")
	require.NoError(t, err)

	// Bob claims the same code. Alice's row is demoted, redirects now go
	// to Bob's target, including through the cache.
	_, err = flow.CreateLink(ctx, bob, "Bob's", "https://bob.example.com", "mycode")
	require.NoError(t, err)

	target, err := flow.ResolveLink(ctx, "mycode")
	require.NoError(t, err)
	assert.Equal(t, "https://bob.example.com", target)

	count, err := repo.Count(ctx, models.ShortURLFilter{
		ShortCode: utils.ToPtr("mycode"),
		IsPrimary: utils.ToPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHitCountsReconcileToDatabase(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := apptesting.CreateTestContext(t)

	repo := repository.NewShortURLRepository(db.DB)
	cm := cache.NewMemoryCacheManager(time.Hour)
	flow := businessflow.NewLinkFlow(repo, nil, cm, db.DB, testLogger())

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	link, err := fixtures.CreateTestLink(user.ID, "hitme", "https://example.com")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := flow.ResolveLink(ctx, "hitme")
		require.NoError(t, err)
	}

	// Visits land only in the cache until a reconciliation pass runs.
	row, err := repo.ByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.HitCount)

	s := scheduler.NewHitCountScheduler(repo, cm, time.Hour, 100, testLogger())
	require.NoError(t, s.RunOnce(ctx))

	row, err = repo.ByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), row.HitCount)
}

func TestLoginSessionLifecycle(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := apptesting.CreateTestContext(t)

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	cm := cache.NewMemoryCacheManager(time.Hour)
	flow := businessflow.NewAuthFlow(userRepo, sessionRepo, cm, db.DB, testSecurityConfig(), testLogger())

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	session, err := flow.Login(ctx, user.Email, apptesting.TestPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Key)
	assert.True(t, session.ExpiresAt.After(utils.UTCNow()))

	// A second login coalesces onto the open session.
	again, err := flow.Login(ctx, user.Email, apptesting.TestPassword)
	require.NoError(t, err)
	assert.Equal(t, session.Key, again.Key)

	resolved, err := flow.GetSession(ctx, session.Key)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.UserID)

	require.NoError(t, flow.Logout(ctx, session.Key))

	_, err = flow.GetSession(ctx, session.Key)
	assert.True(t, errors.Is(err, businessflow.ErrSessionNotFound))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := apptesting.CreateTestContext(t)

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	cm := cache.NewMemoryCacheManager(time.Hour)
	flow := businessflow.NewAuthFlow(userRepo, sessionRepo, cm, db.DB, testSecurityConfig(), testLogger())

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	_, err = flow.Login(ctx, user.Email, "wrong-password")
	assert.True(t, errors.Is(err, businessflow.ErrInvalidPassword))

	_, err = flow.Login(ctx, "nobody@example.com", apptesting.TestPassword)
	assert.True(t, errors.Is(err, businessflow.ErrUserDoesNotExist))
}

func TestSessionExpiryPassAgainstDatabase(t *testing.T) {
	db, fixtures := setupDB(t)
	ctx := apptesting.CreateTestContext(t)

	sessionRepo := repository.NewSessionRepository(db.DB)
	cm := cache.NewMemoryCacheManager(time.Hour)

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	// Durable deadline already lapsed, but the cache carries a touch that
	// moved it forward. The pass syncs the deadline instead of retiring.
	touched, err := fixtures.CreateLapsedSession(user.ID)
	require.NoError(t, err)
	cachedCopy := *touched
	cachedCopy.ExpiresAt = utils.UTCNowAdd(30 * time.Minute)
	require.NoError(t, cm.StoreSession(ctx, &cachedCopy))

	// No cache copy at all: both sides agree the session lapsed.
	abandoned, err := fixtures.CreateLapsedSession(user.ID)
	require.NoError(t, err)

	s := scheduler.NewSessionExpiryScheduler(sessionRepo, cm, time.Hour, testLogger())
	require.NoError(t, s.RunOnce(ctx))

	stillOpen, err := sessionRepo.ByKey(ctx, touched.Key)
	require.NoError(t, err)
	require.NotNil(t, stillOpen)
	assert.True(t, stillOpen.ExpiresAt.After(utils.UTCNow()))

	gone, err := sessionRepo.ByKey(ctx, abandoned.Key)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
