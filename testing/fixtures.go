package testing

import (
	"fmt"
	"time"

	"github.com/shrtyhq/shrty/models"
	"github.com/shrtyhq/shrty/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helpers for creating test data
type TestFixtures struct {
	db *TestDB
}

// NewTestFixtures creates a fixture factory for a test database
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{db: db}
}

// TestPassword is the plaintext behind every fixture user's hash
const TestPassword = "TestPass123!"

// CreateTestUser inserts a user with a unique email
func (tf *TestFixtures) CreateTestUser() (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash fixture password: %w", err)
	}

	user := &models.User{
		FirstName:    "Test",
		LastName:     "User",
		Email:        fmt.Sprintf("user-%s@example.com", uuid.New().String()[:8]),
		PasswordHash: string(hash),
		CreatedAt:    utils.UTCNow(),
	}

	if err := tf.db.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}
	return user, nil
}

// CreateTestLink inserts a primary short link for a user
func (tf *TestFixtures) CreateTestLink(userID uint, code, targetURL string) (*models.ShortURL, error) {
	link := &models.ShortURL{
		ShortCode:   code,
		Title:       "Test link " + code,
		URL:         targetURL,
		HitCount:    0,
		IsPrimary:   utils.ToPtr(true),
		CreatedAt:   utils.UTCNow(),
		CreatedByID: userID,
	}

	if err := tf.db.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create test link: %w", err)
	}
	return link, nil
}

// CreateTestSession inserts an open session for a user
func (tf *TestFixtures) CreateTestSession(userID uint, ttl time.Duration) (*models.Session, error) {
	session := &models.Session{
		Key:       utils.Base64HashOf(uuid.New().String()),
		UserID:    userID,
		StartedAt: utils.UTCNow(),
		ExpiresAt: utils.UTCNowAdd(ttl),
		Expired:   utils.ToPtr(false),
	}

	if err := tf.db.DB.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create test session: %w", err)
	}
	return session, nil
}

// CreateLapsedSession inserts an open session whose deadline already passed
func (tf *TestFixtures) CreateLapsedSession(userID uint) (*models.Session, error) {
	session := &models.Session{
		Key:       utils.Base64HashOf(uuid.New().String()),
		UserID:    userID,
		StartedAt: utils.UTCNowAdd(-2 * time.Hour),
		ExpiresAt: utils.UTCNowAdd(-1 * time.Hour),
		Expired:   utils.ToPtr(false),
	}

	if err := tf.db.DB.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create lapsed test session: %w", err)
	}
	return session, nil
}
