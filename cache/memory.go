package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shrtyhq/shrty/models"
)

type sessionEntry struct {
	session  *models.Session
	deadline time.Time
}

// MemoryCacheManager is the in-process cache backend. It is safe for
// concurrent use from many request handlers; all operations are atomic per
// key. Records are copied in and out so callers never share memory with the
// cache.
type MemoryCacheManager struct {
	mu         sync.RWMutex
	urls       map[string]*models.ShortURL
	sessions   map[string]sessionEntry
	sessionTTL time.Duration
}

// NewMemoryCacheManager creates an in-process cache manager. sessionTTL
// bounds how long a session entry survives after its last store.
func NewMemoryCacheManager(sessionTTL time.Duration) *MemoryCacheManager {
	return &MemoryCacheManager{
		urls:       make(map[string]*models.ShortURL),
		sessions:   make(map[string]sessionEntry),
		sessionTTL: sessionTTL,
	}
}

// StoreURL caches the given short URL keyed by its short code
func (m *MemoryCacheManager) StoreURL(ctx context.Context, url *models.ShortURL) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls[url.ShortCode] = cloneURL(url)
	return nil
}

// FindURL returns the cached short URL for a code, or ErrNotCached
func (m *MemoryCacheManager) FindURL(ctx context.Context, code string) (*models.ShortURL, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url, ok := m.urls[code]
	if !ok {
		return nil, ErrNotCached
	}
	return cloneURL(url), nil
}

// RemoveURL evicts the cache entry for a code
func (m *MemoryCacheManager) RemoveURL(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.urls, code)
	return nil
}

// BumpURLHit increments the cached hit count for a code
func (m *MemoryCacheManager) BumpURLHit(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	url, ok := m.urls[code]
	if !ok {
		return 0, ErrNotCached
	}
	url.HitCount++
	return url.HitCount, nil
}

// StoreSession caches the given session keyed by its session key
func (m *MemoryCacheManager) StoreSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Key] = sessionEntry{
		session:  cloneSession(session),
		deadline: time.Now().UTC().Add(m.sessionTTL),
	}
	return nil
}

// FindSession returns the cached session for a key, or ErrNotCached.
// Entries whose cache lifetime has lapsed are evicted lazily.
func (m *MemoryCacheManager) FindSession(ctx context.Context, key string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotCached
	}
	if time.Now().UTC().After(entry.deadline) {
		delete(m.sessions, key)
		return nil, ErrNotCached
	}
	return cloneSession(entry.session), nil
}

// RemoveSession evicts the cache entry for a session key
func (m *MemoryCacheManager) RemoveSession(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}
