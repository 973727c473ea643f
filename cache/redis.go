package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shrtyhq/shrty/models"
)

// RedisCacheManager is the remote key-value cache backend built on go-redis.
// Short URL records are stored as JSON under "url.<code>" with the live hit
// counter kept in a separate "hits.<code>" key so bumps are a single atomic
// INCR. Sessions are stored as JSON under "session.<key>" with the session
// TTL applied on every store.
type RedisCacheManager struct {
	client     *redis.Client
	prefix     string
	sessionTTL time.Duration
	logger     *log.Logger
}

// NewRedisCacheManager creates a Redis-backed cache manager
func NewRedisCacheManager(client *redis.Client, prefix string, sessionTTL time.Duration, logger *log.Logger) *RedisCacheManager {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisCacheManager{
		client:     client,
		prefix:     prefix,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

func (r *RedisCacheManager) urlKey(code string) string {
	return fmt.Sprintf("%surl.%s", r.prefix, code)
}

func (r *RedisCacheManager) hitsKey(code string) string {
	return fmt.Sprintf("%shits.%s", r.prefix, code)
}

func (r *RedisCacheManager) sessionKey(key string) string {
	return fmt.Sprintf("%ssession.%s", r.prefix, key)
}

// StoreURL caches the given short URL and resets its hit counter baseline
func (r *RedisCacheManager) StoreURL(ctx context.Context, url *models.ShortURL) error {
	bs, err := json.Marshal(url)
	if err != nil {
		return fmt.Errorf("failed to encode short URL for cache: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.urlKey(url.ShortCode), bs, 0)
	pipe.Set(ctx, r.hitsKey(url.ShortCode), url.HitCount, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store short URL in cache: %w", err)
	}

	return nil
}

// FindURL returns the cached short URL for a code with its current
// provisional hit count, or ErrNotCached
func (r *RedisCacheManager) FindURL(ctx context.Context, code string) (*models.ShortURL, error) {
	bs, err := r.client.Get(ctx, r.urlKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read short URL from cache: %w", err)
	}

	var url models.ShortURL
	if err := json.Unmarshal(bs, &url); err != nil {
		return nil, fmt.Errorf("failed to decode cached short URL: %w", err)
	}

	hits, err := r.client.Get(ctx, r.hitsKey(code)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read hit counter from cache: %w", err)
	}
	if err == nil && hits > url.HitCount {
		url.HitCount = hits
	}

	return &url, nil
}

// RemoveURL evicts the cache entry and hit counter for a code
func (r *RedisCacheManager) RemoveURL(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.urlKey(code), r.hitsKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to remove short URL from cache: %w", err)
	}
	return nil
}

// BumpURLHit atomically increments the hit counter for a cached code
func (r *RedisCacheManager) BumpURLHit(ctx context.Context, code string) (int64, error) {
	exists, err := r.client.Exists(ctx, r.urlKey(code)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check cached short URL: %w", err)
	}
	if exists == 0 {
		return 0, ErrNotCached
	}

	count, err := r.client.Incr(ctx, r.hitsKey(code)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment hit counter: %w", err)
	}

	return count, nil
}

// StoreSession caches the given session with the session TTL
func (r *RedisCacheManager) StoreSession(ctx context.Context, session *models.Session) error {
	bs, err := json.Marshal(sessionPayload(session))
	if err != nil {
		return fmt.Errorf("failed to encode session for cache: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.Key), bs, r.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session in cache: %w", err)
	}

	return nil
}

// FindSession returns the cached session for a key, or ErrNotCached
func (r *RedisCacheManager) FindSession(ctx context.Context, key string) (*models.Session, error) {
	bs, err := r.client.Get(ctx, r.sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session from cache: %w", err)
	}

	var payload cachedSession
	if err := json.Unmarshal(bs, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode cached session: %w", err)
	}

	return payload.toModel(), nil
}

// RemoveSession evicts the cache entry for a session key
func (r *RedisCacheManager) RemoveSession(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to remove session from cache: %w", err)
	}
	return nil
}

// cachedSession is the wire form for sessions in Redis. The session key is
// excluded from the model's JSON output, so it is carried explicitly here.
type cachedSession struct {
	ID        uint      `json:"id"`
	Key       string    `json:"key"`
	UserID    uint      `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   *bool     `json:"expired"`
}

func sessionPayload(s *models.Session) cachedSession {
	return cachedSession{
		ID:        s.ID,
		Key:       s.Key,
		UserID:    s.UserID,
		StartedAt: s.StartedAt,
		ExpiresAt: s.ExpiresAt,
		Expired:   s.Expired,
	}
}

func (c cachedSession) toModel() *models.Session {
	return &models.Session{
		ID:        c.ID,
		Key:       c.Key,
		UserID:    c.UserID,
		StartedAt: c.StartedAt,
		ExpiresAt: c.ExpiresAt,
		Expired:   c.Expired,
	}
}
