// Package cache provides the cache manager abstraction used for hot-path link
// resolution and session liveness, with interchangeable in-process and Redis
// backends selected at startup.
package cache

import (
	"context"
	"errors"

	"github.com/shrtyhq/shrty/models"
)

// ErrNotCached is returned by lookups and BumpURLHit when no cache entry
// exists for the key.
var ErrNotCached = errors.New("entry not cached")

// CacheManager is the contract both cache backends implement. Lookups return
// ErrNotCached on a miss; every operation is atomic per key.
//
// Link entries are the source of truth for provisional hit counts between
// reconciliation passes and are not time-limited. Session entries carry the
// session TTL from their last store, so a copy lives until roughly one TTL
// after the last touch.
type CacheManager interface {
	StoreURL(ctx context.Context, url *models.ShortURL) error
	FindURL(ctx context.Context, code string) (*models.ShortURL, error)
	RemoveURL(ctx context.Context, code string) error

	// BumpURLHit increments the cached hit count for a code and returns the
	// new count. This is the only write path for hit counting on the
	// redirect hot path; it never touches the durable store.
	BumpURLHit(ctx context.Context, code string) (int64, error)

	StoreSession(ctx context.Context, session *models.Session) error
	FindSession(ctx context.Context, key string) (*models.Session, error)
	RemoveSession(ctx context.Context, key string) error
}

func cloneURL(url *models.ShortURL) *models.ShortURL {
	if url == nil {
		return nil
	}
	clone := *url
	if url.IsPrimary != nil {
		v := *url.IsPrimary
		clone.IsPrimary = &v
	}
	return &clone
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.Expired != nil {
		v := *session.Expired
		clone.Expired = &v
	}
	return &clone
}
