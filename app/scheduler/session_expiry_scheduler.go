package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shrtyhq/shrty/cache"
	"github.com/shrtyhq/shrty/repository"
	"github.com/shrtyhq/shrty/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionExpiryPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrty_session_expiry_passes_total",
		Help: "Completed session expiry passes",
	})
	sessionExpirySkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrty_session_expiry_skipped_total",
		Help: "Scheduler ticks skipped because the previous pass is still catching up",
	})
	sessionsRetired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrty_sessions_retired_total",
		Help: "Sessions retired after both sides agreed they lapsed",
	})
	sessionsExtended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrty_sessions_extended_total",
		Help: "Durable session deadlines advanced from cached touches",
	})
)

// SessionExpiryScheduler retires sessions whose deadline has passed on
// both the database and cache side, and carries cache-side touches back
// to the database for sessions still in use.
type SessionExpiryScheduler struct {
	sessions repository.SessionRepository
	cache    cache.CacheManager
	interval time.Duration
	logger   *log.Logger

	mu            sync.Mutex
	lastCompleted time.Time
}

// NewSessionExpiryScheduler creates a session expiry scheduler
func NewSessionExpiryScheduler(
	sessions repository.SessionRepository,
	cacheManager cache.CacheManager,
	interval time.Duration,
	logger *log.Logger,
) *SessionExpiryScheduler {
	return &SessionExpiryScheduler{
		sessions: sessions,
		cache:    cacheManager,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the expiry loop and returns a stop function
func (s *SessionExpiryScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Printf("session expiry scheduler started, interval %s", s.interval)

		for {
			select {
			case <-ctx.Done():
				s.logger.Printf("session expiry scheduler stopped")
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Printf("session expiry pass failed: %v", err)
				}
			}
		}
	}()

	return cancel
}

// RunOnce performs a single expiry pass over sessions whose durable
// deadline has passed. A session is only retired when the cache holds no
// later deadline for it; a cached touch that outran the database is
// synced back instead.
func (s *SessionExpiryScheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if !s.lastCompleted.IsZero() && time.Since(s.lastCompleted) < s.interval {
		s.mu.Unlock()
		sessionExpirySkips.Inc()
		return nil
	}
	s.mu.Unlock()

	now := utils.UTCNow()

	candidates, err := s.sessions.ListExpiryCandidates(ctx, now)
	if err != nil {
		return err
	}

	var retired, extended int
	for _, session := range candidates {
		cached, err := s.cache.FindSession(ctx, session.Key)
		if err != nil && !errors.Is(err, cache.ErrNotCached) {
			s.logger.Printf("session cache lookup failed: %v", err)
			continue
		}

		if cached != nil && cached.ExpiresAt.After(session.ExpiresAt) {
			if err := s.sessions.UpdateExpiresAt(ctx, session.ID, cached.ExpiresAt); err != nil {
				s.logger.Printf("session deadline sync failed: %v", err)
				continue
			}
			extended++
			sessionsExtended.Inc()
			continue
		}

		if err := s.sessions.MarkExpired(ctx, session.ID); err != nil {
			s.logger.Printf("session retire failed: %v", err)
			continue
		}
		if err := s.cache.RemoveSession(ctx, session.Key); err != nil {
			s.logger.Printf("session cache remove failed: %v", err)
		}
		retired++
		sessionsRetired.Inc()
	}

	s.mu.Lock()
	s.lastCompleted = time.Now()
	s.mu.Unlock()

	sessionExpiryPasses.Inc()
	if retired > 0 || extended > 0 {
		s.logger.Printf("session expiry pass retired %d, extended %d of %d candidate(s)", retired, extended, len(candidates))
	}
	return nil
}
