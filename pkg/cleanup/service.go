// Package cleanup runs the background retention sweep: it expires overdue
// sessions, drops their queued jobs and prunes old event rows.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/events"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/queue"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/services"
)

// Service is the periodic retention sweeper. All of its operations are
// idempotent, so several instances sweeping concurrently is safe.
type Service struct {
	cfg      config.CleanupConfig
	sessions *services.SessionService
	queue    *queue.PriorityQueue
	events   *events.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the sweeper.
func NewService(cfg config.CleanupConfig, sessions *services.SessionService, q *queue.PriorityQueue, store *events.Store) *Service {
	return &Service{cfg: cfg, sessions: sessions, queue: q, events: store}
}

// Start launches the sweep loop. The first sweep runs immediately so a
// restart cleans up right away.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"interval", s.cfg.Interval, "event_ttl", s.cfg.EventTTL)
}

// Stop signals the loop to exit and waits for it.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full retention pass.
func (s *Service) Sweep(ctx context.Context) {
	s.expireOverdue(ctx)
	s.reconcileActiveSet(ctx)
	s.purgeEvents(ctx)
}

// expireOverdue flips sessions whose expiry passed without being read in
// the meantime, and drops their queued jobs.
func (s *Service) expireOverdue(ctx context.Context) {
	ids, err := s.sessions.OverdueIDs(ctx)
	if err != nil {
		slog.Error("Sweep: overdue session query failed", "error", err)
		return
	}
	for _, id := range ids {
		s.expire(ctx, id)
	}
	if len(ids) > 0 {
		slog.Info("Sweep: expired overdue sessions", "count", len(ids))
	}
}

// reconcileActiveSet walks the hot-tier active set and evicts entries whose
// durable row is gone, expired or overdue. Covers rows another instance
// expired without reaching Redis.
func (s *Service) reconcileActiveSet(ctx context.Context) {
	ids, err := s.sessions.ActiveIDs(ctx)
	if err != nil {
		slog.Error("Sweep: active set read failed", "error", err)
		return
	}
	now := time.Now().UTC()
	for _, id := range ids {
		session, err := s.sessions.Peek(ctx, id)
		switch {
		case errors.Is(err, services.ErrNotFound):
			s.expire(ctx, id)
		case err != nil:
			slog.Warn("Sweep: session peek failed", "session_id", id, "error", err)
		case session.Status == models.SessionExpired, session.ExpiredAt(now):
			s.expire(ctx, id)
		}
	}
}

func (s *Service) expire(ctx context.Context, sessionID string) {
	if err := s.sessions.Expire(ctx, sessionID); err != nil {
		slog.Error("Sweep: session expiry failed", "session_id", sessionID, "error", err)
		return
	}
	removed, err := s.queue.RemoveSession(ctx, sessionID)
	if err != nil {
		slog.Error("Sweep: queue cleanup failed", "session_id", sessionID, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Sweep: dropped queued jobs of expired session",
			"session_id", sessionID, "jobs", removed)
	}
}

func (s *Service) purgeEvents(ctx context.Context) {
	if s.events == nil || s.cfg.EventTTL <= 0 {
		return
	}
	purged, err := s.events.PurgeOlderThan(ctx, s.cfg.EventTTL)
	if err != nil {
		slog.Error("Sweep: event purge failed", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("Sweep: purged old events", "count", purged)
	}
}
