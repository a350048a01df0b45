package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/config"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// Executor runs one prompt job end to end. Implemented by engine.Executor.
type Executor interface {
	ExecutePrompt(ctx context.Context, job models.Job)
}

// SessionStore is the session read the scheduler's cancellation check needs.
// Implemented by services.SessionService.
type SessionStore interface {
	Peek(ctx context.Context, sessionID string) (*models.Session, error)
}

// PromptStore claims prompts for execution. Implemented by
// services.PromptService.
type PromptStore interface {
	Claim(ctx context.Context, promptID string) (bool, error)
}

// Health is the scheduler snapshot reported by the health endpoint.
type Health struct {
	InFlight      int   `json:"in_flight"`
	QueueDepth    int64 `json:"queue_depth"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// Scheduler is the single dispatch loop. It pulls eligible jobs from the
// queue while respecting three gates:
//
//   - capacity: at most MaxConcurrentProcessing jobs in flight
//   - per-session serialization: one in-flight prompt per session
//   - idempotency: jobs whose prompt already left PENDING are dropped
//
// Cancellation is lazy: jobs of expired or failed sessions are discarded
// when they surface, not hunted down in the queue.
type Scheduler struct {
	queue    *PriorityQueue
	sessions SessionStore
	prompts  PromptStore
	executor Executor
	cfg      config.QueueConfig

	notifyCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]string // session ID -> prompt ID
}

// NewScheduler creates a Scheduler.
func NewScheduler(queue *PriorityQueue, sessions SessionStore, prompts PromptStore, executor Executor, cfg config.QueueConfig) *Scheduler {
	return &Scheduler{
		queue:    queue,
		sessions: sessions,
		prompts:  prompts,
		executor: executor,
		cfg:      cfg,
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		inFlight: make(map[string]string),
	}
}

// Start launches the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	slog.Info("Scheduler started",
		"max_concurrent", s.cfg.MaxConcurrentProcessing,
		"poll_interval", s.cfg.PollInterval)
}

// Stop signals the loop to exit and waits for in-flight jobs to finish, up
// to the configured drain window.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Scheduler stopped")
	case <-time.After(s.cfg.GracefulShutdownTimeout):
		slog.Warn("Scheduler drain window elapsed with jobs still in flight",
			"in_flight", s.inFlightCount())
	}
}

// Notify wakes the dispatch loop after an enqueue. Non-blocking; a pending
// wakeup is enough.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Health reports the scheduler snapshot.
func (s *Scheduler) Health(ctx context.Context) Health {
	depth, err := s.queue.Len(ctx)
	if err != nil {
		slog.Warn("Failed to read queue depth", "error", err)
	}
	return Health{
		InFlight:      s.inFlightCount(),
		QueueDepth:    depth,
		MaxConcurrent: s.cfg.MaxConcurrentProcessing,
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	// Immediate pass picks up jobs left over from before a restart.
	s.dispatch(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-s.notifyCh:
			s.dispatch(ctx)
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// dispatch pulls jobs until the queue has nothing eligible or capacity
// is exhausted.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if !s.hasCapacity() {
			return
		}

		job, ok, err := s.queue.DequeueEligible(ctx, s.sessionBusy)
		if err != nil {
			slog.Error("Failed to dequeue job", "error", err)
			return
		}
		if !ok {
			return
		}

		if !s.admit(ctx, job) {
			continue
		}

		s.startJob(ctx, job)
	}
}

// admit applies lazy cancellation and the idempotency guard.
func (s *Scheduler) admit(ctx context.Context, job *models.Job) bool {
	log := slog.With("session_id", job.SessionID, "prompt_id", job.PromptID)

	session, err := s.sessions.Peek(ctx, job.SessionID)
	if err != nil {
		log.Warn("Dropping job for unloadable session", "error", err)
		return false
	}
	if session.Status == models.SessionExpired || session.Status == models.SessionFailed ||
		session.ExpiredAt(time.Now().UTC()) {
		log.Info("Dropping job for dead session", "status", session.Status)
		return false
	}

	claimed, err := s.prompts.Claim(ctx, job.PromptID)
	if err != nil {
		log.Error("Failed to claim prompt", "error", err)
		return false
	}
	if !claimed {
		log.Info("Dropping duplicate job, prompt already claimed")
		return false
	}
	return true
}

func (s *Scheduler) startJob(ctx context.Context, job *models.Job) {
	s.mu.Lock()
	s.inFlight[job.SessionID] = job.PromptID
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, job.SessionID)
			s.mu.Unlock()
			// The freed slot may unblock a serialized same-session job.
			s.Notify()
		}()

		s.executor.ExecutePrompt(ctx, *job)
	}()
}

func (s *Scheduler) hasCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight) < s.cfg.MaxConcurrentProcessing
}

func (s *Scheduler) sessionBusy(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[sessionID]
	return busy
}

func (s *Scheduler) inFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}
