package core

import (
	"context"
	"errors"
	"labcore/pkg/domain"
	"sync"
	"time"
)

// ActivityRecorder receives an entry after each state-changing operation.
// Record must not block the caller for long and never reports failure.
type ActivityRecorder interface {
	Record(ctx context.Context, activity domain.Activity)
}

type noopActivity struct{}

func (noopActivity) Record(context.Context, domain.Activity) {}

// record builds an activity entry for the current actor and hands it to the
// recorder.
func (s *Service) record(ctx context.Context, action domain.Action, kind domain.Kind, id, name, details string) {
	s.activity.Record(ctx, domain.Activity{
		ID:        s.ids.NewID(domain.KindActivity),
		Timestamp: s.now(),
		Type:      action,
		Actor:     ActorFromContext(ctx),
		Details:   details,
		Target:    domain.ActivityTarget{ID: id, Type: kind, Name: name},
	})
}

const defaultActivityQueue = 256

// ErrActivityLogStopped is returned by Stop when called twice.
var ErrActivityLogStopped = errors.New("activity log stopped")

// ActivityLog persists activity entries from a single background worker.
// Entries arriving while the queue is full, or after Stop, are dropped with a
// warning.
type ActivityLog struct {
	store   domain.DocumentCollection[domain.Activity]
	logger  Logger
	timeout time.Duration
	queue   chan domain.Activity
	done    chan struct{}

	mu      sync.RWMutex
	stopped bool
	start   sync.Once
}

// ActivityLogOption configures an ActivityLog.
type ActivityLogOption func(*ActivityLog)

// WithActivityQueueSize bounds the number of pending entries.
func WithActivityQueueSize(n int) ActivityLogOption {
	return func(l *ActivityLog) {
		if n > 0 {
			l.queue = make(chan domain.Activity, n)
		}
	}
}

// WithActivityLogger sets where dropped and failed entries are reported.
func WithActivityLogger(logger Logger) ActivityLogOption {
	return func(l *ActivityLog) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithActivityWriteTimeout bounds each insert.
func WithActivityWriteTimeout(d time.Duration) ActivityLogOption {
	return func(l *ActivityLog) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// NewActivityLog returns a log writing to store. Call Start before use.
func NewActivityLog(store domain.DocumentCollection[domain.Activity], opts ...ActivityLogOption) *ActivityLog {
	l := &ActivityLog{
		store:   store,
		logger:  noopLogger{},
		timeout: 5 * time.Second,
		queue:   make(chan domain.Activity, defaultActivityQueue),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the worker. Further calls do nothing.
func (l *ActivityLog) Start() {
	l.start.Do(func() { go l.run() })
}

func (l *ActivityLog) run() {
	defer close(l.done)
	for a := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		if err := l.store.InsertOne(ctx, a); err != nil {
			l.logger.Warn("record activity failed", "activity_id", a.ID, "target_id", a.Target.ID, "error", err)
		}
		cancel()
	}
}

// Record queues a for the worker without waiting.
func (l *ActivityLog) Record(_ context.Context, a domain.Activity) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		l.logger.Warn("activity dropped after stop", "activity_id", a.ID)
		return
	}
	select {
	case l.queue <- a:
	default:
		l.logger.Warn("activity queue full, dropping entry", "activity_id", a.ID, "target_id", a.Target.ID)
	}
}

// Stop closes the queue and waits until queued entries are written or ctx is
// done.
func (l *ActivityLog) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrActivityLogStopped
	}
	l.stopped = true
	close(l.queue)
	l.mu.Unlock()
	l.Start()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
