// Package core implements the association engine: entity, collection and
// attribute operations that keep reciprocal references consistent across
// documents without cross-document transactions.
package core

import (
	"context"
	"errors"
	"fmt"
	"labcore/internal/blob"
	"labcore/internal/ident"
	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
	"time"

	"github.com/go-playground/validator/v10"
)

// Logger is the structured logging surface the service writes to. It matches
// the method set of *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes the outcome and latency of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is finished with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ClockFunc returns the current time.
type ClockFunc func() time.Time

// Now calls the function.
func (f ClockFunc) Now() time.Time { return f() }

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(clock ClockFunc) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithIDAllocator overrides identifier allocation.
func WithIDAllocator(ids ident.Allocator) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithActivityRecorder sets where activity entries are sent.
func WithActivityRecorder(recorder ActivityRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.activity = recorder
		}
	}
}

// WithBlobStore enables attachment uploads and resolution.
func WithBlobStore(store blob.Store) Option {
	return func(s *Service) {
		s.blobs = store
	}
}

// WithRulesEngine replaces the integrity rules used by Audit and Reconcile.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *Service) {
		if engine != nil {
			s.rules = engine
		}
	}
}

// Service exposes the association engine operations.
type Service struct {
	store    domain.DocumentStore
	blobs    blob.Store
	ids      ident.Allocator
	activity ActivityRecorder
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	now      ClockFunc
	validate *validator.Validate
	rules    *domain.RulesEngine
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.DocumentStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		ids:      ident.UUIDAllocator{},
		activity: noopActivity{},
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		now:      func() time.Time { return time.Now().UTC() },
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rules:    DefaultRules(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Store returns the underlying document store.
func (s *Service) Store() domain.DocumentStore {
	return s.store
}

// observe runs fn inside a span, records its metrics and logs its outcome.
func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "operation", op)
	case isExpected(err):
		s.logger.Info("operation rejected", "operation", op, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return err
}

// isExpected reports errors caused by caller input rather than the store.
func isExpected(err error) bool {
	var partial *PartialLinkError
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadyAssociated) ||
		errors.Is(err, domain.ErrNotAssociated) ||
		errors.Is(err, domain.ErrInvalid) ||
		errors.Is(err, domain.ErrCycle) ||
		errors.As(err, &partial)
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	return nil
}

type actorKey struct{}

// ContextWithActor attaches the acting user to ctx for activity records.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user, or "" when none is attached.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func (s *Service) loadEntity(ctx context.Context, id string) (domain.Entity, error) {
	e, ok, err := s.store.Entities().FindOne(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	if !ok {
		return domain.Entity{}, domain.NotFound(domain.KindEntity, id)
	}
	return e, nil
}

func (s *Service) loadCollection(ctx context.Context, id string) (domain.Collection, error) {
	c, ok, err := s.store.Collections().FindOne(ctx, id)
	if err != nil {
		return domain.Collection{}, err
	}
	if !ok {
		return domain.Collection{}, domain.NotFound(domain.KindCollection, id)
	}
	return c, nil
}

func (s *Service) loadAttribute(ctx context.Context, id string) (domain.Attribute, error) {
	a, ok, err := s.store.Attributes().FindOne(ctx, id)
	if err != nil {
		return domain.Attribute{}, err
	}
	if !ok {
		return domain.Attribute{}, domain.NotFound(domain.KindAttribute, id)
	}
	return a, nil
}

// patchEntity applies patch and maps an unmatched update to NotFound.
func (s *Service) patchEntity(ctx context.Context, id string, patch domain.EntityPatch) (domain.UpdateResult, error) {
	res, err := s.store.Entities().UpdateOne(ctx, id, patch)
	if err != nil {
		return res, err
	}
	if res.Matched == 0 {
		return res, domain.NotFound(domain.KindEntity, id)
	}
	return res, nil
}

func (s *Service) patchCollection(ctx context.Context, id string, patch domain.CollectionPatch) (domain.UpdateResult, error) {
	res, err := s.store.Collections().UpdateOne(ctx, id, patch)
	if err != nil {
		return res, err
	}
	if res.Matched == 0 {
		return res, domain.NotFound(domain.KindCollection, id)
	}
	return res, nil
}
