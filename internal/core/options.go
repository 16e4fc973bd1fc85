package core

import (
	"context"
	"time"

	"labdoc/internal/ledger"
	"labdoc/pkg/migrate"
)

// Logger is the minimal structured logging surface used by the service.
// *slog.Logger satisfies it.
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

// MetricsRecorder observes the duration and result of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// MigrationObserver is implemented by recorders that also count document
// outcomes and applied patches. The service calls it for every migrated
// document in addition to Observe.
type MigrationObserver interface {
	ObserveMigration(ctx context.Context, operation string, outcome ledger.Status, applied []migrate.Step)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the result recorded in an audit entry.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service operation.
type AuditEntry struct {
	Operation string
	Key       string
	From      string
	To        string
	Status    AuditStatus
	Error     string
	Timestamp time.Time
	Duration  time.Duration
}

// AuditRecorder receives an entry for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
	ledger  ledger.Ledger
	dryRun  bool
}

func defaultOptions() serviceOptions {
	return serviceOptions{
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		clock:   systemClock{},
	}
}

// WithLogger sets the service logger. A nil logger disables logging.
func WithLogger(l Logger) Option {
	return func(o *serviceOptions) {
		if l == nil {
			l = noopLogger{}
		}
		o.logger = l
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if m == nil {
			m = noopMetrics{}
		}
		o.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(o *serviceOptions) {
		if t == nil {
			t = noopTracer{}
		}
		o.tracer = t
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(o *serviceOptions) {
		if a == nil {
			a = noopAudit{}
		}
		o.audit = a
	}
}

// WithClock overrides the clock used for timestamps and durations.
func WithClock(c Clock) Option {
	return func(o *serviceOptions) {
		if c == nil {
			c = systemClock{}
		}
		o.clock = c
	}
}

// WithLedger records every stored-document migration in l.
func WithLedger(l ledger.Ledger) Option {
	return func(o *serviceOptions) { o.ledger = l }
}

// WithDryRun makes the service compute migrations without writing documents
// or ledger records.
func WithDryRun(dry bool) Option {
	return func(o *serviceOptions) { o.dryRun = dry }
}
