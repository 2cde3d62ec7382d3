package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/resync/internal/state/metrics"
)

// Weight is the declared cost class of a query. It selects the per-attempt timeout.
type Weight string

const (
	WeightLight    Weight = "light"
	WeightStandard Weight = "standard"
	WeightHeavy    Weight = "heavy"
)

// Timeouts holds the per-attempt timeout for each weight.
type Timeouts struct {
	Light    time.Duration `yaml:"light"`
	Standard time.Duration `yaml:"standard"`
	Heavy    time.Duration `yaml:"heavy"`
}

// Config defines retry behavior.
type Config struct {
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	Timeouts         Timeouts      `yaml:"timeouts"`
	BatchSize        int           `yaml:"batch_size"`
	BatchConcurrency int           `yaml:"batch_concurrency"` // 0 = unlimited
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxRetries: 2,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Timeouts: Timeouts{
		Light:    5 * time.Second,
		Standard: 10 * time.Second,
		Heavy:    30 * time.Second,
	},
	BatchSize: 50,
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = DefaultConfig.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultConfig.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.Timeouts.Light <= 0 {
		c.Timeouts.Light = DefaultConfig.Timeouts.Light
	}
	if c.Timeouts.Standard <= 0 {
		c.Timeouts.Standard = DefaultConfig.Timeouts.Standard
	}
	if c.Timeouts.Heavy <= 0 {
		c.Timeouts.Heavy = DefaultConfig.Timeouts.Heavy
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultConfig.BatchSize
	}
	return c
}

// Timeout returns the per-attempt timeout for w. Unknown weights get the standard timeout.
func (c Config) Timeout(w Weight) time.Duration {
	switch w {
	case WeightLight:
		return c.Timeouts.Light
	case WeightHeavy:
		return c.Timeouts.Heavy
	default:
		return c.Timeouts.Standard
	}
}

// Executor runs remote calls with per-attempt timeouts and bounded linear backoff.
// It is safe for concurrent use; each Execute call owns its own retry state.
type Executor struct {
	cfg    Config
	log    *slog.Logger
	tracer trace.Tracer
}

// NewExecutor creates an executor. Zero config fields take their defaults;
// a negative MaxRetries disables retries.
func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:    cfg.withDefaults(),
		log:    slog.Default().With("component", "executor"),
		tracer: otel.Tracer("github.com/vietddude/resync/internal/infra/remote"),
	}
}

// Config returns the effective configuration.
func (ex *Executor) Config() Config {
	return ex.cfg
}

// Option adjusts a single call.
type Option func(*callOptions)

type callOptions struct {
	weight     Weight
	timeout    time.Duration
	maxRetries int
	chunk      int
}

// WithWeight selects the per-attempt timeout class.
func WithWeight(w Weight) Option {
	return func(o *callOptions) { o.weight = w }
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) { o.timeout = d }
}

// WithMaxRetries overrides the retry count. Zero means a single attempt.
func WithMaxRetries(n int) Option {
	return func(o *callOptions) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = n
	}
}

// withChunk tags a call as chunk i of a batch. The query name, and with it the
// metric labels, stays the same for every chunk.
func withChunk(i int) Option {
	return func(o *callOptions) { o.chunk = i }
}

func (ex *Executor) callOptions(opts []Option) callOptions {
	o := callOptions{weight: WeightStandard, maxRetries: ex.cfg.MaxRetries, chunk: -1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = ex.cfg.Timeout(o.weight)
	}
	return o
}

// backoff is the linear delay sequence BaseDelay*1, BaseDelay*2, ... capped at MaxDelay,
// stopping after maxRetries values.
func (ex *Executor) backoff(maxRetries int) retry.Backoff {
	base := ex.cfg.BaseDelay
	var attempt int64
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return base * time.Duration(attempt), false
	})
	return retry.WithMaxRetries(uint64(maxRetries), retry.WithCappedDuration(ex.cfg.MaxDelay, linear))
}

// Execute runs call until it succeeds, fails terminally, or retries run out.
// It always returns exactly one Result and never panics.
func Execute[T any](
	ctx context.Context,
	ex *Executor,
	name string,
	call func(ctx context.Context) (T, error),
	opts ...Option,
) Result[T] {
	o := ex.callOptions(opts)
	start := time.Now()

	ctx, span := ex.tracer.Start(ctx, "query."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("query.name", name),
			attribute.String("query.weight", string(o.weight)),
		),
	)
	defer span.End()

	log := ex.log
	if o.chunk >= 0 {
		span.SetAttributes(attribute.Int("query.chunk", o.chunk))
		log = log.With("chunk", o.chunk)
	}

	backoff := ex.backoff(o.maxRetries)
	attempts := 0
	var lastErr *ClassifiedError

	for {
		attempts++
		metrics.QueryAttempts.WithLabelValues(name).Inc()

		data, err := runAttempt(ctx, o.timeout, call)
		if err == nil {
			ex.observe(span, name, start, attempts, nil)
			return Result[T]{Data: data, HasData: true}
		}

		lastErr = err
		metrics.QueryErrors.WithLabelValues(name, err.Kind.String()).Inc()

		if !err.Retryable() || ctx.Err() != nil {
			break
		}

		delay, stop := backoff.Next()
		if stop {
			break
		}
		if err.RetryAfter > delay {
			delay = min(err.RetryAfter, ex.cfg.MaxDelay)
		}

		log.Debug("Retrying query",
			"query", name,
			"attempt", attempts,
			"kind", err.Kind.String(),
			"code", err.Code,
			"delay", delay,
			"error", err.Message,
		)

		if !sleep(ctx, delay) {
			lastErr = &ClassifiedError{
				Kind:    KindTerminal,
				Code:    CodeCanceled,
				Message: "canceled while waiting to retry",
				Cause:   ctx.Err(),
			}
			break
		}
	}

	log.Warn("Query failed",
		"query", name,
		"attempts", attempts,
		"kind", lastErr.Kind.String(),
		"code", lastErr.Code,
		"error", lastErr.Message,
	)
	ex.observe(span, name, start, attempts, lastErr)
	return Result[T]{Err: lastErr}
}

func (ex *Executor) observe(span trace.Span, name string, start time.Time, attempts int, err *ClassifiedError) {
	span.SetAttributes(attribute.Int("query.attempts", attempts))
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.SetAttributes(
			attribute.String("query.error.kind", err.Kind.String()),
			attribute.String("query.error.code", err.Code),
			attribute.Bool("query.error.retryable", err.Retryable()),
		)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Message)
	}
	metrics.QueryLatency.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
}

// runAttempt races one call against the attempt timeout. The attempt context is
// cancelled when the timer wins so the underlying request is abandoned too.
func runAttempt[T any](
	ctx context.Context,
	timeout time.Duration,
	call func(ctx context.Context) (T, error),
) (T, *ClassifiedError) {
	var zero T

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data T
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &ClassifiedError{
					Kind:    KindTerminal,
					Code:    CodePanic,
					Message: fmt.Sprintf("query panicked: %v", r),
				}}
			}
		}()
		data, err := call(attemptCtx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.data, nil
		}
		if ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
			return zero, timeoutError(timeout)
		}
		return zero, Classify(out.err)
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, Classify(ctx.Err())
		}
		return zero, timeoutError(timeout)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
