package remote

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/resync/internal/infra/storage"
)

func testExecutor() *Executor {
	return NewExecutor(Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeouts: Timeouts{
			Light:    50 * time.Millisecond,
			Standard: 100 * time.Millisecond,
			Heavy:    200 * time.Millisecond,
		},
		BatchSize: 3,
	})
}

// countingCall fails with errs in order, then succeeds with value.
type countingCall struct {
	calls atomic.Int32
	errs  []error
	value string
}

func (c *countingCall) do(ctx context.Context) (string, error) {
	n := int(c.calls.Add(1))
	if n <= len(c.errs) {
		return "", c.errs[n-1]
	}
	return c.value, nil
}

func TestExecuteSuccess(t *testing.T) {
	call := &countingCall{value: "ok"}
	res := Execute(context.Background(), testExecutor(), "get", call.do)

	if !res.HasData || res.Data != "ok" || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := call.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	call := &countingCall{
		errs:  []error{errors.New("connection reset"), errors.New("failed to fetch")},
		value: "ok",
	}
	res := Execute(context.Background(), testExecutor(), "get", call.do)

	if !res.HasData || res.Data != "ok" {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	if got := call.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestExecuteBoundedRetries(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 2, 4} {
		call := &countingCall{errs: make([]error, 10)}
		for i := range call.errs {
			call.errs[i] = errors.New("network error")
		}

		res := Execute(context.Background(), testExecutor(), "get", call.do, WithMaxRetries(maxRetries))

		if res.HasData {
			t.Fatalf("maxRetries=%d: expected failure", maxRetries)
		}
		if res.Err == nil || res.Err.Kind != KindRetryable {
			t.Errorf("maxRetries=%d: err = %v, want retryable", maxRetries, res.Err)
		}
		if got := int(call.calls.Load()); got != maxRetries+1 {
			t.Errorf("maxRetries=%d: calls = %d, want %d", maxRetries, got, maxRetries+1)
		}
	}
}

func TestExecuteTerminalShortCircuit(t *testing.T) {
	call := &countingCall{errs: []error{storage.UniqueViolation("duplicate key"), nil}}
	res := Execute(context.Background(), testExecutor(), "insert", call.do)

	if res.Err == nil || res.Err.Kind != KindTerminal || res.Err.Code != "23505" {
		t.Fatalf("err = %v, want terminal 23505", res.Err)
	}
	if got := call.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestExecuteAttemptTimeout(t *testing.T) {
	var calls, cancelled atomic.Int32
	slow := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-ctx.Done()
		cancelled.Add(1)
		return 0, ctx.Err()
	}

	start := time.Now()
	res := Execute(context.Background(), testExecutor(), "slow", slow,
		WithTimeout(10*time.Millisecond), WithMaxRetries(1))

	if res.Err == nil || res.Err.Kind != KindTimeout || res.Err.Code != CodeTimeout {
		t.Fatalf("err = %v, want timeout", res.Err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("took %v, attempts were not bounded by the timeout", elapsed)
	}

	deadline := time.Now().Add(time.Second)
	for cancelled.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := cancelled.Load(); got != 2 {
		t.Errorf("cancelled attempts = %d, want 2", got)
	}
}

func TestExecuteWeightSelectsTimeout(t *testing.T) {
	ex := testExecutor()
	var seen time.Duration
	probe := func(ctx context.Context) (bool, error) {
		dl, ok := ctx.Deadline()
		if !ok {
			return false, errors.New("no deadline")
		}
		seen = time.Until(dl)
		return true, nil
	}

	Execute(context.Background(), ex, "probe", probe, WithWeight(WeightHeavy))
	if seen <= ex.Config().Timeouts.Standard || seen > ex.Config().Timeouts.Heavy {
		t.Errorf("heavy attempt deadline = %v, want within (%v, %v]",
			seen, ex.Config().Timeouts.Standard, ex.Config().Timeouts.Heavy)
	}
}

func TestExecuteParentCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	call := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			cancel()
		}
		return 0, errors.New("network error")
	}

	res := Execute(ctx, testExecutor(), "cancel", call)
	if res.HasData || res.Err == nil {
		t.Fatalf("expected failure, got %+v", res)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	res := Execute(context.Background(), testExecutor(), "panic", func(ctx context.Context) (int, error) {
		panic("boom")
	})
	if res.Err == nil || res.Err.Code != CodePanic || res.Err.Kind != KindTerminal {
		t.Fatalf("err = %v, want terminal panic", res.Err)
	}
}

func TestBackoffIsLinearAndBounded(t *testing.T) {
	ex := NewExecutor(Config{BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond})
	b := ex.backoff(4)

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond, 25 * time.Millisecond}
	for i, w := range want {
		got, stop := b.Next()
		if stop {
			t.Fatalf("backoff stopped early at %d", i)
		}
		if got != w {
			t.Errorf("delay %d = %v, want %v", i+1, got, w)
		}
	}
	if _, stop := b.Next(); !stop {
		t.Error("backoff did not stop after max retries")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewExecutor(Config{}).Config()
	if cfg.MaxRetries != 2 || cfg.BaseDelay != 500*time.Millisecond || cfg.BatchSize != 50 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Timeout("unknown") != cfg.Timeouts.Standard {
		t.Errorf("unknown weight should use the standard timeout")
	}

	if got := NewExecutor(Config{MaxRetries: -1}).Config().MaxRetries; got != 0 {
		t.Errorf("negative MaxRetries = %d, want 0", got)
	}
}
