// Package guard keeps a single load in flight per resource key.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/resync/internal/infra/remote"
	"github.com/vietddude/resync/internal/state/metrics"
)

// CodeSafetyTimeout marks a load released by the safety timer.
const CodeSafetyTimeout = "guard_timeout"

// Config holds load guard settings.
type Config struct {
	SafetyTimeout time.Duration `yaml:"safety_timeout"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	SafetyTimeout: 12 * time.Second,
}

// Loader fetches the resource. The context is cancelled when the key changes.
type Loader[T any] func(ctx context.Context) remote.Result[T]

// Snapshot is the observable state of a guard.
type Snapshot[T any] struct {
	State         State
	Key           string
	LastLoadedKey string
	Data          T
	HasData       bool
	Err           *remote.ClassifiedError
	UpdatedAt     time.Time
}

// Loading reports whether a load is in flight.
func (s Snapshot[T]) Loading() bool {
	return s.State == StateLoading
}

// Guard prevents duplicate concurrent loads of the same key and discards
// results that belong to a key the caller has moved away from.
type Guard[T any] struct {
	name          string
	safetyTimeout time.Duration
	log           *slog.Logger

	mu           sync.Mutex
	snap         Snapshot[T]
	gen          uint64
	cancel       context.CancelFunc
	safety       *time.Timer
	settled      chan struct{}
	onChange     func(Snapshot[T])
	onTransition func(Transition)

	notifyMu sync.Mutex
}

// New creates a guard. name labels logs and metrics.
func New[T any](name string, cfg Config) *Guard[T] {
	if cfg.SafetyTimeout <= 0 {
		cfg.SafetyTimeout = DefaultConfig.SafetyTimeout
	}
	return &Guard[T]{
		name:          name,
		safetyTimeout: cfg.SafetyTimeout,
		log:           slog.Default().With("component", "guard", "guard", name),
		snap:          Snapshot[T]{State: StateIdle},
	}
}

// SetChangeCallback registers fn to observe every snapshot change.
// Calls are serialized and always carry the latest snapshot.
func (g *Guard[T]) SetChangeCallback(fn func(Snapshot[T])) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// SetTransitionCallback registers fn to observe state transitions.
// fn runs with the guard locked and must not call back into it.
func (g *Guard[T]) SetTransitionCallback(fn func(Transition)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTransition = fn
}

// Snapshot returns the current state.
func (g *Guard[T]) Snapshot() Snapshot[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

// Load starts loader for key unless it is already loading or loaded.
// Switching to a different key resets the guard, clears cached data and
// cancels the previous load. The returned bool reports whether a load started.
func (g *Guard[T]) Load(ctx context.Context, key string, loader Loader[T]) (Snapshot[T], bool) {
	g.mu.Lock()
	if key != g.snap.Key {
		g.resetLocked(key, "key changed")
	}

	switch g.snap.State {
	case StateLoading:
		snap := g.snap
		g.mu.Unlock()
		return snap, false
	case StateLoaded:
		if g.snap.Err == nil {
			snap := g.snap
			g.mu.Unlock()
			return snap, false
		}
	}

	return g.startLocked(ctx, loader, "load")
}

// Refresh reloads the current key even if it is already loaded.
// It is a no-op while a load is in flight or before any key was requested.
func (g *Guard[T]) Refresh(ctx context.Context, loader Loader[T]) (Snapshot[T], bool) {
	g.mu.Lock()
	if g.snap.State == StateLoading || g.snap.Key == "" {
		snap := g.snap
		g.mu.Unlock()
		return snap, false
	}
	return g.startLocked(ctx, loader, "refresh")
}

// Reset drops all state and cancels any load in flight.
func (g *Guard[T]) Reset() {
	g.mu.Lock()
	g.resetLocked("", "reset")
	g.mu.Unlock()
	g.notify()
}

// resetLocked must be called with g.mu held.
func (g *Guard[T]) resetLocked(key, reason string) {
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	if g.safety != nil {
		g.safety.Stop()
		g.safety = nil
	}
	g.gen++
	g.settleLocked()

	prev := g.snap
	g.snap = Snapshot[T]{
		State:         prev.State,
		Key:           key,
		LastLoadedKey: prev.LastLoadedKey,
		UpdatedAt:     time.Now(),
	}
	g.setStateLocked(StateIdle, reason)
}

// startLocked must be called with g.mu held; it releases the lock.
func (g *Guard[T]) startLocked(ctx context.Context, loader Loader[T], reason string) (Snapshot[T], bool) {
	if g.cancel != nil {
		g.cancel()
	}
	if g.safety != nil {
		g.safety.Stop()
	}

	g.gen++
	gen := g.gen
	loadCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.settleLocked()
	g.settled = make(chan struct{})

	g.snap.Err = nil
	g.setStateLocked(StateLoading, reason)
	g.safety = time.AfterFunc(g.safetyTimeout, func() { g.release(gen) })

	snap := g.snap
	key := g.snap.Key
	g.mu.Unlock()

	g.log.Debug("Load started", "key", key, "reason", reason)
	g.notify()

	go func() {
		g.finish(gen, key, loader(loadCtx))
	}()

	return snap, true
}

func (g *Guard[T]) finish(gen uint64, key string, res remote.Result[T]) {
	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		metrics.GuardStaleResults.WithLabelValues(g.name).Inc()
		g.log.Debug("Discarding stale load result", "key", key)
		return
	}

	if g.safety != nil {
		g.safety.Stop()
		g.safety = nil
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}

	if res.HasData {
		g.snap.Data = res.Data
		g.snap.HasData = true
		g.snap.Err = nil
	} else {
		// Keep the last good data for the same key as a fallback
		g.snap.Err = res.Err
		if g.snap.Err == nil {
			g.snap.Err = &remote.ClassifiedError{Kind: remote.KindTerminal, Message: "load returned no data"}
		}
	}
	g.snap.LastLoadedKey = key
	g.snap.UpdatedAt = time.Now()
	g.settleLocked()
	if g.snap.State != StateLoaded {
		g.setStateLocked(StateLoaded, "completed")
	}
	failed := g.snap.Err
	g.mu.Unlock()

	if failed != nil {
		g.log.Warn("Load failed", "key", key, "code", failed.Code, "error", failed.Message)
	}
	g.notify()
}

// release ends a load that outlived the safety timeout. The call itself keeps
// running and its result is still applied if nothing superseded it.
func (g *Guard[T]) release(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.snap.State != StateLoading {
		g.mu.Unlock()
		return
	}
	g.safety = nil
	g.snap.Err = &remote.ClassifiedError{
		Kind:    remote.KindTimeout,
		Code:    CodeSafetyTimeout,
		Message: fmt.Sprintf("load did not finish within %s", g.safetyTimeout),
	}
	g.snap.UpdatedAt = time.Now()
	g.setStateLocked(StateLoaded, "safety timeout")
	g.settleLocked()
	key := g.snap.Key
	g.mu.Unlock()

	metrics.GuardSafetyReleases.WithLabelValues(g.name).Inc()
	g.log.Warn("Load released by safety timeout", "key", key, "timeout", g.safetyTimeout)
	g.notify()
}

// Wait blocks until the current load settles or ctx is done.
// It returns immediately when nothing is loading.
func (g *Guard[T]) Wait(ctx context.Context) (Snapshot[T], error) {
	g.mu.Lock()
	settled := g.settled
	loading := g.snap.State == StateLoading
	snap := g.snap
	g.mu.Unlock()

	if !loading || settled == nil {
		return snap, nil
	}
	select {
	case <-settled:
		return g.Snapshot(), nil
	case <-ctx.Done():
		return g.Snapshot(), ctx.Err()
	}
}

// settleLocked wakes Wait callers. Must be called with g.mu held.
func (g *Guard[T]) settleLocked() {
	if g.settled != nil {
		close(g.settled)
		g.settled = nil
	}
}

// setStateLocked must be called with g.mu held.
func (g *Guard[T]) setStateLocked(to State, reason string) {
	from := g.snap.State
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		g.log.Error("Invalid guard transition", "from", from, "to", to, "error", ErrInvalidTransition)
	}
	g.snap.State = to
	metrics.GuardTransitions.WithLabelValues(g.name, string(to)).Inc()
	if g.onTransition != nil {
		g.onTransition(newTransition(from, to, g.snap.Key, reason))
	}
}

func (g *Guard[T]) notify() {
	g.mu.Lock()
	fn := g.onChange
	g.mu.Unlock()
	if fn == nil {
		return
	}

	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()
	fn(g.Snapshot())
}
