// Package reaction applies reaction toggles optimistically and reconciles them
// with the server once the mutation settles.
package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/remote"
	"github.com/vietddude/resync/internal/infra/storage"
	"github.com/vietddude/resync/internal/state/metrics"
)

var (
	// ErrMutationPending is returned when a toggle arrives before the previous one settled.
	ErrMutationPending = errors.New("reaction change already in progress")

	// ErrInvalidReaction is returned for a toggle to ReactionNone or an unknown type.
	ErrInvalidReaction = errors.New("invalid reaction type")
)

// Next returns the displayed state after toggling t.
// Toggling the current type clears it; toggling the other polarity switches.
func Next(s domain.ReactionState, t domain.ReactionType) domain.ReactionState {
	out := s
	if t == domain.ReactionNone || !t.Valid() {
		return out
	}

	if s.Type == t {
		out.Type = domain.ReactionNone
		adjust(&out, t, -1)
		return out
	}

	if s.Type != domain.ReactionNone {
		adjust(&out, s.Type, -1)
	}
	out.Type = t
	adjust(&out, t, +1)
	return out
}

// adjust moves one count by delta. Counts floor at zero so a stale local view
// never displays a negative total; rollback restores the exact prior values.
func adjust(s *domain.ReactionState, t domain.ReactionType, delta int) {
	switch t {
	case domain.ReactionPositive:
		s.PositiveCount = max(0, s.PositiveCount+delta)
	case domain.ReactionNegative:
		s.NegativeCount = max(0, s.NegativeCount+delta)
	}
}

// Reconciler owns the displayed reaction state of one user on one target.
type Reconciler struct {
	targetID string
	userID   string
	repo     storage.ReactionRepository
	ex       *remote.Executor
	log      *slog.Logger

	mu       sync.Mutex
	state    domain.ReactionState
	version  uint64
	onChange func(domain.ReactionState)

	refreshes singleflight.Group
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInitialState seeds the displayed state, usually from a list query.
func WithInitialState(s domain.ReactionState) Option {
	return func(r *Reconciler) {
		s.Pending = false
		r.state = s
	}
}

// WithChangeCallback registers fn to observe every state change.
func WithChangeCallback(fn func(domain.ReactionState)) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

// NewReconciler creates a reconciler for userID's reaction on targetID.
func NewReconciler(
	targetID, userID string,
	repo storage.ReactionRepository,
	ex *remote.Executor,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		targetID: targetID,
		userID:   userID,
		repo:     repo,
		ex:       ex,
		log:      slog.Default().With("component", "reaction", "target", targetID),
		state:    domain.ReactionState{Type: domain.ReactionNone},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the displayed state.
func (r *Reconciler) State() domain.ReactionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Toggle applies t locally, issues the mutation and reconciles with the server.
// On failure the exact pre-toggle state is restored and the error returned.
func (r *Reconciler) Toggle(ctx context.Context, t domain.ReactionType) (domain.ReactionState, error) {
	if t == domain.ReactionNone || !t.Valid() {
		return r.State(), fmt.Errorf("%w: %q", ErrInvalidReaction, t)
	}

	r.mu.Lock()
	if r.state.Pending {
		s := r.state
		r.mu.Unlock()
		return s, ErrMutationPending
	}
	prev := r.state
	optimistic := Next(prev, t)
	optimistic.Pending = true
	r.state = optimistic
	r.version++
	r.mu.Unlock()
	r.notify()

	op, mutate := r.mutation(prev.Type, optimistic.Type)
	res := remote.Execute(ctx, r.ex, "reaction."+op, mutate, remote.WithWeight(remote.WeightLight))
	if res.Err != nil {
		metrics.ReactionMutations.WithLabelValues(op, "rollback").Inc()
		r.log.Warn("Reaction change failed, rolling back",
			"op", op,
			"code", res.Err.Code,
			"error", res.Err.Message,
		)
		s := r.settle(domain.ReactionState{
			Type:          prev.Type,
			PositiveCount: prev.PositiveCount,
			NegativeCount: prev.NegativeCount,
		})

		if serverDisagrees(res.Err) {
			go func() {
				if _, err := r.Refresh(context.WithoutCancel(ctx)); err != nil {
					r.log.Debug("Refresh after rejected change failed", "error", err)
				}
			}()
		}
		return s, res.Err
	}
	metrics.ReactionMutations.WithLabelValues(op, "success").Inc()

	// Read back the authoritative state. This fetch is direct so it can't join
	// a background refresh that started before the mutation.
	view := remote.Execute(ctx, r.ex, "reaction.confirm", r.fetchView, remote.WithWeight(remote.WeightLight))
	if view.Err != nil {
		r.log.Debug("Confirm fetch failed, keeping optimistic state", "error", view.Err.Message)
		optimistic.Pending = false
		return r.settle(optimistic), nil
	}
	return r.settle(stateFromView(view.Data)), nil
}

// settle replaces the state and clears the pending flag.
func (r *Reconciler) settle(s domain.ReactionState) domain.ReactionState {
	s.Pending = false
	r.mu.Lock()
	r.state = s
	r.version++
	r.mu.Unlock()
	r.notify()
	return s
}

func (r *Reconciler) mutation(from, to domain.ReactionType) (string, func(context.Context) (struct{}, error)) {
	switch {
	case to == domain.ReactionNone:
		return "delete", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.repo.Delete(ctx, r.targetID, r.userID)
		}
	case from == domain.ReactionNone:
		rx := &domain.Reaction{
			ID:       uuid.New(),
			TargetID: r.targetID,
			UserID:   r.userID,
			Type:     to,
		}
		return "insert", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.repo.Insert(ctx, rx)
		}
	default:
		return "update", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.repo.UpdateType(ctx, r.targetID, r.userID, to)
		}
	}
}

func (r *Reconciler) fetchView(ctx context.Context) (domain.ReactionView, error) {
	own, err := r.repo.GetUserReaction(ctx, r.targetID, r.userID)
	if err != nil {
		return domain.ReactionView{}, fmt.Errorf("get user reaction: %w", err)
	}
	counts, err := r.repo.Counts(ctx, r.targetID)
	if err != nil {
		return domain.ReactionView{}, fmt.Errorf("count reactions: %w", err)
	}

	view := domain.ReactionView{Type: domain.ReactionNone, Counts: counts}
	if own != nil {
		view.Type = own.Type
	}
	return view, nil
}

type refreshResult struct {
	view    domain.ReactionView
	version uint64
}

// Refresh fetches server state and applies it unless a local change is pending
// or happened after the fetch began. Concurrent refreshes share one fetch.
func (r *Reconciler) Refresh(ctx context.Context) (bool, error) {
	if r.pending() {
		metrics.ReactionRefreshSuppressed.Inc()
		return false, nil
	}

	v, err, _ := r.refreshes.Do(r.targetID, func() (any, error) {
		r.mu.Lock()
		version := r.version
		r.mu.Unlock()

		res := remote.Execute(ctx, r.ex, "reaction.refresh", r.fetchView, remote.WithWeight(remote.WeightLight))
		if res.Err != nil {
			return nil, res.Err
		}
		return refreshResult{view: res.Data, version: version}, nil
	})
	if err != nil {
		return false, err
	}

	rr := v.(refreshResult)
	r.mu.Lock()
	if r.state.Pending || r.version != rr.version {
		r.mu.Unlock()
		metrics.ReactionRefreshSuppressed.Inc()
		r.log.Debug("Discarding refresh that raced a local change")
		return false, nil
	}
	r.state = stateFromView(rr.view)
	r.mu.Unlock()
	r.notify()
	return true, nil
}

// Load fetches the initial state for a reconciler created without one.
func (r *Reconciler) Load(ctx context.Context) (domain.ReactionState, error) {
	_, err := r.Refresh(ctx)
	return r.State(), err
}

// ApplyRefresh applies server state pushed from elsewhere, such as a list reload.
// It is ignored while a local change is pending.
func (r *Reconciler) ApplyRefresh(view domain.ReactionView) bool {
	r.mu.Lock()
	if r.state.Pending {
		r.mu.Unlock()
		metrics.ReactionRefreshSuppressed.Inc()
		return false
	}
	r.state = stateFromView(view)
	r.version++
	r.mu.Unlock()
	r.notify()
	return true
}

func (r *Reconciler) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Pending
}

func (r *Reconciler) notify() {
	if r.onChange != nil {
		r.onChange(r.State())
	}
}

func stateFromView(v domain.ReactionView) domain.ReactionState {
	t := v.Type
	if !t.Valid() {
		t = domain.ReactionNone
	}
	return domain.ReactionState{
		Type:          t,
		PositiveCount: v.Counts.Positive,
		NegativeCount: v.Counts.Negative,
	}
}

// serverDisagrees reports failures caused by stale local state.
func serverDisagrees(err *remote.ClassifiedError) bool {
	return err.Code == storage.CodeUniqueViolation || err.Code == storage.NotFoundCode
}
