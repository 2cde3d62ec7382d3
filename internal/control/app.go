package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/resync/internal/core/config"
	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/remote"
	"github.com/vietddude/resync/internal/infra/storage"
	"github.com/vietddude/resync/internal/infra/storage/memory"
	"github.com/vietddude/resync/internal/state/autosave"
	"github.com/vietddude/resync/internal/state/guard"
	"github.com/vietddude/resync/internal/state/health"
	"github.com/vietddude/resync/internal/state/reaction"
)

// App wires the executor, the stores and the client-side state components together.
type App struct {
	cfg    *config.AppConfig
	ex     *remote.Executor
	stores *stores
	log    *slog.Logger

	profile *guard.Guard[*domain.Profile]

	mu          sync.Mutex
	reconcilers map[string]*reaction.Reconciler
	editors     map[string]*autosave.Scheduler

	healthMon    *health.Monitor
	healthServer *health.Server
}

// NewApp creates an App with every dependency initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	s, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:         cfg,
		ex:          remote.NewExecutor(cfg.Query),
		stores:      s,
		log:         slog.Default().With("component", "app"),
		profile:     guard.New[*domain.Profile]("profile", cfg.Guard),
		reconcilers: make(map[string]*reaction.Reconciler),
		editors:     make(map[string]*autosave.Scheduler),
	}

	a.profile.SetTransitionCallback(func(t guard.Transition) {
		a.log.Debug("Profile guard transition", "from", t.From, "to", t.To, "reason", t.Reason)
	})

	a.healthMon = health.NewMonitor(health.DefaultCacheTTL, s.components...)
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)

	return a, nil
}

// Start runs the HTTP server and background collectors. It does not block.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.stores.db != nil {
		a.stores.db.StartMetricsCollector(ctx)
	}

	a.log.Info("Started", "port", a.cfg.Server.Port, "store", a.cfg.Store.Driver, "backup", a.cfg.Backup.Driver)
	return nil
}

// Stop flushes open drafts, then shuts down the server and connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping...")

	a.mu.Lock()
	editors := make([]*autosave.Scheduler, 0, len(a.editors))
	for _, e := range a.editors {
		editors = append(editors, e)
	}
	a.editors = make(map[string]*autosave.Scheduler)
	a.mu.Unlock()

	for _, e := range editors {
		if e.Status().Unsaved {
			if err := e.SaveNow(ctx); err != nil {
				a.log.Warn("Unsaved draft kept in backup", "draft", e.Draft().ID, "error", err)
			}
		}
		e.Close()
	}

	a.profile.Reset()
	err := a.healthServer.Stop(ctx)
	a.stores.close()
	return err
}

// Executor exposes the shared query executor.
func (a *App) Executor() *remote.Executor {
	return a.ex
}

// Health returns the current component report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// LoadProfile loads a profile through the single-flight guard and waits for it.
// Repeated calls for the loaded profile are served from the guard.
func (a *App) LoadProfile(ctx context.Context, id string) (*domain.Profile, error) {
	a.profile.Load(ctx, id, func(ctx context.Context) remote.Result[*domain.Profile] {
		return remote.Execute(ctx, a.ex, "profile.get", func(ctx context.Context) (*domain.Profile, error) {
			return a.stores.profiles.GetByID(ctx, id)
		}, remote.WithWeight(remote.WeightLight))
	})

	snap, err := a.profile.Wait(ctx)
	if err != nil {
		return nil, remote.Classify(err)
	}
	if snap.Key != id {
		return nil, &remote.ClassifiedError{
			Kind:    remote.KindTerminal,
			Code:    remote.CodeCanceled,
			Message: fmt.Sprintf("load of profile %s superseded by a newer load", id),
		}
	}
	if snap.Err != nil {
		if snap.HasData {
			a.log.Warn("Profile reload failed, showing cached copy", "id", id, "code", snap.Err.Code)
			return snap.Data, nil
		}
		return nil, snap.Err
	}
	if !snap.HasData {
		return nil, &remote.ClassifiedError{
			Kind:    remote.KindTerminal,
			Code:    remote.CodeCanceled,
			Message: fmt.Sprintf("load of profile %s did not finish", id),
		}
	}
	return snap.Data, nil
}

// ProfileSnapshot returns the guard's current view of the session profile.
func (a *App) ProfileSnapshot() guard.Snapshot[*domain.Profile] {
	return a.profile.Snapshot()
}

// Authors resolves many profile ids with batched queries. partial is true when
// some batches failed and only part of the list came back.
func (a *App) Authors(ctx context.Context, ids []string) (profiles []*domain.Profile, partial bool, err error) {
	res := remote.ExecuteBatched(ctx, a.ex, "profile.list", ids, 0, a.stores.profiles.ListByIDs)
	if res.Err != nil {
		return nil, false, res.Err
	}
	return res.Data, res.Partial, nil
}

// Reactions returns the reconciler for userID on targetID, loading its state
// from the server the first time.
func (a *App) Reactions(ctx context.Context, targetID, userID string) (*reaction.Reconciler, error) {
	key := targetID + "/" + userID

	a.mu.Lock()
	r, ok := a.reconcilers[key]
	if !ok {
		r = reaction.NewReconciler(targetID, userID, a.stores.reactions, a.ex,
			reaction.WithChangeCallback(func(s domain.ReactionState) {
				a.log.Debug("Reaction state", "target", targetID, "type", s.Type, "pending", s.Pending)
			}),
		)
		a.reconcilers[key] = r
	}
	a.mu.Unlock()

	if !ok {
		if _, err := r.Load(ctx); err != nil {
			a.mu.Lock()
			delete(a.reconcilers, key)
			a.mu.Unlock()
			return r, err
		}
	}
	return r, nil
}

// React toggles a reaction and returns the reconciled state.
func (a *App) React(ctx context.Context, targetID, userID string, t domain.ReactionType) (domain.ReactionState, error) {
	r, err := a.Reactions(ctx, targetID, userID)
	if err != nil {
		return r.State(), err
	}
	return r.Toggle(ctx, t)
}

// OpenDraft returns the autosave scheduler for a draft, loading the stored copy
// if there is one and restoring any backup left by an earlier failed save.
func (a *App) OpenDraft(ctx context.Context, id, ownerID string) (*autosave.Scheduler, error) {
	a.mu.Lock()
	if e, ok := a.editors[id]; ok {
		a.mu.Unlock()
		return e, nil
	}
	a.mu.Unlock()

	res := remote.Execute(ctx, a.ex, "draft.get", func(ctx context.Context) (*domain.Draft, error) {
		return a.stores.drafts.Get(ctx, id)
	}, remote.WithWeight(remote.WeightLight))

	var opts []autosave.Option
	draft := domain.Draft{ID: id, OwnerID: ownerID}
	switch {
	case res.Err == nil:
		draft = *res.Data
		opts = append(opts, autosave.WithPersisted())
	case res.Err.Code == storage.NotFoundCode:
	default:
		return nil, res.Err
	}
	opts = append(opts, autosave.WithChangeCallback(func(st autosave.Status) {
		a.log.Debug("Draft status", "draft", id, "unsaved", st.Unsaved, "saving", st.Saving)
	}))

	e := autosave.New(a.cfg.Autosave, draft, a.stores.drafts, a.stores.backup, a.ex, opts...)
	if restored, err := e.Recover(ctx); err != nil {
		a.log.Warn("Failed to read draft backup", "draft", id, "error", err)
	} else if restored {
		a.log.Info("Recovered unsaved draft", "draft", id)
	}

	a.mu.Lock()
	if existing, ok := a.editors[id]; ok {
		a.mu.Unlock()
		e.Close()
		return existing, nil
	}
	a.editors[id] = e
	a.mu.Unlock()
	return e, nil
}

// CloseDraft saves pending edits and forgets the scheduler.
func (a *App) CloseDraft(ctx context.Context, id string) error {
	a.mu.Lock()
	e, ok := a.editors[id]
	delete(a.editors, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	defer e.Close()
	if e.Status().Unsaved {
		return e.SaveNow(ctx)
	}
	return nil
}

// SeedDemo fills the in-memory store with a few profiles and reactions so the
// CLI has something to show. It is a no-op for other drivers.
func (a *App) SeedDemo(ctx context.Context) error {
	if a.stores.mem == nil || a.cfg.Store.Driver != config.DriverMemory {
		return nil
	}

	profiles := memory.NewProfileRepo(a.stores.mem)
	if _, err := profiles.GetByID(ctx, "u1"); err == nil {
		return nil
	}

	names := []string{"alice", "bob", "carol", "dave", "erin"}
	for i, name := range names {
		profiles.Put(&domain.Profile{
			ID:          fmt.Sprintf("u%d", i+1),
			Username:    name,
			DisplayName: name,
			UpdatedAt:   time.Now(),
		})
	}

	// u2..u5 react to post-1, alternating like and dislike
	for i := 2; i <= len(names); i++ {
		t := domain.ReactionPositive
		if i%2 == 1 {
			t = domain.ReactionNegative
		}
		if err := a.stores.reactions.Insert(ctx, &domain.Reaction{
			ID:       uuid.New(),
			TargetID: "post-1",
			UserID:   fmt.Sprintf("u%d", i),
			Type:     t,
		}); err != nil {
			return fmt.Errorf("seed reaction: %w", err)
		}
	}

	a.log.Info("Seeded demo data", "profiles", len(names))
	return nil
}
