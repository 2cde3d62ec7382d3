// Package autosave persists an editable draft in the background after the user
// stops typing, without saving unchanged content and without losing edits.
package autosave

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/remote"
	"github.com/vietddude/resync/internal/infra/storage"
	"github.com/vietddude/resync/internal/state/metrics"
)

// Config holds autosave settings.
type Config struct {
	Delay time.Duration `yaml:"delay"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Delay: 3 * time.Second,
}

// ErrClosed is returned by SaveNow after Close.
var ErrClosed = errors.New("autosave scheduler closed")

// Status is what an editor shows next to the draft.
type Status struct {
	Unsaved     bool
	Saving      bool
	LastSavedAt time.Time
	LastError   *remote.ClassifiedError
}

type existence int

const (
	existenceUnknown existence = iota
	existenceAbsent
	existencePresent
)

// Scheduler debounces saves of one draft.
type Scheduler struct {
	cfg    Config
	repo   storage.DraftRepository
	backup storage.DraftBackupRepository
	ex     *remote.Executor
	log    *slog.Logger

	mu        sync.Mutex
	draft     domain.Draft
	current   []byte
	persisted []byte
	exists    existence
	timer     *time.Timer
	gen       uint64
	status    Status
	closed    bool
	onChange  func(Status)

	// saveMu serializes persists so two saves of the draft never overlap
	saveMu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPersisted marks the initial draft as already stored, as when it was
// loaded from the server.
func WithPersisted() Option {
	return func(s *Scheduler) {
		s.persisted = s.current
		s.exists = existencePresent
	}
}

// WithChangeCallback registers fn to observe status changes.
func WithChangeCallback(fn func(Status)) Option {
	return func(s *Scheduler) { s.onChange = fn }
}

// New creates a scheduler for draft. backup may be nil.
func New(
	cfg Config,
	draft domain.Draft,
	repo storage.DraftRepository,
	backup storage.DraftBackupRepository,
	ex *remote.Executor,
	opts ...Option,
) *Scheduler {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultConfig.Delay
	}
	s := &Scheduler{
		cfg:     cfg,
		repo:    repo,
		backup:  backup,
		ex:      ex,
		log:     slog.Default().With("component", "autosave", "draft", draft.ID),
		draft:   draft.Clone(),
		current: Snapshot(draft),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Unsaved = !bytes.Equal(s.current, s.persisted)
	return s
}

// Status returns the current save status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Draft returns the latest local draft.
func (s *Scheduler) Draft() domain.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Update records an edit. If the content matches what was last persisted any
// pending save is cancelled; otherwise the debounce timer restarts.
func (s *Scheduler) Update(d domain.Draft) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	d.ID = s.draft.ID
	if d.OwnerID == "" {
		d.OwnerID = s.draft.OwnerID
	}
	s.draft = d.Clone()
	s.current = Snapshot(d)
	s.stopTimerLocked()

	if bytes.Equal(s.current, s.persisted) {
		s.status.Unsaved = false
		s.mu.Unlock()
		metrics.AutosaveSkipped.Inc()
		s.notify()
		return
	}

	s.status.Unsaved = true
	s.scheduleLocked()
	s.mu.Unlock()
	s.notify()
}

// SaveNow cancels the pending timer and saves synchronously.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopTimerLocked()
	s.mu.Unlock()

	return s.persist(ctx, "manual")
}

// Recover restores a backup copy left by a failed save and schedules it.
// It reports whether anything was restored.
func (s *Scheduler) Recover(ctx context.Context) (bool, error) {
	if s.backup == nil {
		return false, nil
	}
	id := s.Draft().ID
	saved, err := s.backup.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if saved == nil {
		return false, nil
	}

	s.mu.Lock()
	same := bytes.Equal(Snapshot(*saved), s.persisted)
	s.mu.Unlock()
	if same {
		return false, s.backup.Clear(ctx, id)
	}

	s.log.Info("Restoring unsaved draft from backup")
	s.Update(*saved)
	return true, nil
}

// Close stops the timer. Edits after Close are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.closed = true
}

// scheduleLocked starts the debounce timer for the current generation.
// It must be called with s.mu held.
func (s *Scheduler) scheduleLocked() {
	gen := s.gen
	s.timer = time.AfterFunc(s.cfg.Delay, func() { s.fire(gen) })
}

// stopTimerLocked must be called with s.mu held.
func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// A timer that already fired sees a newer generation and does nothing
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	_ = s.persist(context.Background(), "debounce")
}

func (s *Scheduler) persist(ctx context.Context, trigger string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if bytes.Equal(s.current, s.persisted) {
		s.status.Unsaved = false
		s.mu.Unlock()
		return nil
	}
	d := s.draft.Clone()
	snap := s.current
	exists := s.exists
	s.status.Saving = true
	s.mu.Unlock()
	s.notify()

	exists, cerr := s.write(ctx, &d, exists)

	s.mu.Lock()
	s.exists = exists
	s.status.Saving = false
	if cerr == nil {
		s.persisted = snap
		s.status.LastSavedAt = time.Now()
		s.status.LastError = nil
	} else {
		s.status.LastError = cerr
	}
	s.status.Unsaved = !bytes.Equal(s.current, s.persisted)
	// The draft moved away from what was just written and nothing is scheduled
	// to catch up, e.g. the user reverted while this save was in flight
	if cerr == nil && s.status.Unsaved && !s.closed && s.timer == nil {
		s.scheduleLocked()
	}
	s.mu.Unlock()

	if cerr != nil {
		metrics.AutosaveOutcomes.WithLabelValues(trigger, "error").Inc()
		s.log.Warn("Draft save failed, keeping local copy",
			"trigger", trigger,
			"code", cerr.Code,
			"error", cerr.Message,
		)
		if s.backup != nil {
			if err := s.backup.Put(ctx, &d); err != nil {
				s.log.Error("Failed to write draft backup", "error", err)
			}
		}
		s.notify()
		return cerr
	}

	metrics.AutosaveOutcomes.WithLabelValues(trigger, "success").Inc()
	s.log.Debug("Draft saved", "trigger", trigger)
	if s.backup != nil {
		if err := s.backup.Clear(ctx, d.ID); err != nil {
			s.log.Warn("Failed to clear draft backup", "error", err)
		}
	}
	s.notify()
	return nil
}

// write creates or updates d and returns what is now known about its existence.
func (s *Scheduler) write(ctx context.Context, d *domain.Draft, exists existence) (existence, *remote.ClassifiedError) {
	if exists == existenceUnknown {
		res := remote.Execute(ctx, s.ex, "draft.get", func(ctx context.Context) (*domain.Draft, error) {
			return s.repo.Get(ctx, d.ID)
		}, remote.WithWeight(remote.WeightLight))
		switch {
		case res.Err == nil:
			exists = existencePresent
		case res.Err.Code == storage.NotFoundCode:
			exists = existenceAbsent
		default:
			return existenceUnknown, res.Err
		}
	}

	if exists == existenceAbsent {
		res := remote.Execute(ctx, s.ex, "draft.create", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.repo.Create(ctx, d)
		})
		if res.Err != nil {
			if res.Err.Code == storage.CodeUniqueViolation {
				// Someone else created it; check again next time
				return existenceUnknown, res.Err
			}
			return existenceAbsent, res.Err
		}
		return existencePresent, nil
	}

	res := remote.Execute(ctx, s.ex, "draft.update", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.Update(ctx, d)
	})
	if res.Err != nil {
		if res.Err.Code == storage.NotFoundCode {
			return existenceUnknown, res.Err
		}
		return existencePresent, res.Err
	}
	return existencePresent, nil
}

func (s *Scheduler) notify() {
	s.mu.Lock()
	fn, st := s.onChange, s.status
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
