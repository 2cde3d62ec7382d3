package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/storage"
)

type MemoryStorage struct {
	profiles  map[string]*domain.Profile
	reactions map[string]*domain.Reaction // targetID + "/" + userID
	drafts    map[string]*domain.Draft
	backups   map[string]*domain.Draft
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		profiles:  make(map[string]*domain.Profile),
		reactions: make(map[string]*domain.Reaction),
		drafts:    make(map[string]*domain.Draft),
		backups:   make(map[string]*domain.Draft),
	}
}

func reactionKey(targetID, userID string) string {
	return targetID + "/" + userID
}

// -----------------------------------------------------------------------------
// Profile Repository
// -----------------------------------------------------------------------------

type ProfileRepo struct {
	store *MemoryStorage
}

func NewProfileRepo(store *MemoryStorage) *ProfileRepo {
	return &ProfileRepo{store: store}
}

// Put seeds a profile. Used by the CLI demo data and tests.
func (r *ProfileRepo) Put(p *domain.Profile) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *p
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	r.store.profiles[p.ID] = &cp
}

func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	p, ok := r.store.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *ProfileRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.store.profiles[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Reaction Repository
// -----------------------------------------------------------------------------

type ReactionRepo struct {
	store *MemoryStorage
}

func NewReactionRepo(store *MemoryStorage) *ReactionRepo {
	return &ReactionRepo{store: store}
}

func (r *ReactionRepo) GetUserReaction(ctx context.Context, targetID, userID string) (*domain.Reaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rx, ok := r.store.reactions[reactionKey(targetID, userID)]
	if !ok {
		return nil, nil
	}
	cp := *rx
	return &cp, nil
}

func (r *ReactionRepo) Insert(ctx context.Context, rx *domain.Reaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := reactionKey(rx.TargetID, rx.UserID)
	if _, ok := r.store.reactions[key]; ok {
		return storage.UniqueViolation("duplicate key value violates unique constraint \"reactions_target_user_key\"")
	}
	cp := *rx
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.reactions[key] = &cp
	return nil
}

func (r *ReactionRepo) UpdateType(ctx context.Context, targetID, userID string, t domain.ReactionType) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rx, ok := r.store.reactions[reactionKey(targetID, userID)]
	if !ok {
		return fmt.Errorf("reaction %s/%s: %w", targetID, userID, storage.ErrNotFound)
	}
	rx.Type = t
	return nil
}

func (r *ReactionRepo) Delete(ctx context.Context, targetID, userID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := reactionKey(targetID, userID)
	if _, ok := r.store.reactions[key]; !ok {
		return fmt.Errorf("reaction %s/%s: %w", targetID, userID, storage.ErrNotFound)
	}
	delete(r.store.reactions, key)
	return nil
}

func (r *ReactionRepo) Counts(ctx context.Context, targetID string) (domain.ReactionCounts, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var c domain.ReactionCounts
	for _, rx := range r.store.reactions {
		if rx.TargetID != targetID {
			continue
		}
		switch rx.Type {
		case domain.ReactionPositive:
			c.Positive++
		case domain.ReactionNegative:
			c.Negative++
		}
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Draft Repository
// -----------------------------------------------------------------------------

type DraftRepo struct {
	store *MemoryStorage
}

func NewDraftRepo(store *MemoryStorage) *DraftRepo {
	return &DraftRepo{store: store}
}

func (r *DraftRepo) Get(ctx context.Context, id string) (*domain.Draft, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	d, ok := r.store.drafts[id]
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, storage.ErrNotFound)
	}
	cp := d.Clone()
	return &cp, nil
}

func (r *DraftRepo) Create(ctx context.Context, d *domain.Draft) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.drafts[d.ID]; ok {
		return storage.UniqueViolation("duplicate key value violates unique constraint \"drafts_pkey\"")
	}
	cp := d.Clone()
	cp.UpdatedAt = time.Now()
	r.store.drafts[d.ID] = &cp
	return nil
}

func (r *DraftRepo) Update(ctx context.Context, d *domain.Draft) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	existing, ok := r.store.drafts[d.ID]
	if !ok {
		return fmt.Errorf("draft %s: %w", d.ID, storage.ErrNotFound)
	}
	if existing.OwnerID != "" && d.OwnerID != existing.OwnerID {
		return storage.PermissionDenied("permission denied for table drafts")
	}
	cp := d.Clone()
	cp.UpdatedAt = time.Now()
	r.store.drafts[d.ID] = &cp
	return nil
}

// -----------------------------------------------------------------------------
// Draft Backup Repository
// -----------------------------------------------------------------------------

type BackupRepo struct {
	store *MemoryStorage
}

func NewBackupRepo(store *MemoryStorage) *BackupRepo {
	return &BackupRepo{store: store}
}

func (r *BackupRepo) Put(ctx context.Context, d *domain.Draft) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := d.Clone()
	r.store.backups[d.ID] = &cp
	return nil
}

func (r *BackupRepo) Get(ctx context.Context, id string) (*domain.Draft, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	d, ok := r.store.backups[id]
	if !ok {
		return nil, nil
	}
	cp := d.Clone()
	return &cp, nil
}

func (r *BackupRepo) Clear(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.backups, id)
	return nil
}
