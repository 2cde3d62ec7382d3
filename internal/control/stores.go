package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/resync/internal/core/config"
	"github.com/vietddude/resync/internal/infra/backup"
	redisclient "github.com/vietddude/resync/internal/infra/redis"
	"github.com/vietddude/resync/internal/infra/storage"
	"github.com/vietddude/resync/internal/infra/storage/memory"
	"github.com/vietddude/resync/internal/infra/storage/postgres"
	"github.com/vietddude/resync/internal/infra/storage/rest"
	"github.com/vietddude/resync/internal/state/health"
)

// stores holds the repositories selected by configuration plus whatever
// connections must be closed on shutdown.
type stores struct {
	profiles  storage.ProfileRepository
	reactions storage.ReactionRepository
	drafts    storage.DraftRepository
	backup    storage.DraftBackupRepository

	mem   *memory.MemoryStorage
	db    *postgres.DB
	api   *rest.Client
	redis *redisclient.Client

	components []health.Component
}

func openStores(ctx context.Context, cfg *config.AppConfig) (*stores, error) {
	s := &stores{}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.Store.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if cfg.Store.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
		}
		s.db = db
		s.profiles = postgres.NewProfileRepo(db)
		s.reactions = postgres.NewReactionRepo(db)
		s.drafts = postgres.NewDraftRepo(db)
		s.components = append(s.components, health.Component{Name: "postgres", Critical: true, Checker: db})
		slog.Info("Using PostgreSQL storage")

	case config.DriverREST:
		api, err := rest.NewClient(cfg.Store.REST)
		if err != nil {
			return nil, fmt.Errorf("failed to init rest client: %w", err)
		}
		s.api = api
		s.profiles = rest.NewProfileRepo(api)
		s.reactions = rest.NewReactionRepo(api)
		s.drafts = rest.NewDraftRepo(api)
		s.components = append(s.components, health.Component{Name: "rest", Critical: true, Checker: api})
		slog.Info("Using REST storage", "base_url", cfg.Store.REST.BaseURL)

	default:
		s.mem = memory.NewMemoryStorage()
		s.profiles = memory.NewProfileRepo(s.mem)
		s.reactions = memory.NewReactionRepo(s.mem)
		s.drafts = memory.NewDraftRepo(s.mem)
		slog.Info("Using Memory storage")
	}

	switch cfg.Backup.Driver {
	case config.BackupRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.close()
			return nil, err
		}
		s.redis = client
		s.backup = redisclient.NewDraftBackupRepo(client, cfg.Backup.TTL)
		s.components = append(s.components, health.Component{Name: "redis", Checker: client})

	case config.BackupMemory:
		if s.mem == nil {
			s.mem = memory.NewMemoryStorage()
		}
		s.backup = memory.NewBackupRepo(s.mem)

	default:
		fs, err := backup.NewFileStore(cfg.Backup.Dir)
		if err != nil {
			s.close()
			return nil, err
		}
		s.backup = fs
	}

	return s, nil
}

func (s *stores) close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Warn("Failed to close redis", "error", err)
		}
	}
}
