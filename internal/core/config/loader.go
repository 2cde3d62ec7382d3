package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	redisclient "github.com/vietddude/resync/internal/infra/redis"
	"github.com/vietddude/resync/internal/infra/remote"
	"github.com/vietddude/resync/internal/state/autosave"
	"github.com/vietddude/resync/internal/state/guard"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given: in-memory store,
// file backups under the user cache dir.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMemory
	}

	q := &cfg.Query
	d := remote.DefaultConfig
	if q.MaxRetries == 0 {
		q.MaxRetries = d.MaxRetries
	}
	if q.BaseDelay == 0 {
		q.BaseDelay = d.BaseDelay
	}
	if q.MaxDelay == 0 {
		q.MaxDelay = d.MaxDelay
	}
	if q.Timeouts.Light == 0 {
		q.Timeouts.Light = d.Timeouts.Light
	}
	if q.Timeouts.Standard == 0 {
		q.Timeouts.Standard = d.Timeouts.Standard
	}
	if q.Timeouts.Heavy == 0 {
		q.Timeouts.Heavy = d.Timeouts.Heavy
	}
	if q.BatchSize == 0 {
		q.BatchSize = d.BatchSize
	}

	if cfg.Guard.SafetyTimeout == 0 {
		cfg.Guard.SafetyTimeout = guard.DefaultConfig.SafetyTimeout
	}
	if cfg.Autosave.Delay == 0 {
		cfg.Autosave.Delay = autosave.DefaultConfig.Delay
	}

	if cfg.Backup.Driver == "" {
		cfg.Backup.Driver = BackupFile
	}
	if cfg.Backup.Dir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.Backup.Dir = filepath.Join(dir, "resync", "drafts")
	}
	if cfg.Backup.TTL == 0 {
		cfg.Backup.TTL = redisclient.DefaultBackupTTL
	}
}

// Validate checks that the selected drivers have what they need.
func (c *AppConfig) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.Database.URL == "" {
			return fmt.Errorf("store.database.url is required for the postgres driver")
		}
	case DriverREST:
		if c.Store.REST.BaseURL == "" {
			return fmt.Errorf("store.rest.base_url is required for the rest driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Backup.Driver {
	case BackupFile, BackupMemory:
	case BackupRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis backup driver")
		}
	default:
		return fmt.Errorf("unknown backup driver %q", c.Backup.Driver)
	}

	if c.Query.BatchSize < 0 {
		return fmt.Errorf("query.batch_size must not be negative")
	}
	return nil
}
