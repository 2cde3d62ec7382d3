package config

import (
	"time"

	redisclient "github.com/vietddude/resync/internal/infra/redis"
	"github.com/vietddude/resync/internal/infra/remote"
	"github.com/vietddude/resync/internal/infra/storage/postgres"
	"github.com/vietddude/resync/internal/infra/storage/rest"
	"github.com/vietddude/resync/internal/state/autosave"
	"github.com/vietddude/resync/internal/state/guard"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverREST     = "rest"
)

// Backup drivers.
const (
	BackupFile   = "file"
	BackupMemory = "memory"
	BackupRedis  = "redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Store    StoreConfig        `yaml:"store"`
	Redis    redisclient.Config `yaml:"redis"`
	Query    remote.Config      `yaml:"query"`
	Guard    guard.Config       `yaml:"guard"`
	Autosave autosave.Config    `yaml:"autosave"`
	Backup   BackupConfig       `yaml:"backup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StoreConfig selects the remote store the executors talk to.
type StoreConfig struct {
	Driver   string          `yaml:"driver"` // memory, postgres, rest
	Database postgres.Config `yaml:"database"`
	REST     rest.Config     `yaml:"rest"`
	Migrate  bool            `yaml:"migrate"` // apply embedded migrations on start (postgres)
}

// BackupConfig selects where unsaved draft copies go.
type BackupConfig struct {
	Driver string        `yaml:"driver"` // file, memory, redis
	Dir    string        `yaml:"dir"`
	TTL    time.Duration `yaml:"ttl"` // redis only
}
