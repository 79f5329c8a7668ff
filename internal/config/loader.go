package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/db"
	"github.com/rpattn/rdrstore/internal/logger"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Database db.Config
	Storage  StorageConfig
	DAO      DAOConfig
	Log      logger.Config
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend    string
	SQLitePath string
}

// DAOConfig holds paging and retry limits for every Dao.
type DAOConfig struct {
	DefaultPageSize     int
	MaxPageSize         int
	MaxIDAttempts       int
	MaxTransientRetries int
}

// Options turns the DAO settings into Dao options.
func (c DAOConfig) Options() []dao.Option {
	return []dao.Option{
		dao.WithPageSizes(c.DefaultPageSize, c.MaxPageSize),
		dao.WithMaxIDAttempts(c.MaxIDAttempts),
		dao.WithMaxTransientRetries(c.MaxTransientRetries),
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Storage: StorageConfig{
			Backend:    BackendMemory,
			SQLitePath: "rdrstore.db",
		},
		DAO: DAOConfig{
			DefaultPageSize:     dao.DefaultPageSize,
			MaxPageSize:         dao.DefaultMaxPageSize,
			MaxIDAttempts:       dao.DefaultMaxIDAttempts,
			MaxTransientRetries: dao.DefaultMaxTransientRetries,
		},
		Log: logger.Config{Level: "info"},
	}
}

// Load reads config.yaml from configPath (when present) and RDR_* environment
// overrides such as RDR_DATABASE_HOST or RDR_STORAGE_BACKEND.
func Load(configPath string) (Config, error) {
	// Start with default
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("RDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // allow environment overrides

	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.isolation", cfg.Database.Isolation)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("dao.default_page_size", cfg.DAO.DefaultPageSize)
	v.SetDefault("dao.max_page_size", cfg.DAO.MaxPageSize)
	v.SetDefault("dao.max_id_attempts", cfg.DAO.MaxIDAttempts)
	v.SetDefault("dao.max_transient_retries", cfg.DAO.MaxTransientRetries)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.pretty", cfg.Log.Pretty)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg.Database = db.Config{
		Host:           v.GetString("database.host"),
		Port:           v.GetInt("database.port"),
		User:           v.GetString("database.user"),
		Password:       v.GetString("database.password"),
		DBName:         v.GetString("database.dbname"),
		SSLMode:        v.GetString("database.sslmode"),
		MaxConns:       v.GetInt32("database.max_conns"),
		Isolation:      v.GetString("database.isolation"),
		ConnectTimeout: v.GetDuration("database.connect_timeout"),
	}
	cfg.Storage = StorageConfig{
		Backend:    strings.ToLower(v.GetString("storage.backend")),
		SQLitePath: v.GetString("storage.sqlite_path"),
	}
	cfg.DAO = DAOConfig{
		DefaultPageSize:     v.GetInt("dao.default_page_size"),
		MaxPageSize:         v.GetInt("dao.max_page_size"),
		MaxIDAttempts:       v.GetInt("dao.max_id_attempts"),
		MaxTransientRetries: v.GetInt("dao.max_transient_retries"),
	}
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Pretty = v.GetBool("log.pretty")

	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if _, err := c.Database.TxOptions(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.DAO.MaxPageSize <= 0 {
		return fmt.Errorf("dao.max_page_size must be positive")
	}
	if c.DAO.DefaultPageSize <= 0 || c.DAO.DefaultPageSize > c.DAO.MaxPageSize {
		return fmt.Errorf("dao.default_page_size must be between 1 and %d", c.DAO.MaxPageSize)
	}
	if c.DAO.MaxIDAttempts <= 0 {
		return fmt.Errorf("dao.max_id_attempts must be positive")
	}
	if c.DAO.MaxTransientRetries < 0 {
		return fmt.Errorf("dao.max_transient_retries must not be negative")
	}
	return nil
}
