// Package db owns the PostgreSQL connection pool used by the postgres store.
package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/rdrstore/internal/logger"
)

// Isolation levels accepted by Config.Isolation.
const (
	IsolationReadCommitted  = "read_committed"
	IsolationRepeatableRead = "repeatable_read"
	IsolationSerializable   = "serializable"
)

var isolationLevels = map[string]pgx.TxIsoLevel{
	IsolationReadCommitted:  pgx.ReadCommitted,
	IsolationRepeatableRead: pgx.RepeatableRead,
	IsolationSerializable:   pgx.Serializable,
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	// Isolation is the level of every engine transaction. Serialization
	// failures under the stricter levels surface as transient errors.
	Isolation      string
	ConnectTimeout time.Duration
}

// DSN renders the configuration as a postgres URL.
func (c Config) DSN() string {
	query := url.Values{"sslmode": []string{c.SSLMode}}
	if c.ConnectTimeout > 0 {
		query.Set("connect_timeout", fmt.Sprint(int(c.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// TxOptions maps the configured isolation level to pgx options.
func (c Config) TxOptions() (pgx.TxOptions, error) {
	if c.Isolation == "" {
		return pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, nil
	}
	level, ok := isolationLevels[strings.ToLower(c.Isolation)]
	if !ok {
		return pgx.TxOptions{}, fmt.Errorf("unknown isolation level %q", c.Isolation)
	}
	return pgx.TxOptions{IsoLevel: level}, nil
}

// Connection wraps the database connection pool
type Connection struct {
	Pool   *pgxpool.Pool
	txOpts pgx.TxOptions
	log    *logger.Logger
}

// NewConnection opens and pings the pool. Sessions run in UTC so DATE and
// DATETIME values round-trip without a server-side zone shift.
func NewConnection(ctx context.Context, config Config, log *logger.Logger) (*Connection, error) {
	txOpts, err := config.TxOptions()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "rdrstore"

	poolConfig.MaxConns = 5
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", config.Host).
		Str("dbname", config.DBName).
		Str("isolation", string(txOpts.IsoLevel)).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Database pool ready")
	return &Connection{Pool: pool, txOpts: txOpts, log: log}, nil
}

// Close closes the database connection pool
func (c *Connection) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WithTx runs fn in one transaction at the configured isolation level. It
// commits when fn returns nil and rolls back on error or panic.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := c.Pool.BeginTx(ctx, c.txOpts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if err := tx.Rollback(ctx); err != nil {
				c.log.Error().Err(err).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           5432,
		User:           "postgres",
		Password:       "admin",
		DBName:         "rdr",
		SSLMode:        "disable",
		Isolation:      IsolationReadCommitted,
		ConnectTimeout: 10 * time.Second,
	}
}
