// Package sqlite is a database/sql backend over the pure-Go modernc SQLite
// driver. DATE and DATETIME values are stored as fixed-width UTC text so
// that lexical and chronological order agree.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
	"github.com/rpattn/rdrstore/internal/store/sqlgen"
)

// Compile-time contract assertion.
var _ store.Store = (*Store)(nil)

// Dialect binds positional parameters and encodes times as text.
var Dialect = sqlgen.Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Bind:        bindValue,
	ColumnType: func(t domain.FieldType) string {
		if t == domain.FieldTypeInteger {
			return "INTEGER"
		}
		return "TEXT"
	},
	HistoryIDType: "TEXT",
}

func bindValue(desc domain.FieldDescriptor, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if desc.Type == domain.FieldTypeDate {
		return t.Format(domain.DateLayout)
	}
	return t.UTC().Format(store.SortableDateTimeLayout)
}

// Store runs transactions against a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path. SQLite allows one
// writer, so the pool is limited to one connection.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "rdrstore.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", classify(err))
	}
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// EnsureSchema creates missing tables for the given entities.
func (s *Store) EnsureSchema(ctx context.Context, entities ...*domain.EntityDescriptor) error {
	for _, e := range entities {
		for _, stmt := range sqlgen.CreateTables(Dialect, e) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create tables for %s: %w", e.Name, classify(err))
			}
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn in a transaction, committing only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	committed = true
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Select(ctx context.Context, e *domain.EntityDescriptor, sel store.Selection) ([]domain.Record, error) {
	query, args, err := sqlgen.Select(Dialect, e, sel)
	if err != nil {
		return nil, err
	}
	return t.queryRecords(ctx, e, query, args)
}

func (t *sqlTx) queryRecords(ctx context.Context, e *domain.EntityDescriptor, query string, args []any) ([]domain.Record, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", e.Table, classify(err))
	}
	defer func() { _ = rows.Close() }()

	fields := e.Catalog.Fields()
	var out []domain.Record
	for rows.Next() {
		values := make([]any, len(fields)+1)
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.Table, err)
		}
		rec, err := recordFromValues(e, fields, values)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", e.Table, classify(err))
	}
	return out, nil
}

func recordFromValues(e *domain.EntityDescriptor, fields []domain.FieldDescriptor, values []any) (domain.Record, error) {
	raw := make(map[string]any, len(fields))
	for i, f := range fields {
		if values[i] != nil {
			raw[f.Name] = values[i]
		}
	}
	version, ok := values[len(fields)].(int64)
	if !ok {
		return domain.Record{}, fmt.Errorf("%s: unexpected version value %T", e.Table, values[len(fields)])
	}
	return store.NormalizeRecord(e, raw, version)
}

func (t *sqlTx) Count(ctx context.Context, e *domain.EntityDescriptor, where domain.Predicate) (int64, error) {
	query, args, err := sqlgen.Count(Dialect, e, where)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", e.Table, classify(err))
	}
	return n, nil
}

// Get ignores forUpdate: SQLite locks the whole database for writers.
func (t *sqlTx) Get(ctx context.Context, e *domain.EntityDescriptor, key []any, forUpdate bool) (domain.Record, bool, error) {
	query, args, err := sqlgen.Get(Dialect, e, key, false)
	if err != nil {
		return domain.Record{}, false, err
	}
	recs, err := t.queryRecords(ctx, e, query, args)
	if err != nil || len(recs) == 0 {
		return domain.Record{}, false, err
	}
	return recs[0], true, nil
}

func (t *sqlTx) Insert(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record) error {
	query, args := sqlgen.Insert(Dialect, e, rec)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", e.Table, classify(err))
	}
	return nil
}

func (t *sqlTx) Update(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record, expectedVersion int64) (bool, error) {
	query, args, err := sqlgen.Update(Dialect, e, rec, expectedVersion)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", e.Table, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s: %w", e.Table, err)
	}
	return n == 1, nil
}

func (t *sqlTx) InsertHistory(ctx context.Context, e *domain.EntityDescriptor, h domain.HistoryRecord) error {
	query, args := sqlgen.InsertHistory(Dialect, e, h)
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", e.HistoryTable, classify(err))
	}
	return nil
}

func (t *sqlTx) ListHistory(ctx context.Context, e *domain.EntityDescriptor, key []any) ([]domain.HistoryRecord, error) {
	query, args, err := sqlgen.ListHistory(Dialect, e, key)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", e.HistoryTable, classify(err))
	}
	defer func() { _ = rows.Close() }()

	fields := e.Catalog.Fields()
	var out []domain.HistoryRecord
	for rows.Next() {
		// history_id, fields..., version, change_type, changed_at
		values := make([]any, len(fields)+4)
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.HistoryTable, err)
		}
		h, err := historyFromValues(e, fields, values)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", e.HistoryTable, classify(err))
	}
	return out, nil
}

func historyFromValues(e *domain.EntityDescriptor, fields []domain.FieldDescriptor, values []any) (domain.HistoryRecord, error) {
	id, err := uuid.Parse(asString(values[0]))
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("%s: invalid history id: %w", e.HistoryTable, err)
	}
	rec, err := recordFromValues(e, fields, values[1:len(fields)+2])
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	changedAt, err := store.NormalizeValue(
		domain.FieldDescriptor{Name: sqlgen.ChangedAtColumn, Type: domain.FieldTypeDateTime},
		values[len(fields)+3],
	)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	at, _ := changedAt.(time.Time)
	return domain.HistoryRecord{
		ID:         id,
		Key:        rec.Key(e.IDFields),
		Version:    rec.Version,
		Fields:     rec.Fields,
		ChangeType: domain.ChangeType(asString(values[len(fields)+2])),
		ChangedAt:  at,
	}, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

// classify tags SQLite result codes with the store error sentinels while
// keeping the driver's message.
func classify(err error) error {
	if err == nil || store.IsTransient(err) || store.IsUniqueViolation(err) {
		return err
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch code := se.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %w", store.ErrUniqueViolation, err)
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}
	return err
}
