// Package postgres runs the storage contract on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/rdrstore/internal/db"
	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
	"github.com/rpattn/rdrstore/internal/store/sqlgen"
)

// Compile-time contract assertion.
var _ store.Store = (*Store)(nil)

// SQLSTATE codes the engine reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

// Store issues queries through db.Connection transactions.
type Store struct {
	conn *db.Connection
}

// NewStore wraps an open connection.
func NewStore(conn *db.Connection) *Store {
	return &Store{conn: conn}
}

// WithTx runs fn in a pgx transaction; errors are tagged with the store
// sentinels so callers can decide on retries.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	return classify(err)
}

// EnsureSchema creates missing tables for the given entities.
func (s *Store) EnsureSchema(ctx context.Context, entities ...*domain.EntityDescriptor) error {
	for _, e := range entities {
		if err := db.ApplySchema(ctx, s.conn.Pool, sqlgen.CreateTables(sqlgen.Postgres, e)); err != nil {
			return fmt.Errorf("failed to create tables for %s: %w", e.Name, err)
		}
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Select(ctx context.Context, e *domain.EntityDescriptor, sel store.Selection) ([]domain.Record, error) {
	query, args, err := sqlgen.Select(sqlgen.Postgres, e, sel)
	if err != nil {
		return nil, err
	}
	return t.queryRecords(ctx, e, query, args)
}

func (t *pgTx) queryRecords(ctx context.Context, e *domain.EntityDescriptor, query string, args []any) ([]domain.Record, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", e.Table, classify(err))
	}
	defer rows.Close()

	fields := e.Catalog.Fields()
	var out []domain.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", e.Table, err)
		}
		rec, err := recordFromValues(e, fields, values)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", e.Table, classify(err))
	}
	return out, nil
}

func recordFromValues(e *domain.EntityDescriptor, fields []domain.FieldDescriptor, values []any) (domain.Record, error) {
	if len(values) != len(fields)+1 {
		return domain.Record{}, fmt.Errorf("%s: expected %d columns, got %d", e.Table, len(fields)+1, len(values))
	}
	raw := make(map[string]any, len(fields))
	for i, f := range fields {
		if values[i] != nil {
			raw[f.Name] = values[i]
		}
	}
	version, err := store.NormalizeValue(
		domain.FieldDescriptor{Name: sqlgen.VersionColumn, Type: domain.FieldTypeInteger},
		values[len(fields)],
	)
	if err != nil {
		return domain.Record{}, err
	}
	v, _ := version.(int64)
	return store.NormalizeRecord(e, raw, v)
}

func (t *pgTx) Count(ctx context.Context, e *domain.EntityDescriptor, where domain.Predicate) (int64, error) {
	query, args, err := sqlgen.Count(sqlgen.Postgres, e, where)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", e.Table, classify(err))
	}
	return n, nil
}

func (t *pgTx) Get(ctx context.Context, e *domain.EntityDescriptor, key []any, forUpdate bool) (domain.Record, bool, error) {
	query, args, err := sqlgen.Get(sqlgen.Postgres, e, key, forUpdate)
	if err != nil {
		return domain.Record{}, false, err
	}
	recs, err := t.queryRecords(ctx, e, query, args)
	if err != nil || len(recs) == 0 {
		return domain.Record{}, false, err
	}
	return recs[0], true, nil
}

func (t *pgTx) Insert(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record) error {
	query, args := sqlgen.Insert(sqlgen.Postgres, e, rec)
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", e.Table, classify(err))
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record, expectedVersion int64) (bool, error) {
	query, args, err := sqlgen.Update(sqlgen.Postgres, e, rec, expectedVersion)
	if err != nil {
		return false, err
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", e.Table, classify(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) InsertHistory(ctx context.Context, e *domain.EntityDescriptor, h domain.HistoryRecord) error {
	query, args := sqlgen.InsertHistory(sqlgen.Postgres, e, h)
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", e.HistoryTable, classify(err))
	}
	return nil
}

func (t *pgTx) ListHistory(ctx context.Context, e *domain.EntityDescriptor, key []any) ([]domain.HistoryRecord, error) {
	query, args, err := sqlgen.ListHistory(sqlgen.Postgres, e, key)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", e.HistoryTable, classify(err))
	}
	defer rows.Close()

	fields := e.Catalog.Fields()
	var out []domain.HistoryRecord
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", e.HistoryTable, err)
		}
		if len(values) != len(fields)+4 {
			return nil, fmt.Errorf("%s: expected %d columns, got %d", e.HistoryTable, len(fields)+4, len(values))
		}
		id, err := historyID(values[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.HistoryTable, err)
		}
		rec, err := recordFromValues(e, fields, values[1:len(fields)+2])
		if err != nil {
			return nil, err
		}
		changeType, _ := values[len(fields)+2].(string)
		changedAt, _ := values[len(fields)+3].(time.Time)
		out = append(out, domain.HistoryRecord{
			ID:         id,
			Key:        rec.Key(e.IDFields),
			Version:    rec.Version,
			Fields:     rec.Fields,
			ChangeType: domain.ChangeType(changeType),
			ChangedAt:  changedAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", e.HistoryTable, classify(err))
	}
	return out, nil
}

// pgx decodes uuid columns as [16]byte and text columns as string.
func historyID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case [16]byte:
		return uuid.UUID(id), nil
	case string:
		return uuid.Parse(id)
	}
	return uuid.UUID{}, fmt.Errorf("unexpected history id %T", v)
}

// classify tags SQLSTATE codes with the store error sentinels while keeping
// the server's message.
func classify(err error) error {
	if err == nil || store.IsTransient(err) || store.IsUniqueViolation(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", store.ErrUniqueViolation, err)
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}
	return err
}
