package dao

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
)

// UpdateOptions controls the optimistic version check of an update.
type UpdateOptions struct {
	// ExpectedVersion, when set, must equal the stored version.
	ExpectedVersion *int64
	// LockForUpdate reads the stored row with a row lock.
	LockForUpdate bool
}

// ExpectVersion is a helper for UpdateOptions.ExpectedVersion.
func ExpectVersion(v int64) UpdateOptions {
	return UpdateOptions{ExpectedVersion: &v}
}

// Insert stores a new record at version 1 and appends its INSERT history
// row in the same transaction. A unique violation is returned to the caller.
func (d *Dao) Insert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	fields, err := d.prepare(rec)
	if err != nil {
		return domain.Record{}, err
	}
	var out domain.Record
	err = d.retryTransient(ctx, "insert", func(tx store.Tx) error {
		var err error
		out, err = d.insertTx(ctx, tx, fields)
		return err
	})
	return out, err
}

// Update applies candidate on top of the stored record, bumps its version
// and appends an UPDATE history row, all in one transaction. ID fields
// select the row and are never changed.
func (d *Dao) Update(ctx context.Context, candidate domain.Record, opts UpdateOptions) (domain.Record, error) {
	if !d.entity.SupportsUpdate {
		return domain.Record{}, validationf("%s does not support updates", d.entity.Name)
	}
	fields, err := d.prepare(candidate)
	if err != nil {
		return domain.Record{}, err
	}
	key := domain.Record{Fields: fields}.Key(d.entity.IDFields)

	var out domain.Record
	err = d.retryTransient(ctx, "update", func(tx store.Tx) error {
		stored, found, err := tx.Get(ctx, d.entity, key, opts.LockForUpdate)
		if err != nil {
			return err
		}
		if !found {
			return &NotFoundError{Entity: d.entity.Name, Key: key}
		}
		if opts.ExpectedVersion != nil && *opts.ExpectedVersion != stored.Version {
			return d.conflict(key, *opts.ExpectedVersion, stored.Version)
		}
		out, err = d.updateTx(ctx, tx, stored, fields)
		return err
	})
	return out, err
}

// Upsert inserts the record when absent and otherwise updates it without a
// version check.
func (d *Dao) Upsert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if !d.entity.SupportsUpsert {
		return domain.Record{}, validationf("%s does not support upsert", d.entity.Name)
	}
	fields, err := d.prepare(rec)
	if err != nil {
		return domain.Record{}, err
	}
	key := domain.Record{Fields: fields}.Key(d.entity.IDFields)

	var out domain.Record
	err = d.retryTransient(ctx, "upsert", func(tx store.Tx) error {
		stored, found, err := tx.Get(ctx, d.entity, key, true)
		if err != nil {
			return err
		}
		if !found {
			out, err = d.insertTx(ctx, tx, fields)
		} else {
			out, err = d.updateTx(ctx, tx, stored, fields)
		}
		return err
	})
	return out, err
}

// Get reads one record by primary key.
func (d *Dao) Get(ctx context.Context, key ...any) (domain.Record, error) {
	k, err := coerceKey(d.entity, key)
	if err != nil {
		return domain.Record{}, err
	}
	var (
		rec   domain.Record
		found bool
	)
	err = d.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rec, found, err = tx.Get(ctx, d.entity, k, false)
		return err
	})
	if err != nil {
		return domain.Record{}, err
	}
	if !found {
		return domain.Record{}, &NotFoundError{Entity: d.entity.Name, Key: k}
	}
	return rec, nil
}

// GetMany reads several records in one statement. The result is aligned
// with keys; missing records are nil.
func (d *Dao) GetMany(ctx context.Context, keys [][]any) ([]*domain.Record, error) {
	out := make([]*domain.Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	coerced := make([][]any, len(keys))
	preds := make([]domain.Predicate, len(keys))
	for i, key := range keys {
		k, err := coerceKey(d.entity, key)
		if err != nil {
			return nil, err
		}
		coerced[i] = k
		preds[i] = domain.KeyPredicate(d.entity.IDFields, k)
	}

	var recs []domain.Record
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		recs, err = tx.Select(ctx, d.entity, store.Selection{Where: domain.AnyOf(preds...)})
		return err
	})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]domain.Record, len(recs))
	for _, r := range recs {
		byKey[formatKey(r.Key(d.entity.IDFields))] = r
	}
	for i, k := range coerced {
		if r, ok := byKey[formatKey(k)]; ok {
			out[i] = &r
		}
	}
	return out, nil
}

// History lists every stored version of one record, oldest first.
func (d *Dao) History(ctx context.Context, key ...any) ([]domain.HistoryRecord, error) {
	k, err := coerceKey(d.entity, key)
	if err != nil {
		return nil, err
	}
	var out []domain.HistoryRecord
	err = d.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListHistory(ctx, d.entity, k)
		return err
	})
	return out, err
}

// prepare canonicalises a candidate and checks that its key is complete.
func (d *Dao) prepare(rec domain.Record) (map[string]any, error) {
	fields, err := coerceFields(d.entity, rec.Fields)
	if err != nil {
		return nil, err
	}
	if _, err := coerceKey(d.entity, domain.Record{Fields: fields}.Key(d.entity.IDFields)); err != nil {
		return nil, err
	}
	return fields, nil
}

func (d *Dao) insertTx(ctx context.Context, tx store.Tx, fields map[string]any) (domain.Record, error) {
	rec := domain.Record{Fields: make(map[string]any, len(fields)), Version: 1}
	for k, v := range fields {
		if v != nil {
			rec.Fields[k] = v
		}
	}
	if err := tx.Insert(ctx, d.entity, rec); err != nil {
		return domain.Record{}, err
	}
	h := domain.NewHistoryRecord(rec, d.entity.IDFields, domain.ChangeTypeInsert, d.now())
	if err := tx.InsertHistory(ctx, d.entity, h); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

func (d *Dao) updateTx(ctx context.Context, tx store.Tx, stored domain.Record, fields map[string]any) (domain.Record, error) {
	isID := make(map[string]bool, len(d.entity.IDFields))
	for _, f := range d.entity.IDFields {
		isID[f] = true
	}
	merged := stored.Clone()
	for k, v := range fields {
		switch {
		case isID[k]:
		case v == nil:
			delete(merged.Fields, k)
		default:
			merged.Fields[k] = v
		}
	}
	merged.Version = stored.Version + 1

	key := stored.Key(d.entity.IDFields)
	ok, err := tx.Update(ctx, d.entity, merged, stored.Version)
	if err != nil {
		return domain.Record{}, err
	}
	if !ok {
		// another writer got in between the read and the write
		actual := stored.Version
		if current, found, err := tx.Get(ctx, d.entity, key, false); err == nil && found {
			actual = current.Version
		}
		return domain.Record{}, d.conflict(key, stored.Version, actual)
	}
	h := domain.NewHistoryRecord(merged, d.entity.IDFields, domain.ChangeTypeUpdate, d.now())
	if err := tx.InsertHistory(ctx, d.entity, h); err != nil {
		return domain.Record{}, err
	}
	return merged, nil
}

func (d *Dao) conflict(key []any, expected, actual int64) error {
	d.metrics.VersionConflict(d.entity.Name)
	d.log.DbLogger(d.entity.Name, "update").Info().
		Int64("expected_version", expected).
		Int64("actual_version", actual).
		Msg("Version check failed")
	return &ConcurrencyConflictError{Entity: d.entity.Name, Key: key, Expected: expected, Actual: actual}
}

// retryTransient runs fn in a transaction, retrying the whole transaction
// on transient storage errors. The last transient error is returned with
// its original message.
func (d *Dao) retryTransient(ctx context.Context, operation string, fn func(store.Tx) error) error {
	log := d.log.DbLogger(d.entity.Name, operation)
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := d.store.WithTx(ctx, fn)
		if err == nil || !store.IsTransient(err) {
			log.LogDbOperation(time.Since(start), 1, expectedOutcome(err))
			return err
		}
		if attempt > d.maxTransientRetries || ctx.Err() != nil {
			log.Error().Err(err).Int("attempts", attempt).Msg("Transient storage error, giving up")
			return &TransientStorageError{Attempts: attempt, Err: err}
		}
		d.metrics.TransientRetry(d.entity.Name, operation)
		log.Warn().Err(err).Int("attempt", attempt).Msg("Transient storage error, retrying")
	}
}

// expectedOutcome hides caller-level errors from the storage operation log.
func expectedOutcome(err error) error {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConcurrencyConflictError
	)
	if errors.As(err, &validation) || errors.As(err, &notFound) || errors.As(err, &conflict) {
		return nil
	}
	return err
}
