package dao

import (
	"context"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
)

// AllocateOptions selects the randomly allocated fields of an insert.
type AllocateOptions struct {
	// Fields defaults to the entity's ID fields.
	Fields []string
	// MaxAttempts defaults to the Dao's configured ceiling.
	MaxAttempts int
}

// InsertWithRandomID inserts rec after drawing a random value for each
// allocated field from its ID range.
//
// A unique violation redraws every field. A transient storage error retries
// the same values; both count against MaxAttempts. A transient error on the
// final attempt is returned, otherwise running out of attempts yields an
// ExhaustedRetriesError listing every tried tuple.
func (d *Dao) InsertWithRandomID(ctx context.Context, rec domain.Record, opts AllocateOptions) (domain.Record, error) {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = d.entity.IDFields
	}
	ranges := make([]domain.IDRange, len(fields))
	for i, name := range fields {
		desc, err := ResolveField(d.entity.Catalog, name)
		if err != nil {
			return domain.Record{}, err
		}
		if desc.Type != domain.FieldTypeInteger {
			return domain.Record{}, validationf("field %s cannot hold a random id", name)
		}
		ranges[i] = d.entity.RangeFor(name)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.maxIDAttempts
	}

	base, err := coerceFields(d.entity, rec.Fields)
	if err != nil {
		return domain.Record{}, err
	}
	log := d.log.DbLogger(d.entity.Name, "insert_random_id")

	var (
		attempts [][]int64
		tuple    []int64
	)
	redraw := true
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if redraw {
			tuple = make([]int64, len(fields))
			for i, r := range ranges {
				tuple[i] = d.int64InRange(r)
			}
			attempts = append(attempts, tuple)
		}

		candidate := make(map[string]any, len(base)+len(fields))
		for k, v := range base {
			candidate[k] = v
		}
		for i, name := range fields {
			candidate[name] = tuple[i]
		}
		if _, err := coerceKey(d.entity, domain.Record{Fields: candidate}.Key(d.entity.IDFields)); err != nil {
			return domain.Record{}, err
		}

		var out domain.Record
		err := d.store.WithTx(ctx, func(tx store.Tx) error {
			var err error
			out, err = d.insertTx(ctx, tx, candidate)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case store.IsUniqueViolation(err):
			d.metrics.IDCollision(d.entity.Name)
			log.Warn().
				Ints64("values", tuple).
				Int("attempt", attempt).
				Msg("Random id collision, drawing new values")
			redraw = true
		case store.IsTransient(err):
			if attempt == maxAttempts || ctx.Err() != nil {
				return domain.Record{}, &TransientStorageError{Attempts: attempt, Err: err}
			}
			d.metrics.TransientRetry(d.entity.Name, "insert_random_id")
			log.Warn().Err(err).Int("attempt", attempt).Msg("Transient storage error, retrying same id")
			redraw = false
		default:
			return domain.Record{}, err
		}
	}

	log.Error().
		Strs("fields", fields).
		Int("attempts", maxAttempts).
		Int("draws", len(attempts)).
		Msg("Unable to allocate a unique random id")
	return domain.Record{}, &ExhaustedRetriesError{Entity: d.entity.Name, Fields: fields, Attempts: attempts}
}
