// Package recordloader batches primary-key lookups that arrive close
// together into a single Dao.GetMany call.
package recordloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/domain"
)

// Key is a primary key usable as a dataloader key.
type Key []any

// String identifies the key in the loader cache.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "|")
}

// Raw returns the key values.
func (k Key) Raw() interface{} { return []any(k) }

// RecordLoader batches record lookups for one entity.
type RecordLoader struct {
	Loader *dataloader.Loader
	entity string
}

// New creates a loader over d. Lookups issued within the wait window are
// sent as one batch.
func New(d *dao.Dao, opts ...dataloader.Option) *RecordLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		raw := make([][]any, len(keys))
		for i, k := range keys {
			values, ok := k.Raw().([]any)
			if !ok {
				values = []any{k.Raw()}
			}
			raw[i] = values
		}

		records, err := d.GetMany(ctx, raw)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// GetMany keeps the order of keys, with nil for missing records
		results := make([]*dataloader.Result, len(keys))
		for i, rec := range records {
			results[i] = &dataloader.Result{Data: rec}
		}
		return results
	}

	opts = append([]dataloader.Option{dataloader.WithWait(5 * time.Millisecond)}, opts...)
	loader := dataloader.NewBatchedLoader(batchFn, opts...)

	return &RecordLoader{Loader: loader, entity: d.Entity().Name}
}

// Load returns the record with the given key, or a NotFoundError.
func (l *RecordLoader) Load(ctx context.Context, key ...any) (domain.Record, error) {
	data, err := l.Loader.Load(ctx, Key(key))()
	if err != nil {
		return domain.Record{}, err
	}
	rec, _ := data.(*domain.Record)
	if rec == nil {
		return domain.Record{}, &dao.NotFoundError{Entity: l.entity, Key: key}
	}
	return *rec, nil
}

// LoadMany returns records aligned with keys; missing records are nil.
func (l *RecordLoader) LoadMany(ctx context.Context, keys [][]any) ([]*domain.Record, error) {
	dk := make(dataloader.Keys, len(keys))
	for i, k := range keys {
		dk[i] = Key(k)
	}
	data, errs := l.Loader.LoadMany(ctx, dk)()
	out := make([]*domain.Record, len(keys))
	for i := range data {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		out[i], _ = data[i].(*domain.Record)
	}
	return out, nil
}

type ctxKey string

const loadersKey ctxKey = "recordLoaders"

// Loaders holds one loader per entity for the lifetime of a request.
type Loaders map[string]*RecordLoader

// NewLoaders creates a loader for every Dao.
func NewLoaders(daos ...*dao.Dao) Loaders {
	l := make(Loaders, len(daos))
	for _, d := range daos {
		l[d.Entity().Name] = New(d)
	}
	return l
}

// WithLoaders attaches loaders to ctx.
func WithLoaders(ctx context.Context, l Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, l)
}

// FromContext retrieves the loader for an entity from ctx.
func FromContext(ctx context.Context, entity string) *RecordLoader {
	if l, ok := ctx.Value(loadersKey).(Loaders); ok {
		return l[entity]
	}
	return nil
}
