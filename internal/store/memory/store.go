// Package memory provides an in-process store that mirrors the SQL
// backends' semantics. It is the reference backend for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
)

// Compile-time contract assertion.
var _ store.Store = (*Store)(nil)

type table struct {
	rows    map[string]domain.Record
	history map[string][]domain.HistoryRecord
}

func newTable() *table {
	return &table{
		rows:    make(map[string]domain.Record),
		history: make(map[string][]domain.HistoryRecord),
	}
}

func (t *table) clone() *table {
	c := newTable()
	for k, r := range t.rows {
		c.rows[k] = r
	}
	for k, h := range t.history {
		c.history[k] = append([]domain.HistoryRecord(nil), h...)
	}
	return c
}

// Store keeps tables in memory. Transactions are serialised; writes are
// staged on copies and swapped in on commit.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

// WithTx runs fn inside a serialised transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// staged tables are discarded unless fn returns nil, which also covers panics
	tx := &memTx{store: s, staged: make(map[string]*table)}
	if err := fn(tx); err != nil {
		return err
	}
	for name, t := range tx.staged {
		s.tables[name] = t
	}
	return nil
}

// EnsureSchema exists for parity with the SQL backends; tables are created
// on first write.
func (s *Store) EnsureSchema(ctx context.Context, _ ...*domain.EntityDescriptor) error {
	return ctx.Err()
}

type memTx struct {
	store  *Store
	staged map[string]*table
}

func (tx *memTx) read(name string) *table {
	if t, ok := tx.staged[name]; ok {
		return t
	}
	if t, ok := tx.store.tables[name]; ok {
		return t
	}
	return newTable()
}

func (tx *memTx) write(name string) *table {
	if t, ok := tx.staged[name]; ok {
		return t
	}
	var t *table
	if committed, ok := tx.store.tables[name]; ok {
		t = committed.clone()
	} else {
		t = newTable()
	}
	tx.staged[name] = t
	return t
}

func (tx *memTx) Select(ctx context.Context, e *domain.EntityDescriptor, sel store.Selection) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched, err := tx.filter(e, sel.Where)
	if err != nil {
		return nil, err
	}
	if len(sel.OrderBy) > 0 {
		descs := make([]domain.FieldDescriptor, len(sel.OrderBy))
		for i, o := range sel.OrderBy {
			d, ok := e.Catalog.Resolve(o.Field)
			if !ok {
				return nil, fmt.Errorf("order by unknown field %s", o.Field)
			}
			descs[i] = d
		}
		var sortErr error
		sort.SliceStable(matched, func(i, j int) bool {
			for k, o := range sel.OrderBy {
				c, err := CompareValues(descs[k].Value(matched[i]), descs[k].Value(matched[j]))
				if err != nil {
					sortErr = err
					return false
				}
				if c == 0 {
					continue
				}
				if o.Ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	if sel.Offset > 0 {
		if sel.Offset >= len(matched) {
			return []domain.Record{}, nil
		}
		matched = matched[sel.Offset:]
	}
	if sel.Limit > 0 && len(matched) > sel.Limit {
		matched = matched[:sel.Limit]
	}
	return matched, nil
}

func (tx *memTx) filter(e *domain.EntityDescriptor, where domain.Predicate) ([]domain.Record, error) {
	t := tx.read(e.Table)
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	// map iteration order is random; fix it so unordered reads are repeatable
	sort.Strings(keys)

	out := make([]domain.Record, 0, len(keys))
	for _, k := range keys {
		r := t.rows[k]
		ok, err := Evaluate(e.Catalog, where, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (tx *memTx) Count(ctx context.Context, e *domain.EntityDescriptor, where domain.Predicate) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	matched, err := tx.filter(e, where)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (tx *memTx) Get(ctx context.Context, e *domain.EntityDescriptor, key []any, forUpdate bool) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, err
	}
	r, ok := tx.read(e.Table).rows[rowKey(key)]
	if !ok {
		return domain.Record{}, false, nil
	}
	return r.Clone(), true, nil
}

func (tx *memTx) Insert(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := rowKey(rec.Key(e.IDFields))
	t := tx.write(e.Table)
	if _, exists := t.rows[k]; exists {
		return fmt.Errorf("insert into %s: %w", e.Table, store.ErrUniqueViolation)
	}
	t.rows[k] = rec.Clone()
	return nil
}

func (tx *memTx) Update(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record, expectedVersion int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := rowKey(rec.Key(e.IDFields))
	current, ok := tx.read(e.Table).rows[k]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	tx.write(e.Table).rows[k] = rec.Clone()
	return true, nil
}

func (tx *memTx) InsertHistory(ctx context.Context, e *domain.EntityDescriptor, h domain.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := rowKey(h.Key)
	t := tx.write(e.Table)
	for _, existing := range t.history[k] {
		if existing.Version == h.Version {
			return fmt.Errorf("insert into %s: %w", e.HistoryTable, store.ErrUniqueViolation)
		}
	}
	h.Fields = domain.NewRecord(h.Fields).Fields
	t.history[k] = append(t.history[k], h)
	return nil
}

func (tx *memTx) ListHistory(ctx context.Context, e *domain.EntityDescriptor, key []any) ([]domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := append([]domain.HistoryRecord(nil), tx.read(e.Table).history[rowKey(key)]...)
	sort.Slice(h, func(i, j int) bool { return h[i].Version < h[j].Version })
	return h, nil
}

func rowKey(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x1f")
}
