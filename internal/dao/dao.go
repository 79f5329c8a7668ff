// Package dao is the generic data-access engine: filtered keyset pagination,
// optimistic-concurrency updates with history, and random identifier
// allocation for any registered entity.
package dao

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/logger"
	"github.com/rpattn/rdrstore/internal/metrics"
	"github.com/rpattn/rdrstore/internal/store"
)

// Defaults applied when no option overrides them.
const (
	DefaultPageSize            = 100
	DefaultMaxPageSize         = 10000
	DefaultMaxIDAttempts       = 50
	DefaultMaxTransientRetries = 3
)

// Dao serves one entity type over a store.
type Dao struct {
	entity  *domain.EntityDescriptor
	store   store.Store
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand

	defaultPageSize     int
	maxPageSize         int
	maxIDAttempts       int
	maxTransientRetries int
}

// Option configures a Dao.
type Option func(*Dao)

// WithLogger sets the logger; the default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(d *Dao) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetrics records query and write metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dao) { d.metrics = m }
}

// WithRandSource replaces the identifier randomness source.
func WithRandSource(src rand.Source) Option {
	return func(d *Dao) { d.rand = rand.New(src) }
}

// WithPageSizes sets the default and maximum page sizes.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(d *Dao) {
		if defaultSize > 0 {
			d.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			d.maxPageSize = maxSize
		}
	}
}

// WithMaxIDAttempts sets the default random identifier attempt ceiling.
func WithMaxIDAttempts(n int) Option {
	return func(d *Dao) {
		if n > 0 {
			d.maxIDAttempts = n
		}
	}
}

// WithMaxTransientRetries sets how often a write is retried after a
// transient storage error.
func WithMaxTransientRetries(n int) Option {
	return func(d *Dao) {
		if n >= 0 {
			d.maxTransientRetries = n
		}
	}
}

// WithClock replaces the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dao) { d.now = now }
}

// New creates a Dao for entity e.
func New(e *domain.EntityDescriptor, s store.Store, opts ...Option) (*Dao, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("entity %s: store is required", e.Name)
	}
	d := &Dao{
		entity:              e,
		store:               s,
		log:                 logger.Nop(),
		now:                 time.Now,
		defaultPageSize:     DefaultPageSize,
		maxPageSize:         DefaultMaxPageSize,
		maxIDAttempts:       DefaultMaxIDAttempts,
		maxTransientRetries: DefaultMaxTransientRetries,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rand == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("failed to seed id generator: %w", err)
		}
		d.rand = rand.New(rand.NewChaCha8(seed))
	}
	if d.defaultPageSize > d.maxPageSize {
		d.defaultPageSize = d.maxPageSize
	}
	return d, nil
}

// Entity returns the descriptor the Dao serves.
func (d *Dao) Entity() *domain.EntityDescriptor {
	return d.entity
}

// int64InRange draws uniformly from [r.Min, r.Max]. Ranges are checked by
// EntityDescriptor.Validate, so the span always fits an int64.
func (d *Dao) int64InRange(r domain.IDRange) int64 {
	span, _ := r.Span()
	d.randMu.Lock()
	defer d.randMu.Unlock()
	return r.Min + d.rand.Int64N(span)
}
