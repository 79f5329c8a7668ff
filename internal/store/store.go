// Package store defines the storage contract the data-access engine issues
// its filter, order and limit operations against.
package store

import (
	"context"
	"errors"

	"github.com/rpattn/rdrstore/internal/domain"
)

var (
	// ErrUniqueViolation marks an insert rejected by a uniqueness constraint.
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrTransient marks lock-wait timeouts, deadlocks and serialization
	// failures that may succeed on retry.
	ErrTransient = errors.New("transient storage error")
)

// Selection is one filtered, ordered and bounded read.
type Selection struct {
	Where   domain.Predicate
	OrderBy []domain.OrderBy
	Limit   int
	Offset  int
}

// Tx is a storage session scoped to one transaction.
type Tx interface {
	Select(ctx context.Context, e *domain.EntityDescriptor, sel Selection) ([]domain.Record, error)
	Count(ctx context.Context, e *domain.EntityDescriptor, where domain.Predicate) (int64, error)
	Get(ctx context.Context, e *domain.EntityDescriptor, key []any, forUpdate bool) (domain.Record, bool, error)
	Insert(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record) error
	// Update replaces the stored row when its version equals expectedVersion
	// and reports whether a row was written.
	Update(ctx context.Context, e *domain.EntityDescriptor, rec domain.Record, expectedVersion int64) (bool, error)
	InsertHistory(ctx context.Context, e *domain.EntityDescriptor, h domain.HistoryRecord) error
	ListHistory(ctx context.Context, e *domain.EntityDescriptor, key []any) ([]domain.HistoryRecord, error)
}

// Store opens transactions. WithTx commits when fn returns nil and rolls
// back on error or panic.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// IsUniqueViolation reports whether err was caused by a uniqueness constraint.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
