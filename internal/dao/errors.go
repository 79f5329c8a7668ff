package dao

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/rdrstore/internal/store"
)

// ValidationError reports a caller mistake: bad field, operator, value or
// pagination token. It is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	Key    []any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, formatKey(e.Key))
}

// ConcurrencyConflictError reports a failed optimistic version check. The
// caller must re-read the record and decide.
type ConcurrencyConflictError struct {
	Entity   string
	Key      []any
	Expected int64
	Actual   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s: expected version %d, stored version is %d",
		e.Entity, formatKey(e.Key), e.Expected, e.Actual)
}

// TransientStorageError is a transient storage failure that outlived its
// retry budget. Its message is the original storage message.
type TransientStorageError struct {
	Attempts int
	Err      error
}

func (e *TransientStorageError) Error() string { return e.Err.Error() }

func (e *TransientStorageError) Unwrap() error { return e.Err }

// ExhaustedRetriesError is returned when every random identifier draw
// collided. Attempts lists each drawn value tuple once, in order; a tuple
// retried after a transient error is not repeated.
type ExhaustedRetriesError struct {
	Entity   string
	Fields   []string
	Attempts [][]int64
}

func (e *ExhaustedRetriesError) Error() string {
	tuples := make([]string, len(e.Attempts))
	for i, t := range e.Attempts {
		tuples[i] = fmt.Sprint(t)
	}
	return fmt.Sprintf("%s: unable to allocate unique %s after %d draws: %s",
		e.Entity, strings.Join(e.Fields, ","), len(e.Attempts), strings.Join(tuples, " "))
}

// Category groups errors the way callers surface them.
type Category string

const (
	CategoryBadRequest  Category = "bad_request"
	CategoryNotFound    Category = "not_found"
	CategoryConflict    Category = "conflict"
	CategoryUnavailable Category = "unavailable"
	CategoryInternal    Category = "internal"
)

// CategoryOf classifies err for the caller.
func CategoryOf(err error) Category {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConcurrencyConflictError
		exhausted  *ExhaustedRetriesError
		transient  *TransientStorageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return CategoryBadRequest
	case errors.As(err, &notFound):
		return CategoryNotFound
	case errors.As(err, &conflict):
		return CategoryConflict
	case errors.As(err, &exhausted), errors.As(err, &transient), store.IsTransient(err):
		return CategoryUnavailable
	}
	return CategoryInternal
}

func formatKey(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
