package dao

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rpattn/rdrstore/internal/store"
)

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{nil, ""},
		{&ValidationError{Message: "bad"}, CategoryBadRequest},
		{fmt.Errorf("query: %w", &ValidationError{Message: "bad"}), CategoryBadRequest},
		{&NotFoundError{Entity: "person", Key: []any{int64(1)}}, CategoryNotFound},
		{&ConcurrencyConflictError{Entity: "person"}, CategoryConflict},
		{&ExhaustedRetriesError{Entity: "person"}, CategoryUnavailable},
		{&TransientStorageError{Attempts: 1, Err: errors.New("boom")}, CategoryUnavailable},
		{fmt.Errorf("select: %w", store.ErrTransient), CategoryUnavailable},
		{errors.New("disk on fire"), CategoryInternal},
	}
	for _, tc := range cases {
		if got := CategoryOf(tc.err); got != tc.want {
			t.Errorf("CategoryOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	nf := &NotFoundError{Entity: "participant", Key: []any{int64(1), int64(2)}}
	if got := nf.Error(); got != "participant (1, 2) not found" {
		t.Fatalf("unexpected message %q", got)
	}

	conflict := &ConcurrencyConflictError{Entity: "participant", Key: []any{int64(1)}, Expected: 2, Actual: 3}
	if got := conflict.Error(); got != "participant (1): expected version 2, stored version is 3" {
		t.Fatalf("unexpected message %q", got)
	}

	exhausted := &ExhaustedRetriesError{
		Entity:   "participant",
		Fields:   []string{"participantId", "biobankId"},
		Attempts: [][]int64{{1, 2}, {3, 4}},
	}
	msg := exhausted.Error()
	for _, want := range []string{"participantId,biobankId", "2 draws", "[1 2]", "[3 4]"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q does not mention %q", msg, want)
		}
	}
}
