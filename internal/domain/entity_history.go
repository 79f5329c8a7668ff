package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType labels why a history row was written.
type ChangeType string

const (
	ChangeTypeInsert ChangeType = "INSERT"
	ChangeTypeUpdate ChangeType = "UPDATE"
)

// HistoryRecord captures an immutable snapshot of a record version.
type HistoryRecord struct {
	ID         uuid.UUID      `json:"id"`
	Key        []any          `json:"key"`
	Version    int64          `json:"version"`
	Fields     map[string]any `json:"fields"`
	ChangeType ChangeType     `json:"changeType"`
	ChangedAt  time.Time      `json:"changedAt"`
}

// NewHistoryRecord snapshots a record as written.
func NewHistoryRecord(r Record, idFields []string, change ChangeType, at time.Time) HistoryRecord {
	return HistoryRecord{
		ID:         uuid.New(),
		Key:        r.Key(idFields),
		Version:    r.Version,
		Fields:     copyFields(r.Fields),
		ChangeType: change,
		ChangedAt:  at.UTC(),
	}
}

// Record returns the snapshot as a record.
func (h HistoryRecord) Record() Record {
	return Record{Fields: copyFields(h.Fields), Version: h.Version}
}
