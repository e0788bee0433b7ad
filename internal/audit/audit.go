// Package audit defines the structured record sink the reconciliation
// engine writes traces to. The durable record of a chat turn is the
// episodic log, not the in-memory facts.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xylemhq/xylem/internal/store"
)

// Record kinds emitted by the engine.
const (
	KindReconciliationSummary = "reconciliation_summary"
	KindConflictDetected      = "conflict_detected"
)

// Record is one structured audit entry.
type Record struct {
	ID     string                 `json:"id"`
	Kind   string                 `json:"kind"`
	At     time.Time              `json:"at"`
	Fields map[string]interface{} `json:"fields"`
}

// NewRecord builds a record with a fresh ID and timestamp.
func NewRecord(kind string, fields map[string]interface{}) Record {
	return Record{
		ID:     uuid.NewString(),
		Kind:   kind,
		At:     time.Now(),
		Fields: fields,
	}
}

// Sink receives audit records. Implementations own persistence; the
// engine only guarantees well-formed records.
type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// EpisodeSink persists audit records as rows in the episodic event log.
type EpisodeSink struct {
	store *store.Store
}

// NewEpisodeSink wraps the store's episodic log as an audit sink.
func NewEpisodeSink(s *store.Store) *EpisodeSink {
	return &EpisodeSink{store: s}
}

// Emit appends the record as an episode of the record's kind.
func (s *EpisodeSink) Emit(ctx context.Context, rec Record) error {
	_, err := s.store.AppendEpisode(ctx, rec.Kind, rec)
	return err
}

// NopSink discards records. Used in tests and when no store is wired.
type NopSink struct{}

func (NopSink) Emit(context.Context, Record) error { return nil }
