package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/xylemhq/xylem/internal/store"
)

func TestNewRecord(t *testing.T) {
	rec := NewRecord(KindConflictDetected, map[string]interface{}{"fact_key": "displayName"})

	if rec.ID == "" {
		t.Error("expected generated ID")
	}
	if rec.Kind != KindConflictDetected {
		t.Errorf("unexpected kind %q", rec.Kind)
	}
	if rec.At.IsZero() {
		t.Error("expected timestamp")
	}
	if rec.Fields["fact_key"] != "displayName" {
		t.Errorf("fields lost: %v", rec.Fields)
	}
}

func TestEpisodeSink_PersistsRecords(t *testing.T) {
	s, err := store.NewStoreAt(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	sink := NewEpisodeSink(s)
	ctx := context.Background()

	rec := NewRecord(KindReconciliationSummary, map[string]interface{}{"query": "what is my name?"})
	if err := sink.Emit(ctx, rec); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	episodes, err := s.ListEpisodes(ctx, KindReconciliationSummary, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}

	var stored Record
	if err := json.Unmarshal(episodes[0].Payload, &stored); err != nil {
		t.Fatalf("payload not a record: %v", err)
	}
	if stored.ID != rec.ID {
		t.Errorf("round trip lost ID: %q vs %q", stored.ID, rec.ID)
	}
	if stored.Fields["query"] != "what is my name?" {
		t.Errorf("fields lost: %v", stored.Fields)
	}
}

func TestNopSink(t *testing.T) {
	if err := (NopSink{}).Emit(context.Background(), NewRecord("anything", nil)); err != nil {
		t.Errorf("nop sink must never fail: %v", err)
	}
}
