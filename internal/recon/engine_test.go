package recon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/xylemhq/xylem/internal/audit"
	"github.com/xylemhq/xylem/internal/semantic"
)

// recordingSink captures emitted audit records for assertions.
type recordingSink struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (s *recordingSink) Emit(ctx context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *recordingSink) byKind(kind string) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, r := range s.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func conflictingResults() []ToolResult {
	return []ToolResult{
		{
			Tool: ToolKVLookup,
			Rows: []KVRow{{Key: "displayName", Value: "Mark"}},
		},
		{
			Tool: ToolSemanticSearch,
			Hits: []semantic.Hit{{DocID: "d1", Text: "Marcus", Key: "displayName", Score: 0.85}},
		},
	}
}

func TestEngine_AnswerCanonicalWins(t *testing.T) {
	sink := &recordingSink{}
	engine := NewEngine(WithAuditSink(sink))

	output, rec := engine.Answer(context.Background(), "what is my display name?", conflictingResults())

	if len(rec.Facts) != 1 || rec.Facts[0].Value != "Mark" {
		t.Fatalf("canonical value must win, got %+v", rec.Facts)
	}
	if rec.KVOverridesApplied != 1 {
		t.Errorf("expected 1 override, got %d", rec.KVOverridesApplied)
	}
	if output.Confidence <= 0 {
		t.Errorf("expected positive confidence, got %v", output.Confidence)
	}

	summaries := sink.byKind(audit.KindReconciliationSummary)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary record, got %d", len(summaries))
	}
	if summaries[0].Fields["kv_overrides_applied"] != 1 {
		t.Errorf("summary should record the override, got %v", summaries[0].Fields)
	}
	conflicts := sink.byKind(audit.KindConflictDetected)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict record, got %d", len(conflicts))
	}
	if conflicts[0].Fields["fact_key"] != "displayName" {
		t.Errorf("conflict record names wrong key: %v", conflicts[0].Fields)
	}
	if conflicts[0].Fields["kv_value"] != "Mark" {
		t.Errorf("conflict record should carry the canonical value: %v", conflicts[0].Fields)
	}
}

func TestEngine_AnswerNeverFailsOnDegenerateInput(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()

	cases := [][]ToolResult{
		nil,
		{},
		{{Tool: ToolKVLookup, Failed: true}},
		{{Tool: "bogus", Rows: []KVRow{{Key: "k", Value: "v"}}}},
		{{Tool: ToolKVLookup, Rows: []KVRow{{Key: "", Value: ""}}}},
	}
	for i, results := range cases {
		output, rec := engine.Answer(ctx, "anything", results)
		if output.Content == "" {
			t.Errorf("case %d: expected a rendered answer even with no facts", i)
		}
		if output.Confidence != 0 {
			t.Errorf("case %d: expected zero confidence, got %v", i, output.Confidence)
		}
		if len(rec.Facts) != 0 {
			t.Errorf("case %d: expected no facts, got %v", i, rec.Facts)
		}
	}
}

func TestEngine_AuditSinkErrorsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	engine := NewEngine(WithAuditSink(sink))

	output, _ := engine.Answer(context.Background(), "what is my display name?", conflictingResults())
	if output.Content == "" {
		t.Error("a failing audit sink must not fail the answer")
	}
}

func TestEngine_ConflictHistoryBounded(t *testing.T) {
	engine := NewEngine(WithHistoryLimit(5))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		results := []ToolResult{
			{Tool: ToolKVLookup, Rows: []KVRow{{Key: "displayName", Value: fmt.Sprintf("Name%d", i)}}},
			{Tool: ToolSemanticSearch, Hits: []semantic.Hit{{DocID: "d", Text: "Other", Key: "displayName", Score: 0.8}}},
		}
		engine.Answer(ctx, "name?", results)
	}

	history := engine.ConflictHistory()
	if len(history) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(history))
	}
	// Oldest dropped first: the retained entries are the last five turns
	if kv := history[0].KVValue; kv == nil || *kv != "Name5" {
		t.Errorf("expected oldest retained conflict from turn 5, got %v", kv)
	}

	stats := engine.ConflictStats()
	if stats.Total != 5 {
		t.Errorf("expected 5 in stats, got %d", stats.Total)
	}
	if stats.BySeverity[SeverityHigh] != 5 {
		t.Errorf("identity conflicts should all be high severity, got %v", stats.BySeverity)
	}
}

func TestEngine_HistoryDisabled(t *testing.T) {
	engine := NewEngine(WithHistoryLimit(0))
	engine.Answer(context.Background(), "name?", conflictingResults())
	if got := engine.ConflictHistory(); len(got) != 0 {
		t.Errorf("history disabled, got %v", got)
	}
}

func TestEngine_ConcurrentAnswers(t *testing.T) {
	engine := NewEngine(WithAuditSink(&recordingSink{}))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				output, rec := engine.Answer(ctx, "what is my display name?", conflictingResults())
				if len(rec.Facts) != 1 || rec.Facts[0].Value != "Mark" {
					t.Errorf("concurrent answer lost canonical fact: %+v", rec.Facts)
					return
				}
				if output.Content == "" {
					t.Error("concurrent answer produced empty content")
					return
				}
			}
		}()
	}
	wg.Wait()

	if stats := engine.ConflictStats(); stats.Total == 0 {
		t.Error("expected recorded conflicts after concurrent runs")
	}
}

func TestEngine_PolicyOption(t *testing.T) {
	pol := DefaultPolicy()
	pol.SemanticCap = 0.5
	engine := NewEngine(WithPolicy(pol))

	if got := engine.Policy().SemanticCap; got != 0.5 {
		t.Errorf("expected cap 0.5, got %v", got)
	}

	results := []ToolResult{{
		Tool: ToolSemanticSearch,
		Hits: []semantic.Hit{{DocID: "d1", Text: "something", Score: 0.95}},
	}}
	_, rec := engine.Answer(context.Background(), "q", results)
	if len(rec.Facts) != 1 || rec.Facts[0].Confidence != 0.5 {
		t.Errorf("expected cap applied at extraction, got %+v", rec.Facts)
	}
}
