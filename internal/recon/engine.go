package recon

import (
	"context"
	"sync"

	"github.com/xylemhq/xylem/internal/audit"
)

// Engine runs the full reconciliation pipeline for one chat turn:
// extract facts from raw tool results, detect and resolve conflicts,
// synthesize the answer, and emit audit records. The engine itself is
// stateless per call apart from an append-only, bounded conflict
// history kept purely for introspection; history never influences later
// reconciliations. Safe for concurrent use.
type Engine struct {
	pol      Policy
	classify Classifier
	sink     audit.Sink

	mu           sync.Mutex
	history      []Conflict
	historyLimit int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPolicy replaces the default policy.
func WithPolicy(pol Policy) EngineOption {
	return func(e *Engine) { e.pol = pol }
}

// WithClassifier replaces the default intent classifier.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) { e.classify = c }
}

// WithAuditSink sets where structured audit records go.
func WithAuditSink(s audit.Sink) EngineOption {
	return func(e *Engine) { e.sink = s }
}

// WithHistoryLimit bounds the in-memory conflict history. Zero disables
// history entirely.
func WithHistoryLimit(n int) EngineOption {
	return func(e *Engine) { e.historyLimit = n }
}

// NewEngine creates an engine with the default policy, the keyword
// intent classifier, and a no-op audit sink.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		pol:          DefaultPolicy(),
		classify:     ClassifyIntent,
		sink:         audit.NopSink{},
		historyLimit: 100,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's active policy.
func (e *Engine) Policy() Policy {
	return e.pol
}

// Answer runs one full reconciliation + synthesis pass. It never fails
// on degenerate input: malformed records are counted and dropped, empty
// input produces a zero-confidence answer, and audit sink errors are
// swallowed because losing a trace beats failing a user-facing answer.
func (e *Engine) Answer(ctx context.Context, query string, results []ToolResult) (SynthesisOutput, ReconciliationResult) {
	extraction := ExtractFacts(results, e.pol)
	recon := Reconcile(extraction.Facts, query, e.pol)
	output := Synthesize(query, recon.Facts, e.pol, e.classify)

	e.recordConflicts(recon.Conflicts)
	e.emitAudit(ctx, query, extraction, recon, output)

	return output, recon
}

// recordConflicts appends to the bounded history, oldest dropped first.
func (e *Engine) recordConflicts(conflicts []Conflict) {
	if e.historyLimit <= 0 || len(conflicts) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, conflicts...)
	if overflow := len(e.history) - e.historyLimit; overflow > 0 {
		e.history = append([]Conflict(nil), e.history[overflow:]...)
	}
}

// ConflictHistory returns a copy of the retained conflict records,
// oldest first.
func (e *Engine) ConflictHistory() []Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Conflict, len(e.history))
	copy(out, e.history)
	return out
}

// ConflictStats summarizes the retained conflict history.
type ConflictStats struct {
	Total            int              `json:"total"`
	BySeverity       map[Severity]int `json:"by_severity"`
	ManualResolution int              `json:"manual_resolution"`
}

// ConflictStats aggregates the retained history for introspection.
func (e *Engine) ConflictStats() ConflictStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ConflictStats{BySeverity: make(map[Severity]int)}
	for _, c := range e.history {
		stats.Total++
		stats.BySeverity[c.Severity]++
		if c.RequiresManualResolution {
			stats.ManualResolution++
		}
	}
	return stats
}

// emitAudit writes the reconciliation summary and one record per
// conflict. Sink failures are deliberately swallowed.
func (e *Engine) emitAudit(ctx context.Context, query string, extraction ExtractionResult, recon ReconciliationResult, output SynthesisOutput) {
	if e.sink == nil {
		return
	}

	notes := recon.Notes
	if len(notes) > 3 {
		notes = notes[:3]
	}
	summary := map[string]interface{}{
		"query":                        query,
		"facts_extracted":              len(extraction.Facts),
		"records_skipped":              extraction.Skipped,
		"facts_reconciled":             len(recon.Facts),
		"conflicts_detected":           len(recon.Conflicts),
		"kv_overrides_applied":         recon.KVOverridesApplied,
		"semantic_suggestions_ignored": recon.SemanticSuggestionsIgnored,
		"notes":                        notes,
		"confidence":                   output.Confidence,
	}
	_ = e.sink.Emit(ctx, audit.NewRecord(audit.KindReconciliationSummary, summary))

	for _, c := range recon.Conflicts {
		fields := map[string]interface{}{
			"fact_key":                   c.FactKey,
			"severity":                   string(c.Severity),
			"requires_manual_resolution": c.RequiresManualResolution,
			"rationale":                  c.Rationale,
		}
		if c.KVValue != nil {
			fields["kv_value"] = *c.KVValue
		}
		_ = e.sink.Emit(ctx, audit.NewRecord(audit.KindConflictDetected, fields))
	}
}
