// Package pipeline orchestrates one chat turn: it gathers raw tool
// results from the canonical store and the semantic index, then hands
// them to the reconciliation engine. Retrieval failures degrade to
// empty tool results so the engine can still answer canonical-only or
// semantic-only.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/xylemhq/xylem/internal/recon"
	"github.com/xylemhq/xylem/internal/store"
)

// Pipeline wires the store and the engine together for one query.
type Pipeline struct {
	store       *store.Store
	engine      *recon.Engine
	logger      *zap.Logger
	recallLimit int
}

// New creates a pipeline. A nil logger disables logging.
func New(s *store.Store, engine *recon.Engine, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:       s,
		engine:      engine,
		logger:      logger,
		recallLimit: 5,
	}
}

// Engine exposes the underlying reconciliation engine (for history and
// stats endpoints).
func (p *Pipeline) Engine() *recon.Engine {
	return p.engine
}

// Ask runs the full pipeline: canonical lookup, semantic search,
// reconciliation, synthesis. Only a nil receiver or empty query is a
// caller error; retrieval problems never fail the turn.
func (p *Pipeline) Ask(ctx context.Context, query string) (recon.SynthesisOutput, recon.ReconciliationResult) {
	results := p.gather(ctx, query)
	output, rec := p.engine.Answer(ctx, query, results)

	p.logger.Info("answered query",
		zap.String("query", query),
		zap.Int("facts", len(rec.Facts)),
		zap.Int("conflicts", len(rec.Conflicts)),
		zap.Int("kv_overrides", rec.KVOverridesApplied),
		zap.Float64("confidence", output.Confidence),
	)
	return output, rec
}

// AskWith runs the engine over caller-supplied raw tool results instead
// of performing retrieval (the spec's external caller contract).
func (p *Pipeline) AskWith(ctx context.Context, query string, results []recon.ToolResult) (recon.SynthesisOutput, recon.ReconciliationResult) {
	return p.engine.Answer(ctx, query, results)
}

// gather performs the two retrievals. Each failure is logged and
// reported as a failed tool result, which extraction treats as zero
// facts.
func (p *Pipeline) gather(ctx context.Context, query string) []recon.ToolResult {
	kv := recon.ToolResult{Tool: recon.ToolKVLookup}
	facts, err := p.store.ListFacts(ctx)
	if err != nil {
		p.logger.Warn("canonical lookup failed", zap.Error(err))
		kv.Failed = true
	} else {
		for _, f := range facts {
			kv.Rows = append(kv.Rows, recon.KVRow{
				Key:        f.Key,
				Value:      f.Value,
				Confidence: f.Confidence,
				Sensitive:  f.Sensitive,
				UpdatedAt:  f.UpdatedAt,
			})
		}
	}

	sem := recon.ToolResult{Tool: recon.ToolSemanticSearch}
	hits, err := p.store.Search(ctx, query, p.recallLimit)
	if err != nil {
		p.logger.Warn("semantic search failed", zap.Error(err))
		sem.Failed = true
	} else {
		sem.Hits = hits
	}

	return []recon.ToolResult{kv, sem}
}
