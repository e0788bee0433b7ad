package acceptance

import (
	"context"
	"fmt"
	"strings"

	"github.com/xylemhq/xylem/internal/audit"
	"github.com/xylemhq/xylem/internal/pipeline"
	"github.com/xylemhq/xylem/internal/recon"
	"github.com/xylemhq/xylem/internal/store"
)

// TestContext holds state between steps. Each scenario gets a fresh
// store in a temp directory; everything runs in-process.
type TestContext struct {
	ctx     context.Context
	tmpDir  func() string
	store   *store.Store
	pipe    *pipeline.Pipeline
	lastOut recon.SynthesisOutput
	lastRec recon.ReconciliationResult
}

func (tc *TestContext) freshStore() error {
	if tc.store != nil {
		tc.store.Close()
	}
	s, err := store.NewStoreAt(tc.tmpDir())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	tc.store = s

	engine := recon.NewEngine(
		recon.WithAuditSink(audit.NewEpisodeSink(s)),
	)
	tc.pipe = pipeline.New(s, engine, nil)
	return nil
}

func (tc *TestContext) canonicalFact(key, value string) error {
	_, err := tc.store.SetFact(tc.ctx, key, value, 1.0, false)
	return err
}

func (tc *TestContext) semanticMemory(content string) error {
	_, err := tc.store.AddDocument(tc.ctx, content, "", nil)
	return err
}

func (tc *TestContext) semanticMemoryForKey(content, key string) error {
	_, err := tc.store.AddDocument(tc.ctx, content, key, nil)
	return err
}

func (tc *TestContext) ask(query string) error {
	tc.lastOut, tc.lastRec = tc.pipe.Ask(tc.ctx, query)
	return nil
}

func (tc *TestContext) answerContains(text string) error {
	if !strings.Contains(tc.lastOut.Content, text) {
		return fmt.Errorf("answer %q does not contain %q", tc.lastOut.Content, text)
	}
	return nil
}

func (tc *TestContext) answerNotContains(text string) error {
	if strings.Contains(tc.lastOut.Content, text) {
		return fmt.Errorf("answer %q should not contain %q", tc.lastOut.Content, text)
	}
	return nil
}

func (tc *TestContext) answerCites(text string) error {
	for _, c := range tc.lastOut.Citations {
		if c.Text == text {
			return nil
		}
	}
	return fmt.Errorf("no citation %q in %v", text, tc.lastOut.Citations)
}

func (tc *TestContext) conflictCount(n int) error {
	if len(tc.lastRec.Conflicts) != n {
		return fmt.Errorf("expected %d conflict(s), got %d", n, len(tc.lastRec.Conflicts))
	}
	return nil
}

func (tc *TestContext) overriddenCount(n int) error {
	if tc.lastRec.SemanticSuggestionsIgnored != n {
		return fmt.Errorf("expected %d overridden suggestion(s), got %d", n, tc.lastRec.SemanticSuggestionsIgnored)
	}
	return nil
}

func (tc *TestContext) answerMentionsSemanticMatch() error {
	if !strings.Contains(tc.lastOut.Content, "% match)") {
		return fmt.Errorf("answer %q carries no semantic match annotation", tc.lastOut.Content)
	}
	return nil
}

func (tc *TestContext) answerIndicatesNothingFound() error {
	return tc.answerContains("No information available")
}

func (tc *TestContext) confidenceAtMost(max float64) error {
	if tc.lastOut.Confidence > max {
		return fmt.Errorf("confidence %v exceeds %v", tc.lastOut.Confidence, max)
	}
	return nil
}

func (tc *TestContext) confidenceAtLeast(min float64) error {
	if tc.lastOut.Confidence < min {
		return fmt.Errorf("confidence %v below %v", tc.lastOut.Confidence, min)
	}
	return nil
}

func (tc *TestContext) confidenceExactly(v float64) error {
	if tc.lastOut.Confidence != v {
		return fmt.Errorf("confidence %v, want %v", tc.lastOut.Confidence, v)
	}
	return nil
}

func (tc *TestContext) conflictWithSeverity(severity, key string) error {
	for _, c := range tc.lastRec.Conflicts {
		if c.FactKey == key && string(c.Severity) == severity {
			return nil
		}
	}
	return fmt.Errorf("no %s-severity conflict for %q in %v", severity, key, tc.lastRec.Conflicts)
}

func (tc *TestContext) auditTrailContains(kind string) error {
	episodes, err := tc.store.ListEpisodes(tc.ctx, kind, 10)
	if err != nil {
		return err
	}
	if len(episodes) == 0 {
		return fmt.Errorf("no %q episodes in audit trail", kind)
	}
	return nil
}
