package recon

import (
	"fmt"
	"math"
	"strings"
)

// strategy names the rendering approach picked by the decision table.
type strategy string

const (
	strategyNone                strategy = "none"
	strategyIdentity            strategy = "identity"
	strategyPreference          strategy = "preference"
	strategySemanticIntegration strategy = "semantic_integration"
	strategyConflictResolution  strategy = "conflict_resolution"
	strategyGeneral             strategy = "general"
)

// Synthesize renders reconciled facts into a natural-language answer
// with citations, an aggregate confidence, and a reasoning trail. The
// strategy choice is a deterministic decision table over the shape of
// the facts and the (advisory) query intent; no model call is involved.
// With zero usable facts it returns a "no information available" answer
// at confidence 0 rather than failing.
func Synthesize(query string, facts []Fact, pol Policy, classify Classifier) SynthesisOutput {
	if classify == nil {
		classify = ClassifyIntent
	}
	intent := classify(query)

	// Malformed facts are dropped, never fatal
	var usable []Fact
	dropped := 0
	for _, f := range facts {
		if f.Key == "" || f.Value == "" {
			dropped++
			continue
		}
		usable = append(usable, f)
	}

	canonical := factsBySource(usable, SourceCanonical)
	semantic := factsBySource(usable, SourceSemantic)
	conflicted := 0
	for _, f := range usable {
		if f.Conflicted {
			conflicted++
		}
	}

	strat := chooseStrategy(intent, canonical, semantic, conflicted)
	content := render(strat, canonical, semantic, conflicted, pol)
	citations, cited := buildCitations(content, usable)
	confidence := aggregateConfidence(cited, pol)

	out := SynthesisOutput{
		Content:    content,
		Citations:  citations,
		Confidence: confidence,
		Provenance: ProvenanceSummary{
			CanonicalFacts:  len(canonical),
			SemanticFacts:   len(semantic),
			ConflictedFacts: conflicted,
		},
	}

	out.ReasoningPath = append(out.ReasoningPath, fmt.Sprintf("classified query as %s", intent))
	out.ReasoningPath = append(out.ReasoningPath, fmt.Sprintf("facts: %d canonical, %d semantic", len(canonical), len(semantic)))
	if dropped > 0 {
		out.ReasoningPath = append(out.ReasoningPath, fmt.Sprintf("dropped %d malformed fact(s)", dropped))
	}
	out.ReasoningPath = append(out.ReasoningPath, fmt.Sprintf("strategy: %s", strat))
	if conflicted > 0 {
		out.ReasoningPath = append(out.ReasoningPath, fmt.Sprintf("conflicts: %d fact(s) carried conflict annotations", conflicted))
	}
	out.ReasoningPath = append(out.ReasoningPath, fmt.Sprintf("confidence: %s (%.2f)", confidenceBucket(confidence), confidence))

	return out
}

// chooseStrategy is the decision table. Conflicts dominate; intent then
// picks between canonical-centric renderings; with no canonical facts
// the answer integrates semantic suggestions.
func chooseStrategy(intent Intent, canonical, semantic []Fact, conflicted int) strategy {
	switch {
	case len(canonical) == 0 && len(semantic) == 0:
		return strategyNone
	case conflicted > 0:
		return strategyConflictResolution
	case intent == IntentIdentity && len(canonical) > 0:
		return strategyIdentity
	case intent == IntentPreference && len(canonical) > 0:
		return strategyPreference
	case len(canonical) == 0:
		return strategySemanticIntegration
	default:
		return strategyGeneral
	}
}

func render(strat strategy, canonical, semantic []Fact, conflicted int, pol Policy) string {
	switch strat {
	case strategyNone:
		return "No information available for this query."

	case strategyIdentity:
		// Surface the single canonical value verbatim
		f := canonical[0]
		return fmt.Sprintf("%s is %s. [Canonical source]", keyLabel(f.Key), f.Value)

	case strategyPreference:
		var lines []string
		for _, f := range canonical {
			lines = append(lines, fmt.Sprintf("%s: %s [KV: %s]", keyLabel(f.Key), f.Value, f.Key))
		}
		return strings.Join(lines, "\n")

	case strategySemanticIntegration:
		return renderSemantic(semantic, pol)

	case strategyConflictResolution:
		var lines []string
		for _, f := range canonical {
			line := fmt.Sprintf("%s: %s [KV: %s]", keyLabel(f.Key), f.Value, f.Key)
			lines = append(lines, line)
		}
		for _, f := range semantic {
			if !f.Conflicted {
				lines = append(lines, fmt.Sprintf("%s: %s (%d%% match)", keyLabel(f.Key), f.Value, pct(f.Confidence)))
			}
		}
		lines = append(lines, fmt.Sprintf("Note: %d conflicting suggestion(s) were overridden by canonical records.", supersededCount(canonical, conflicted)))
		return strings.Join(lines, "\n")

	default: // strategyGeneral
		var lines []string
		for _, f := range canonical {
			lines = append(lines, fmt.Sprintf("%s: %s [KV: %s]", keyLabel(f.Key), f.Value, f.Key))
		}
		if sem := renderSemantic(semantic, pol); sem != "" {
			lines = append(lines, sem)
		}
		return strings.Join(lines, "\n")
	}
}

// renderSemantic surfaces up to the policy's cap of highest-confidence
// semantic facts, each annotated with its percentage match. Facts arrive
// already ordered by the reconciler (one per key, sorted by key), so we
// re-rank by confidence here without disturbing the input slice.
func renderSemantic(semantic []Fact, pol Policy) string {
	if len(semantic) == 0 {
		return ""
	}
	ranked := make([]Fact, len(semantic))
	copy(ranked, semantic)
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].Confidence > ranked[i].Confidence ||
				(ranked[j].Confidence == ranked[i].Confidence && ranked[j].Key < ranked[i].Key) {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}
	limit := pol.MaxSemanticShown
	if limit <= 0 {
		limit = 3
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	var lines []string
	for _, f := range ranked {
		lines = append(lines, fmt.Sprintf("• %s (%d%% match)", f.Value, pct(f.Confidence)))
	}
	return strings.Join(lines, "\n")
}

// supersededCount recovers the total override count from the canonical
// facts' conflict reasons set by the reconciler.
func supersededCount(canonical []Fact, conflicted int) int {
	total := 0
	for _, f := range canonical {
		if !f.Conflicted {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(f.ConflictReason, "Overrode %d", &n); err == nil {
			total += n
		} else {
			total++
		}
	}
	if total == 0 {
		total = conflicted
	}
	return total
}

// buildCitations attributes the rendered answer to the facts whose value
// or key appears in it (case-insensitively). Returns the citations and
// the matched facts for confidence aggregation.
func buildCitations(content string, facts []Fact) ([]Citation, []Fact) {
	lower := strings.ToLower(content)
	var citations []Citation
	var cited []Fact

	for _, f := range facts {
		value := strings.ToLower(strings.TrimSpace(f.Value))
		key := strings.ToLower(f.Key)
		if value == "" || (!strings.Contains(lower, value) && !strings.Contains(lower, key)) {
			continue
		}

		text := fmt.Sprintf("[KV: %s]", f.Key)
		if f.Source == SourceSemantic {
			text = fmt.Sprintf("[Semantic: %d%% match]", pct(f.Confidence))
		}
		citations = append(citations, Citation{
			FactKey:    f.Key,
			Source:     f.Source,
			Confidence: f.Confidence,
			Canonical:  f.Canonical,
			Text:       text,
		})
		cited = append(cited, f)
	}
	return citations, cited
}

// aggregateConfidence is the weighted average over cited facts with a
// flat penalty per conflicted citation, floored at 0.
func aggregateConfidence(cited []Fact, pol Policy) float64 {
	if len(cited) == 0 {
		return 0.0
	}

	var weighted, weights float64
	penalty := 0.0
	for _, f := range cited {
		w := pol.SemanticWeight
		if f.Source == SourceCanonical {
			w = pol.CanonicalWeight
		}
		weighted += w * f.Confidence
		weights += w
		if f.Conflicted {
			penalty += pol.ConflictPenalty
		}
	}
	if weights == 0 {
		return 0.0
	}

	confidence := weighted/weights - penalty
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func confidenceBucket(c float64) string {
	switch {
	case c < 0.4:
		return "low"
	case c < 0.7:
		return "medium"
	default:
		return "high"
	}
}

func pct(confidence float64) int {
	return int(math.Round(confidence * 100))
}

// keyLabel turns a logical key into a readable label: displayName ->
// "display name", favorite_color -> "favorite color".
func keyLabel(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteRune(' ')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == '_' || r == '-':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
