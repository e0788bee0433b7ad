// Package recon implements the memory reconciliation engine: it takes
// facts retrieved from the canonical key-value store and from semantic
// search, detects disagreements, resolves them under a canonical-wins
// policy, and synthesizes one cited, confidence-scored answer.
package recon

import (
	"strings"
	"time"
)

// Source identifies where a fact came from.
type Source string

const (
	// SourceCanonical marks facts from the authoritative key-value store.
	SourceCanonical Source = "canonical"
	// SourceSemantic marks facts surfaced by similarity search.
	SourceSemantic Source = "semantic"
)

// Severity grades how serious a detected conflict is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Fact is a single piece of information with attribution. Conflicted and
// ConflictReason are set by the reconciler, never by extraction.
type Fact struct {
	Key            string            `json:"key"`
	Value          string            `json:"value"`
	Source         Source            `json:"source"`
	Confidence     float64           `json:"confidence"`
	Canonical      bool              `json:"canonical"`
	Conflicted     bool              `json:"conflicted,omitempty"`
	ConflictReason string            `json:"conflict_reason,omitempty"`
	Provenance     map[string]string `json:"provenance,omitempty"`
}

// Conflict records a detected disagreement between a canonical fact and
// one or more semantic facts (or among semantic facts alone) for one key.
// KVValue is nil for purely-semantic internal inconsistencies.
type Conflict struct {
	FactKey                  string    `json:"fact_key"`
	KVValue                  *string   `json:"kv_value,omitempty"`
	SemanticValues           []string  `json:"semantic_values"`
	SemanticConfidences      []float64 `json:"semantic_confidences"`
	Severity                 Severity  `json:"severity"`
	RequiresManualResolution bool      `json:"requires_manual_resolution"`
	Rationale                string    `json:"rationale"`
	CreatedAt                time.Time `json:"created_at"`
}

// ReconciliationResult is the output of one reconciliation pass.
// Facts holds one resolved fact per logical key; Superseded holds the
// semantic facts that were overridden, annotated with their reason.
type ReconciliationResult struct {
	Facts                      []Fact     `json:"facts"`
	Superseded                 []Fact     `json:"superseded,omitempty"`
	Conflicts                  []Conflict `json:"conflicts,omitempty"`
	Notes                      []string   `json:"reconciliation_notes,omitempty"`
	KVOverridesApplied         int        `json:"kv_overrides_applied"`
	SemanticSuggestionsIgnored int        `json:"semantic_suggestions_ignored"`
}

// Citation attributes part of a synthesized answer to one fact.
type Citation struct {
	FactKey    string  `json:"fact_key"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
	Canonical  bool    `json:"canonical"`
	Text       string  `json:"citation_text"`
}

// ProvenanceSummary is the aggregate source breakdown of an answer.
type ProvenanceSummary struct {
	CanonicalFacts  int `json:"canonical_facts"`
	SemanticFacts   int `json:"semantic_facts"`
	ConflictedFacts int `json:"conflicted_facts"`
}

// SynthesisOutput is the rendered answer plus its audit trail.
type SynthesisOutput struct {
	Content       string            `json:"content"`
	Citations     []Citation        `json:"citations"`
	Confidence    float64           `json:"confidence"`
	ReasoningPath []string          `json:"reasoning_path"`
	Provenance    ProvenanceSummary `json:"provenance"`
}

// Policy holds the tunable constants of the reconciliation engine.
// The defaults mirror long-standing behavior; none of them is a hard
// invariant and callers may adjust them per deployment.
type Policy struct {
	// SemanticCap bounds semantic fact confidence below exactness.
	SemanticCap float64

	// HighConfidence is the semantic confidence above which a conflict's
	// severity is bumped for non-strict keys.
	HighConfidence float64

	// CanonicalWeight and SemanticWeight weight cited facts when
	// aggregating answer confidence.
	CanonicalWeight float64
	SemanticWeight  float64

	// ConflictPenalty is subtracted per conflicted cited fact.
	ConflictPenalty float64

	// MaxSemanticShown caps how many semantic facts a rendered answer
	// surfaces.
	MaxSemanticShown int

	// ExtraStrictKeys and ExtraPreferenceKeys extend the built-in key
	// sets (normalized form, see normalizeKey).
	ExtraStrictKeys     []string
	ExtraPreferenceKeys []string
}

// DefaultPolicy returns the baseline policy.
func DefaultPolicy() Policy {
	return Policy{
		SemanticCap:      0.9,
		HighConfidence:   0.8,
		CanonicalWeight:  1.0,
		SemanticWeight:   0.7,
		ConflictPenalty:  0.1,
		MaxSemanticShown: 3,
	}
}

// keyClass partitions logical keys by how strictly canonical data wins.
type keyClass int

const (
	keyStrict keyClass = iota // identity fields, canonical wins unconditionally
	keyPreference
	keyUncategorized
)

// strictKeys are identity fields. Canonical wins with no ambiguity and
// conflicts on them never require manual resolution.
var strictKeys = map[string]bool{
	"displayname": true,
	"username":    true,
	"email":       true,
	"userid":      true,
}

// preferenceKeys are user preferences where conflicting semantic
// evidence may warrant a human look.
var preferenceKeys = map[string]bool{
	"favoritecolor": true,
	"timezone":      true,
	"language":      true,
	"theme":         true,
	"notifications": true,
	"privacylevel":  true,
	"datasharing":   true,
}

// normalizeKey folds case and separators so displayName, display_name,
// and "display name" classify identically.
func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r == '_' || r == '-' || r == ' ' || r == '.':
			// drop separators
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// classifyKey returns the policy class for a logical key.
func (p Policy) classifyKey(key string) keyClass {
	norm := normalizeKey(key)
	if strictKeys[norm] {
		return keyStrict
	}
	for _, k := range p.ExtraStrictKeys {
		if normalizeKey(k) == norm {
			return keyStrict
		}
	}
	if preferenceKeys[norm] {
		return keyPreference
	}
	for _, k := range p.ExtraPreferenceKeys {
		if normalizeKey(k) == norm {
			return keyPreference
		}
	}
	return keyUncategorized
}

// knownKey reports whether the key belongs to either curated set.
func (p Policy) knownKey(key string) bool {
	return p.classifyKey(key) != keyUncategorized
}

// valuesEqual compares fact values case-insensitively after trimming.
func valuesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
