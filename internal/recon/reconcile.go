package recon

import (
	"fmt"
	"sort"
)

// Reconcile groups facts by key and resolves each group to a single
// authoritative fact under the canonical-wins policy. Canonical data is
// never dropped or demoted in favor of semantic suggestions; semantic
// confidence only ever influences conflict severity, never which value
// is returned. For a fixed input the output is identical across runs.
func Reconcile(facts []Fact, query string, pol Policy) ReconciliationResult {
	var result ReconciliationResult

	var canonical, semantic []Fact
	for _, f := range facts {
		switch f.Source {
		case SourceCanonical:
			canonical = append(canonical, f)
		case SourceSemantic:
			semantic = append(semantic, f)
		default:
			// Unknown source: drop with a note rather than failing the pass
			result.Notes = append(result.Notes, fmt.Sprintf("dropped fact %q with unknown source %q", f.Key, f.Source))
		}
	}

	result.Conflicts = DetectConflicts(canonical, semantic, pol)
	conflictByKey := make(map[string]Conflict, len(result.Conflicts))
	for _, c := range result.Conflicts {
		conflictByKey[c.FactKey] = c
	}

	canonByKey := make(map[string]Fact)
	for _, f := range canonical {
		if _, seen := canonByKey[f.Key]; !seen {
			canonByKey[f.Key] = f
		}
	}
	semByKey := make(map[string][]Fact)
	for _, f := range semantic {
		semByKey[f.Key] = append(semByKey[f.Key], f)
	}

	allKeys := make(map[string]bool)
	for k := range canonByKey {
		allKeys[k] = true
	}
	for k := range semByKey {
		allKeys[k] = true
	}

	for _, key := range sortedKeys(allKeys) {
		canon, hasCanon := canonByKey[key]
		sems := semByKey[key]

		if hasCanon {
			resolved := canon
			resolved.Canonical = true

			conflict, conflicted := conflictByKey[key]
			if conflicted && conflict.KVValue != nil {
				overridden := markOverridden(sems, canon, &result)
				resolved.Conflicted = true
				resolved.ConflictReason = fmt.Sprintf("Overrode %d conflicting semantic suggestion(s)", overridden)
				result.KVOverridesApplied++
			}
			result.Facts = append(result.Facts, resolved)
			continue
		}

		// Semantic-only group: the highest-confidence fact represents the
		// key; ties break on value ordering so reruns agree.
		best := pickRepresentative(sems)
		best.Canonical = false
		result.Facts = append(result.Facts, best)
		result.Notes = append(result.Notes, fmt.Sprintf("no canonical fact exists for %s; using highest-confidence semantic suggestion", key))
	}

	return result
}

// markOverridden annotates every semantic fact that disagrees with the
// canonical value and counts it as an ignored suggestion.
func markOverridden(sems []Fact, canon Fact, result *ReconciliationResult) int {
	overridden := 0
	for _, s := range sems {
		if valuesEqual(canon.Value, s.Value) {
			continue
		}
		s.Conflicted = true
		s.Canonical = false
		s.ConflictReason = "Overridden by canonical fact"
		result.Superseded = append(result.Superseded, s)
		result.SemanticSuggestionsIgnored++
		overridden++
	}
	return overridden
}

// pickRepresentative selects the highest-confidence fact, breaking
// confidence ties by value then provenance doc id for determinism.
func pickRepresentative(sems []Fact) Fact {
	sorted := make([]Fact, len(sems))
	copy(sorted, sems)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value < sorted[j].Value
		}
		return sorted[i].Provenance["doc_id"] < sorted[j].Provenance["doc_id"]
	})
	return sorted[0]
}
