package recon

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DetectConflicts compares canonical facts against semantic facts for
// the same logical key and reports every disagreement. It also scans
// semantic facts with no canonical counterpart for internal
// inconsistencies. Output order is deterministic (sorted by key).
func DetectConflicts(canonical, semantic []Fact, pol Policy) []Conflict {
	canonByKey := make(map[string]Fact)
	for _, f := range canonical {
		// First canonical fact per key wins; the store holds one row per key
		if _, seen := canonByKey[f.Key]; !seen {
			canonByKey[f.Key] = f
		}
	}

	semByKey := make(map[string][]Fact)
	for _, f := range semantic {
		semByKey[f.Key] = append(semByKey[f.Key], f)
	}

	now := time.Now()
	var conflicts []Conflict

	for _, key := range sortedKeys(semByKey) {
		sems := semByKey[key]
		canon, hasCanon := canonByKey[key]
		if hasCanon {
			if c, ok := mixedConflict(key, canon, sems, pol, now); ok {
				conflicts = append(conflicts, c)
			}
			continue
		}
		if c, ok := internalConflict(key, sems, now); ok {
			conflicts = append(conflicts, c)
		}
	}

	return conflicts
}

// mixedConflict checks one key present in both sources. No conflict when
// every semantic value agrees with the canonical value.
func mixedConflict(key string, canon Fact, sems []Fact, pol Policy, now time.Time) (Conflict, bool) {
	var disagreeing []Fact
	for _, s := range sems {
		if !valuesEqual(canon.Value, s.Value) {
			disagreeing = append(disagreeing, s)
		}
	}
	if len(disagreeing) == 0 {
		return Conflict{}, false
	}

	values := make([]string, len(disagreeing))
	confidences := make([]float64, len(disagreeing))
	maxConf := 0.0
	for i, s := range disagreeing {
		values[i] = s.Value
		confidences[i] = s.Confidence
		if s.Confidence > maxConf {
			maxConf = s.Confidence
		}
	}
	distinct := distinctValueCount(values)

	var severity Severity
	var manual bool
	switch pol.classifyKey(key) {
	case keyStrict:
		severity = SeverityHigh
		manual = false // canonical wins unconditionally for identity keys
	case keyPreference:
		severity = SeverityMedium
		manual = distinct > 1
	default:
		severity = SeverityLow
		if maxConf > pol.HighConfidence {
			severity = SeverityMedium
		}
		manual = distinct > 2
	}

	kv := canon.Value
	return Conflict{
		FactKey:                  key,
		KVValue:                  &kv,
		SemanticValues:           values,
		SemanticConfidences:      confidences,
		Severity:                 severity,
		RequiresManualResolution: manual,
		Rationale:                mixedRationale(key, canon.Value, values),
		CreatedAt:                now,
	}, true
}

// internalConflict checks semantic facts for a key with no canonical
// counterpart: more than one distinct value is an internal inconsistency.
func internalConflict(key string, sems []Fact, now time.Time) (Conflict, bool) {
	if len(sems) < 2 {
		return Conflict{}, false
	}

	values := make([]string, len(sems))
	confidences := make([]float64, len(sems))
	for i, s := range sems {
		values[i] = s.Value
		confidences[i] = s.Confidence
	}
	distinct := distinctValueCount(values)
	if distinct < 2 {
		return Conflict{}, false
	}

	return Conflict{
		FactKey:                  key,
		KVValue:                  nil,
		SemanticValues:           values,
		SemanticConfidences:      confidences,
		Severity:                 SeverityLow,
		RequiresManualResolution: distinct > 3,
		Rationale:                internalRationale(key, values, distinct),
		CreatedAt:                now,
	}, true
}

// mixedRationale names the key, the canonical value, and up to three
// conflicting alternatives. This text surfaces in audit and UI displays,
// so it is fully determined by the inputs.
func mixedRationale(key, kvValue string, alternatives []string) string {
	shown := alternatives
	if len(shown) > 3 {
		shown = shown[:3]
	}
	quoted := make([]string, len(shown))
	for i, v := range shown {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	suffix := ""
	if len(alternatives) > 3 {
		suffix = fmt.Sprintf(" (+%d more)", len(alternatives)-3)
	}
	return fmt.Sprintf("canonical %s=%q contradicted by %d semantic suggestion(s): %s%s",
		key, kvValue, len(alternatives), strings.Join(quoted, ", "), suffix)
}

func internalRationale(key string, values []string, distinct int) string {
	shown := values
	if len(shown) > 3 {
		shown = shown[:3]
	}
	quoted := make([]string, len(shown))
	for i, v := range shown {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	suffix := ""
	if len(values) > 3 {
		suffix = fmt.Sprintf(" (+%d more)", len(values)-3)
	}
	return fmt.Sprintf("semantic facts for %s disagree internally (%d distinct values, no canonical fact): %s%s",
		key, distinct, strings.Join(quoted, ", "), suffix)
}

// distinctValueCount counts values distinct under trimmed,
// case-insensitive comparison.
func distinctValueCount(values []string) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return len(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
