package recon

import (
	"fmt"
	"time"

	"github.com/xylemhq/xylem/internal/semantic"
)

// Tool names recognized by extraction. Results from unknown tools
// contribute zero facts.
const (
	ToolKVLookup       = "kv_lookup"
	ToolSemanticSearch = "semantic_search"
)

// KVRow is one row returned by the canonical-lookup tool.
type KVRow struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence,omitempty"`
	Sensitive  bool      `json:"sensitive,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// ToolResult is one raw tool-call result handed to the engine by the
// orchestrator. A result with Failed set contributes zero facts.
type ToolResult struct {
	Tool   string         `json:"tool"`
	Failed bool           `json:"failed,omitempty"`
	Rows   []KVRow        `json:"rows,omitempty"`
	Hits   []semantic.Hit `json:"hits,omitempty"`
}

// ExtractionResult is the outcome of extracting facts from raw tool
// results. Skipped counts malformed records dropped along the way, so
// data loss is observable instead of silent.
type ExtractionResult struct {
	Facts   []Fact `json:"facts"`
	Skipped int    `json:"skipped"`
}

// CanonicalFacts returns the extracted facts sourced from the canonical store.
func (r ExtractionResult) CanonicalFacts() []Fact {
	return factsBySource(r.Facts, SourceCanonical)
}

// SemanticFacts returns the extracted facts sourced from semantic search.
func (r ExtractionResult) SemanticFacts() []Fact {
	return factsBySource(r.Facts, SourceSemantic)
}

func factsBySource(facts []Fact, src Source) []Fact {
	var out []Fact
	for _, f := range facts {
		if f.Source == src {
			out = append(out, f)
		}
	}
	return out
}

// ExtractFacts converts raw tool-call results into a uniform fact list.
// It is a pure transform and never fails: malformed rows and hits are
// dropped and counted, failed tool calls contribute nothing.
func ExtractFacts(results []ToolResult, pol Policy) ExtractionResult {
	var out ExtractionResult
	for _, res := range results {
		if res.Failed {
			continue
		}
		switch res.Tool {
		case ToolKVLookup:
			for _, row := range res.Rows {
				fact, ok := canonicalFact(row, pol)
				if !ok {
					out.Skipped++
					continue
				}
				out.Facts = append(out.Facts, fact)
			}
		case ToolSemanticSearch:
			for _, hit := range res.Hits {
				fact, ok := semanticFact(hit, pol)
				if !ok {
					out.Skipped++
					continue
				}
				out.Facts = append(out.Facts, fact)
			}
		default:
			// Unknown tool: every record it carried is unusable
			out.Skipped += len(res.Rows) + len(res.Hits)
		}
	}
	return out
}

// canonicalFact builds a Fact from one KV row. Confidence defaults to
// exact-match 1.0 unless the store reported something lower.
func canonicalFact(row KVRow, pol Policy) (Fact, bool) {
	if row.Key == "" || row.Value == "" {
		return Fact{}, false
	}

	confidence := row.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 1.0
	}

	prov := map[string]string{
		"store": "canonical_kv",
		"key":   row.Key,
	}
	if !row.UpdatedAt.IsZero() {
		prov["updated_at"] = row.UpdatedAt.Format(time.RFC3339)
	}
	if row.Sensitive {
		prov["sensitive"] = "true"
	}

	return Fact{
		Key:        row.Key,
		Value:      row.Value,
		Source:     SourceCanonical,
		Confidence: confidence,
		Canonical:  pol.knownKey(row.Key),
		Provenance: prov,
	}, true
}

// semanticFact builds a Fact from one search hit. Confidence is the hit
// score capped below exactness; semantic facts are never canonical at
// extraction time.
func semanticFact(hit semantic.Hit, pol Policy) (Fact, bool) {
	if hit.Text == "" || hit.DocID == "" {
		return Fact{}, false
	}

	score := hit.Score
	if score < 0 {
		score = 0
	}
	if score > pol.SemanticCap {
		score = pol.SemanticCap
	}

	key := hit.Key
	if key == "" {
		key = hit.DocID
	}

	prov := map[string]string{
		"store":  "semantic_index",
		"doc_id": hit.DocID,
		"score":  fmt.Sprintf("%.3f", hit.Score),
	}
	for k, v := range hit.Metadata {
		if _, taken := prov[k]; !taken {
			prov[k] = v
		}
	}

	return Fact{
		Key:        key,
		Value:      hit.Text,
		Source:     SourceSemantic,
		Confidence: score,
		Canonical:  false,
		Provenance: prov,
	}, true
}
