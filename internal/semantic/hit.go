package semantic

// Hit is one ranked result from similarity search: a document, its text,
// a score in [0,1], and origin metadata carried through to provenance.
type Hit struct {
	DocID    string            `json:"doc_id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Key      string            `json:"key,omitempty"` // resolved logical key, if the document maps to one
	Metadata map[string]string `json:"metadata,omitempty"`
}
