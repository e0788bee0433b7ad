package semantic

import (
	"math"
	"testing"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder()

	a, err := e.Embed("the user prefers dark themes")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, err := e.Embed("the user prefers dark themes")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at dim %d for identical text", i)
		}
	}
}

func TestLocalEmbedder_Dimensions(t *testing.T) {
	e := NewLocalEmbedder()
	if e.Dimensions() != 256 {
		t.Errorf("expected 256 dimensions, got %d", e.Dimensions())
	}
	v, _ := e.Embed("hello world")
	if len(v) != e.Dimensions() {
		t.Errorf("embedding length %d does not match dimensions %d", len(v), e.Dimensions())
	}
}

func TestLocalEmbedder_UnitLength(t *testing.T) {
	e := NewLocalEmbedder()
	v, _ := e.Embed("some nontrivial text about colors and preferences")

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("expected unit-length embedding, got norm %v", norm)
	}
}

func TestLocalEmbedder_EmptyText(t *testing.T) {
	e := NewLocalEmbedder()
	v, err := e.Embed("")
	if err != nil {
		t.Fatalf("embedding empty text failed: %v", err)
	}
	for i, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector for empty text, dim %d is %v", i, x)
		}
	}
}

func TestLocalEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewLocalEmbedder()

	base, _ := e.Embed("the user's favorite color is teal")
	similar, _ := e.Embed("the user likes the color teal most")
	unrelated, _ := e.Embed("deployment checklist for the staging cluster")

	simScore := CosineSimilarity(base, similar)
	unrelScore := CosineSimilarity(base, unrelated)

	if simScore <= unrelScore {
		t.Errorf("similar text scored %v, unrelated %v; expected similar to win", simScore, unrelScore)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if got := CosineSimilarity(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical vectors: got %v, want 1", got)
	}
	if got := CosineSimilarity(a, c); got != 0 {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
	if got := CosineSimilarity(a, []float32{1, 0}); got != 0 {
		t.Errorf("mismatched lengths: got %v, want 0", got)
	}
	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors: got %v, want 0", got)
	}
}

func TestTokenize(t *testing.T) {
	words := tokenize("Hello, world! It's a test.")
	// Single-character tokens and punctuation are dropped
	for _, w := range words {
		if len(w) < 2 {
			t.Errorf("tokenize kept short token %q", w)
		}
	}
	found := false
	for _, w := range words {
		if w == "hello" || w == "Hello" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected hello token, got %v", words)
	}
}
