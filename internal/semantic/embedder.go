// Package semantic provides embeddings and the vector index behind recall.
package semantic

import (
	"math"
	"strings"
)

// Embedder generates vector embeddings for text
type Embedder interface {
	Embed(text string) ([]float32, error)
	Dimensions() int
}

// LocalEmbedder produces deterministic feature-hashed embeddings with no
// network access. Quality is below API embeddings but recall stays usable
// and fully offline, and determinism keeps reconciliation reproducible.
type LocalEmbedder struct {
	dimensions int
	ngramSizes []int
	stopwords  map[string]bool
}

// NewLocalEmbedder creates a local embedder with 256 dimensions
func NewLocalEmbedder() *LocalEmbedder {
	stopwords := map[string]bool{}
	for _, w := range []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to",
		"for", "of", "with", "by", "from", "is", "are", "was", "were",
		"be", "been", "it", "its", "this", "that", "these", "those",
	} {
		stopwords[w] = true
	}
	return &LocalEmbedder{
		dimensions: 256,
		ngramSizes: []int{1, 2},
		stopwords:  stopwords,
	}
}

// Dimensions returns the embedding size
func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed generates an embedding for the given text
func (e *LocalEmbedder) Embed(text string) ([]float32, error) {
	embedding := make([]float32, e.dimensions)

	text = strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		return embedding, nil
	}

	// N-gram features over most of the space, character trigrams in the
	// tail so typos and close variants still land near each other.
	ngramDims := int(float64(e.dimensions) * 0.8)
	e.addNgramFeatures(embedding[:ngramDims], words)
	e.addCharFeatures(embedding[ngramDims:], text)

	normalize(embedding)
	return embedding, nil
}

// tokenize splits text into words, dropping punctuation and single chars
func tokenize(text string) []string {
	for _, p := range []string{".", ",", "!", "?", ";", ":", "'", "\"", "(", ")", "[", "]", "{", "}", "\n", "\t"} {
		text = strings.ReplaceAll(text, p, " ")
	}

	words := strings.Fields(text)
	result := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) > 1 {
			result = append(result, word)
		}
	}
	return result
}

// addNgramFeatures hashes word n-grams into the embedding (feature hashing)
func (e *LocalEmbedder) addNgramFeatures(embedding []float32, words []string) {
	dims := len(embedding)
	if dims == 0 {
		return
	}

	for _, n := range e.ngramSizes {
		weight := 1.0 / float32(n)

		for i := 0; i <= len(words)-n; i++ {
			ngram := strings.Join(words[i:i+n], " ")

			if n == 1 && e.stopwords[words[i]] {
				continue
			}

			h1 := hashString(ngram)
			h2 := hashString(ngram + "_2")

			// Words at the start and end of the text matter more
			posWeight := float32(1.0)
			if i < 3 || i >= len(words)-3 {
				posWeight = 1.5
			}

			embedding[h1%dims] += weight * posWeight
			embedding[h2%dims] -= weight * posWeight * 0.5
		}
	}
}

// addCharFeatures hashes character trigrams into the embedding
func (e *LocalEmbedder) addCharFeatures(embedding []float32, text string) {
	dims := len(embedding)
	if dims == 0 {
		return
	}
	for i := 0; i < len(text)-2; i++ {
		trigram := text[i : i+3]
		embedding[hashString("char_"+trigram)%dims] += 0.1
	}
}

// normalize normalizes a vector to unit length
func normalize(v []float32) {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range v {
			v[i] /= norm
		}
	}
}

func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

// CosineSimilarity computes cosine similarity between two vectors.
// Used by the linear-scan fallback when sqlite-vec is unavailable.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
