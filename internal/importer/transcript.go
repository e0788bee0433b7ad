// Package importer loads chat transcripts into the memory scaffold:
// every message becomes an episode, and user messages long enough to
// carry meaning join the semantic document corpus.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xylemhq/xylem/internal/store"
)

// Transcript is one exported conversation.
type Transcript struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Messages  []Message `json:"messages"`
}

// Message is one turn in a transcript.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ImportResult summarizes one import run.
type ImportResult struct {
	TranscriptsProcessed int
	EpisodesCreated      int
	DocumentsCreated     int
	Errors               []string
	Duration             time.Duration
}

// TranscriptImporter imports transcript exports into the store.
type TranscriptImporter struct {
	store *store.Store
}

// NewTranscriptImporter creates an importer over the given store.
func NewTranscriptImporter(s *store.Store) *TranscriptImporter {
	return &TranscriptImporter{store: s}
}

// ImportFromFile imports transcripts from a JSON or JSONL file.
func (i *TranscriptImporter) ImportFromFile(ctx context.Context, filePath string) (*ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var transcripts []Transcript

	if strings.ToLower(filepath.Ext(filePath)) == ".jsonl" {
		scanner := bufio.NewScanner(file)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 10*1024*1024) // 10MB max line

		for scanner.Scan() {
			var t Transcript
			if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("line parse error: %v", err))
				continue
			}
			transcripts = append(transcripts, t)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scanner error: %w", err)
		}
	} else {
		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&transcripts); err != nil {
			// Try single transcript
			file.Seek(0, 0)
			var single Transcript
			if err := json.NewDecoder(file).Decode(&single); err != nil {
				return nil, fmt.Errorf("failed to parse JSON: %w", err)
			}
			transcripts = []Transcript{single}
		}
	}

	for _, t := range transcripts {
		result.TranscriptsProcessed++
		i.importTranscript(ctx, t, result)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ImportFromDirectory imports all JSON/JSONL files under a directory.
func (i *TranscriptImporter) ImportFromDirectory(ctx context.Context, dirPath string) (*ImportResult, error) {
	combined := &ImportResult{}
	start := time.Now()

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		lower := strings.ToLower(path)
		if !info.IsDir() && (strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".jsonl")) {
			result, err := i.ImportFromFile(ctx, path)
			if err != nil {
				combined.Errors = append(combined.Errors, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			combined.TranscriptsProcessed += result.TranscriptsProcessed
			combined.EpisodesCreated += result.EpisodesCreated
			combined.DocumentsCreated += result.DocumentsCreated
			combined.Errors = append(combined.Errors, result.Errors...)
		}
		return nil
	})

	combined.Duration = time.Since(start)
	return combined, err
}

func (i *TranscriptImporter) importTranscript(ctx context.Context, t Transcript, result *ImportResult) {
	for _, msg := range t.Messages {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}

		_, err := i.store.AppendEpisode(ctx, "transcript_message", map[string]interface{}{
			"transcript": t.ID,
			"title":      t.Title,
			"role":       msg.Role,
			"text":       truncate(text, 2000),
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("transcript %s: %v", t.ID, err))
			continue
		}
		result.EpisodesCreated++

		// Only substantive user statements feed semantic recall;
		// assistant output would teach the index its own answers.
		if msg.Role == "user" && worthIndexing(text) {
			tags := []string{"imported", "transcript"}
			if _, err := i.store.AddDocument(ctx, text, "", tags); err == nil {
				result.DocumentsCreated++
			}
		}
	}
}

// worthIndexing filters out trivial messages (greetings, one-word
// replies) that would only add noise to recall.
func worthIndexing(text string) bool {
	if len(text) < 20 {
		return false
	}
	lower := strings.ToLower(text)
	for _, trivial := range []string{"thanks", "thank you", "ok", "okay", "yes", "no", "hello", "hi "} {
		if lower == trivial {
			return false
		}
	}
	return true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
