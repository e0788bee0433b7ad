package importer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xylemhq/xylem/internal/store"
)

func setupImporter(t *testing.T) (*TranscriptImporter, *store.Store) {
	t.Helper()
	s, err := store.NewStoreAt(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewTranscriptImporter(s), s
}

func writeTranscriptFile(t *testing.T, name string, transcripts interface{}) string {
	t.Helper()
	data, err := json.Marshal(transcripts)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleTranscript() Transcript {
	return Transcript{
		ID:    "t1",
		Title: "onboarding chat",
		Messages: []Message{
			{Role: "user", Text: "my display name should be Mark from now on please"},
			{Role: "assistant", Text: "Noted, I will call you Mark."},
			{Role: "user", Text: "ok"},
		},
	}
}

func TestImportFromFile_JSONArray(t *testing.T) {
	imp, s := setupImporter(t)
	ctx := context.Background()

	path := writeTranscriptFile(t, "export.json", []Transcript{sampleTranscript()})
	result, err := imp.ImportFromFile(ctx, path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	if result.TranscriptsProcessed != 1 {
		t.Errorf("expected 1 transcript, got %d", result.TranscriptsProcessed)
	}
	// All three messages become episodes
	if result.EpisodesCreated != 3 {
		t.Errorf("expected 3 episodes, got %d", result.EpisodesCreated)
	}
	// Only the substantive user message is indexed: the assistant reply
	// and the trivial "ok" are skipped
	if result.DocumentsCreated != 1 {
		t.Errorf("expected 1 document, got %d", result.DocumentsCreated)
	}

	episodes, err := s.ListEpisodes(ctx, "transcript_message", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 3 {
		t.Errorf("expected 3 transcript episodes, got %d", len(episodes))
	}
}

func TestImportFromFile_SingleObject(t *testing.T) {
	imp, _ := setupImporter(t)

	path := writeTranscriptFile(t, "single.json", sampleTranscript())
	result, err := imp.ImportFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.TranscriptsProcessed != 1 {
		t.Errorf("expected 1 transcript, got %d", result.TranscriptsProcessed)
	}
}

func TestImportFromFile_JSONL(t *testing.T) {
	imp, _ := setupImporter(t)

	a, _ := json.Marshal(sampleTranscript())
	second := sampleTranscript()
	second.ID = "t2"
	second.Messages[0].Text = "my timezone is Europe/Berlin, remember that for scheduling"
	b, _ := json.Marshal(second)

	path := filepath.Join(t.TempDir(), "export.jsonl")
	content := string(a) + "\n" + "{broken json\n" + string(b) + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := imp.ImportFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.TranscriptsProcessed != 2 {
		t.Errorf("expected 2 transcripts, got %d", result.TranscriptsProcessed)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 parse error for the broken line, got %v", result.Errors)
	}
}

func TestImportFromFile_InvalidJSON(t *testing.T) {
	imp, _ := setupImporter(t)

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json at all"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := imp.ImportFromFile(context.Background(), path); err == nil {
		t.Error("expected error for unparseable file")
	}
}

func TestImportFromDirectory(t *testing.T) {
	imp, _ := setupImporter(t)

	dir := t.TempDir()
	for i, tr := range []Transcript{sampleTranscript(), {
		ID:       "t2",
		Messages: []Message{{Role: "user", Text: "the project deadline moved to the end of September"}},
	}} {
		data, _ := json.Marshal([]Transcript{tr})
		if err := os.WriteFile(filepath.Join(dir, string(rune('a'+i))+".json"), data, 0600); err != nil {
			t.Fatal(err)
		}
	}
	// Non-JSON files are ignored
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignore me"), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := imp.ImportFromDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.TranscriptsProcessed != 2 {
		t.Errorf("expected 2 transcripts, got %d", result.TranscriptsProcessed)
	}
}

func TestWorthIndexing(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"ok", false},
		{"thanks", false},
		{"short", false},
		{"my display name should be Mark from now on", true},
	}
	for _, tc := range cases {
		if got := worthIndexing(tc.text); got != tc.want {
			t.Errorf("worthIndexing(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
