// Package store provides the local SQLite storage for Xylem: the
// canonical fact store, the episodic event log, and the semantic
// document corpus with its vector index.
package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xylemhq/xylem/internal/semantic"
)

// Fact is one canonical key-value row. Canonical facts are ground truth
// for their key; confidence below 1.0 only when the writer says so.
type Fact struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Sensitive  bool      `json:"sensitive"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Episode is one row of the append-only episodic event log. The audit
// sink and the transcript importer both write here.
type Episode struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Document is one entry in the semantic corpus. Key is the logical fact
// key the document speaks about, when known; search hits carry it back
// so the reconciler can line semantic evidence up against canonical rows.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Key       string    `json:"key,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides local storage using SQLite
type Store struct {
	db       *sql.DB
	dataDir  string
	embedder semantic.Embedder

	// Vector index for fast KNN recall (no-op if sqlite-vec unavailable)
	idx *semantic.Index
}

// GetDB returns the underlying SQL database handle
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// DataDir returns the directory holding the database.
func (s *Store) DataDir() string {
	return s.dataDir
}

// IndexAvailable reports whether the sqlite-vec KNN index loaded.
func (s *Store) IndexAvailable() bool {
	return s.idx != nil && s.idx.Available()
}

// NewStore creates a new store in XYLEM_DATA_DIR (default ~/.xylem).
func NewStore() (*Store, error) {
	dataDir := os.Getenv("XYLEM_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".xylem")
	}
	return NewStoreAt(dataDir)
}

// NewStoreAt creates a new store in the given directory.
func NewStoreAt(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "xylem.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:       db,
		dataDir:  dataDir,
		embedder: semantic.NewLocalEmbedder(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	s.idx = semantic.NewIndex(db, s.embedder.Dimensions())
	if s.idx.Available() {
		if n, err := s.idx.Backfill(db); err == nil && n > 0 {
			fmt.Fprintf(os.Stderr, "🔍 Backfilled %d documents into vec index\n", n)
		}
	}

	return s, nil
}

// initSchema creates the database tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facts (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		confidence REAL DEFAULT 1.0,
		sensitive INTEGER DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_kind ON episodes(kind);
	CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes(created_at DESC);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		content_hash TEXT,
		key TEXT,
		tags TEXT,
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);
	CREATE INDEX IF NOT EXISTS idx_documents_key ON documents(key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ============================================================================
// Canonical facts
// ============================================================================

// SetFact upserts a canonical fact. Confidence outside (0,1] is clamped
// to 1.0, the store's exact-match default.
func (s *Store) SetFact(ctx context.Context, key, value string, confidence float64, sensitive bool) (*Fact, error) {
	if key == "" {
		return nil, fmt.Errorf("fact key cannot be empty")
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 1.0
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (key, value, confidence, sensitive, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			sensitive = excluded.sensitive,
			updated_at = excluded.updated_at
	`, key, value, confidence, boolToInt(sensitive), now)
	if err != nil {
		return nil, fmt.Errorf("failed to set fact: %w", err)
	}
	return &Fact{Key: key, Value: value, Confidence: confidence, Sensitive: sensitive, UpdatedAt: now}, nil
}

// GetFact returns the canonical fact for a key, or nil if absent.
// Absence is not an error.
func (s *Store) GetFact(ctx context.Context, key string) (*Fact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, value, COALESCE(confidence, 1.0), COALESCE(sensitive, 0), updated_at
		FROM facts WHERE key = ?
	`, key)

	var f Fact
	var sensitive int
	err := row.Scan(&f.Key, &f.Value, &f.Confidence, &sensitive, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Sensitive = sensitive != 0
	return &f, nil
}

// GetFacts returns the canonical facts for the given keys, skipping
// absent ones. Order follows the input key order.
func (s *Store) GetFacts(ctx context.Context, keys []string) ([]Fact, error) {
	var out []Fact
	for _, key := range keys {
		f, err := s.GetFact(ctx, key)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

// ListFacts returns all canonical facts sorted by key.
func (s *Store) ListFacts(ctx context.Context) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, COALESCE(confidence, 1.0), COALESCE(sensitive, 0), updated_at
		FROM facts ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var sensitive int
		if err := rows.Scan(&f.Key, &f.Value, &f.Confidence, &sensitive, &f.UpdatedAt); err != nil {
			continue
		}
		f.Sensitive = sensitive != 0
		facts = append(facts, f)
	}
	return facts, nil
}

// DeleteFact removes a canonical fact
func (s *Store) DeleteFact(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete fact: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("fact not found: %s", key)
	}
	return nil
}

// CountFacts returns the total number of canonical facts
func (s *Store) CountFacts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts`).Scan(&count)
	return count, err
}

// ============================================================================
// Episodic event log
// ============================================================================

// AppendEpisode appends one event to the episodic log. Payload is
// marshalled to JSON; a payload that cannot marshal is stored empty
// rather than failing the append.
func (s *Store) AppendEpisode(ctx context.Context, kind string, payload interface{}) (*Episode, error) {
	if kind == "" {
		return nil, fmt.Errorf("episode kind cannot be empty")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}

	ep := &Episode{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, kind, payload, created_at) VALUES (?, ?, ?, ?)
	`, ep.ID, ep.Kind, string(ep.Payload), ep.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append episode: %w", err)
	}
	return ep, nil
}

// ListEpisodes returns recent episodes, newest first, optionally
// filtered by kind.
func (s *Store) ListEpisodes(ctx context.Context, kind string, limit int) ([]Episode, error) {
	sqlQuery := `SELECT id, kind, payload, created_at FROM episodes`
	args := []interface{}{}
	if kind != "" {
		sqlQuery += ` WHERE kind = ?`
		args = append(args, kind)
	}
	sqlQuery += ` ORDER BY created_at DESC`
	if limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var payload sql.NullString
		if err := rows.Scan(&ep.ID, &ep.Kind, &payload, &ep.CreatedAt); err != nil {
			continue
		}
		if payload.Valid {
			ep.Payload = json.RawMessage(payload.String)
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

// CountEpisodes returns episode counts grouped by kind.
func (s *Store) CountEpisodes(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM episodes GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			continue
		}
		counts[kind] = n
	}
	return counts, nil
}

// ============================================================================
// Semantic document corpus
// ============================================================================

// AddDocument stores a document in the semantic corpus, deduplicating by
// content hash. Key, when given, names the logical fact key the document
// speaks about.
func (s *Store) AddDocument(ctx context.Context, content, key string, tags []string) (*Document, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("document content cannot be empty")
	}

	hash := contentHash(content)

	// Duplicate content: return the existing document untouched
	var existingID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE content_hash = ?`, hash).Scan(&existingID)
	if err == nil {
		return s.GetDocument(ctx, existingID)
	}

	embedding, err := s.embedder.Embed(content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Embedding failed: %v\n", err)
		embedding = make([]float32, s.embedder.Dimensions())
	}

	doc := &Document{
		ID:        generateID(),
		Content:   content,
		Key:       key,
		Tags:      tags,
		Embedding: embedding,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	tagsJSON, _ := json.Marshal(tags)
	embeddingJSON, _ := json.Marshal(embedding)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, content, content_hash, key, tags, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Content, hash, doc.Key, string(tagsJSON), string(embeddingJSON), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if s.idx != nil {
		s.idx.Insert(doc.ID, embedding)
	}

	return doc, nil
}

// GetDocument returns a single document by ID, or nil if not found.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, key, tags, embedding, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)

	doc, err := scanDocumentRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// ListDocuments returns recent documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]*Document, error) {
	sqlQuery := `SELECT id, content, key, tags, embedding, created_at, updated_at FROM documents ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocumentRow(rows.Scan)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteDocument removes a document and its index entry
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	if s.idx != nil {
		s.idx.Delete(id)
	}
	return nil
}

// CountDocuments returns the total number of documents
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// Search finds documents similar to the query and returns ranked hits.
// An empty result is "no semantic evidence", never an error; internal
// failures degrade to an empty list so the chat turn can proceed
// canonical-only.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]semantic.Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	queryEmbedding, err := s.embedder.Embed(query)
	if err != nil {
		return nil, nil
	}

	// Fast path: sqlite-vec KNN
	if s.idx != nil && s.idx.Available() {
		hits, err := s.searchWithIndex(ctx, queryEmbedding, limit)
		if err == nil && len(hits) > 0 {
			return hits, nil
		}
		// Fall through to linear scan on error or empty results
	}

	return s.searchLinearScan(ctx, queryEmbedding, limit)
}

func (s *Store) searchWithIndex(ctx context.Context, queryEmbedding []float32, limit int) ([]semantic.Hit, error) {
	results, err := s.idx.Search(queryEmbedding, limit)
	if err != nil || len(results) == 0 {
		return nil, err
	}

	var hits []semantic.Hit
	for _, r := range results {
		doc, err := s.GetDocument(ctx, r.DocID)
		if err != nil || doc == nil {
			continue
		}
		score := 1.0 - r.Distance
		if score < 0 {
			score = 0
		}
		hits = append(hits, hitFromDocument(doc, score))
	}
	return hits, nil
}

func (s *Store) searchLinearScan(ctx context.Context, queryEmbedding []float32, limit int) ([]semantic.Hit, error) {
	docs, err := s.ListDocuments(ctx, 0)
	if err != nil {
		return nil, nil
	}

	type scored struct {
		doc   *Document
		score float64
	}
	var candidates []scored
	for _, doc := range docs {
		score := semantic.CosineSimilarity(queryEmbedding, doc.Embedding)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, scored{doc, score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	var hits []semantic.Hit
	for _, c := range candidates {
		hits = append(hits, hitFromDocument(c.doc, c.score))
	}
	return hits, nil
}

func hitFromDocument(doc *Document, score float64) semantic.Hit {
	return semantic.Hit{
		DocID: doc.ID,
		Text:  doc.Content,
		Score: score,
		Key:   doc.Key,
		Metadata: map[string]string{
			"store":      "documents",
			"created_at": doc.CreatedAt.Format(time.RFC3339),
		},
	}
}

// ============================================================================
// Stats and lifecycle
// ============================================================================

// Size returns the database file size as a human-readable string
func (s *Store) Size() (string, error) {
	dbPath := filepath.Join(s.dataDir, "xylem.db")
	info, err := os.Stat(dbPath)
	if err != nil {
		return "unknown", err
	}

	size := info.Size()
	if size < 1024 {
		return fmt.Sprintf("%d B", size), nil
	} else if size < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(size)/1024), nil
	}
	return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024)), nil
}

// LastActivity returns the timestamp of the most recent episode or fact update
func (s *Store) LastActivity(ctx context.Context) (time.Time, error) {
	var lastStr sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(t) FROM (
			SELECT MAX(created_at) AS t FROM episodes
			UNION ALL
			SELECT MAX(updated_at) AS t FROM facts
		)
	`).Scan(&lastStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if !lastStr.Valid || lastStr.String == "" {
		return time.Time{}, nil
	}
	// SQLite stores a few datetime formats depending on how the row was written
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05Z",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, lastStr.String); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp: %s", lastStr.String)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Helper functions

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// contentHash calculates SHA256 hash of content for deduplication
func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanDocumentRow(scan func(...interface{}) error) (*Document, error) {
	var doc Document
	var keyNull, tagsNull, embNull sql.NullString

	err := scan(&doc.ID, &doc.Content, &keyNull, &tagsNull, &embNull, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if keyNull.Valid {
		doc.Key = keyNull.String
	}
	if tagsNull.Valid {
		json.Unmarshal([]byte(tagsNull.String), &doc.Tags)
	}
	if embNull.Valid {
		json.Unmarshal([]byte(embNull.String), &doc.Embedding)
	}
	return &doc, nil
}
