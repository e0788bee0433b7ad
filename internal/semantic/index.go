package semantic

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	// The cgo sqlite-vec bindings link against the sqlite3 C API, which is
	// provided by go-sqlite3's bundled amalgamation.
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Index manages the sqlite-vec vector index for fast KNN queries.
// If the extension fails to load, all operations are no-ops and recall
// falls back to brute-force cosine similarity over the document table.
type Index struct {
	db         *sql.DB
	dimensions int
	available  bool
}

// Result is one KNN match: a document ID and its cosine distance.
type Result struct {
	DocID    string
	Distance float64
}

// NewIndex creates the vec0 index over document embeddings.
func NewIndex(db *sql.DB, dimensions int) *Index {
	idx := &Index{db: db, dimensions: dimensions}
	if err := idx.ensureSchema(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  sqlite-vec not available, using linear scan: %v\n", err)
		idx.available = false
	} else {
		idx.available = true
	}
	return idx
}

// Available reports whether the vec0 extension loaded.
func (idx *Index) Available() bool {
	return idx.available
}

func (idx *Index) ensureSchema() error {
	// Verify vec0 extension is loaded
	var vecVersion string
	if err := idx.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("vec_version() failed: %w", err)
	}

	// Metadata table to track embedding dimensions
	if _, err := idx.db.Exec(`CREATE TABLE IF NOT EXISTS vec_metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("failed to create vec_metadata: %w", err)
	}

	// ID mapping table (vec0 requires integer rowids, documents use text IDs)
	if _, err := idx.db.Exec(`CREATE TABLE IF NOT EXISTS doc_vec_ids (
		vec_id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_id TEXT UNIQUE NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create vec ID mapping: %w", err)
	}

	// Handle dimension changes (e.g. after swapping embedders)
	idx.handleDimensionChange()

	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS doc_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		idx.dimensions,
	)
	if _, err := idx.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create vec0 table: %w", err)
	}

	idx.db.Exec(`INSERT OR REPLACE INTO vec_metadata (key, value) VALUES ('dimensions', ?)`,
		fmt.Sprintf("%d", idx.dimensions))

	return nil
}

// handleDimensionChange drops the vec0 table when the embedder dimensions
// changed since last run so it can be recreated with the right size.
func (idx *Index) handleDimensionChange() {
	var storedDim string
	err := idx.db.QueryRow(`SELECT value FROM vec_metadata WHERE key = 'dimensions'`).Scan(&storedDim)
	if err != nil {
		return // first run
	}
	if storedDim == fmt.Sprintf("%d", idx.dimensions) {
		return
	}

	fmt.Fprintf(os.Stderr, "⚠️  Embedding dimensions changed (%s -> %d), rebuilding vec index\n", storedDim, idx.dimensions)
	idx.db.Exec(`DROP TABLE IF EXISTS doc_embeddings`)
	idx.db.Exec(`DELETE FROM doc_vec_ids`)
}

// Insert adds or replaces a document's embedding in the vec0 index.
func (idx *Index) Insert(docID string, embedding []float32) error {
	if !idx.available || len(embedding) == 0 || len(embedding) != idx.dimensions {
		return nil
	}

	var vecID int64
	err := idx.db.QueryRow(`SELECT vec_id FROM doc_vec_ids WHERE doc_id = ?`, docID).Scan(&vecID)
	if err == sql.ErrNoRows {
		result, err := idx.db.Exec(`INSERT INTO doc_vec_ids (doc_id) VALUES (?)`, docID)
		if err != nil {
			return fmt.Errorf("failed to create vec ID mapping: %w", err)
		}
		vecID, _ = result.LastInsertId()
	} else if err != nil {
		return err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	// vec0 doesn't support ON CONFLICT, so delete first if exists
	idx.db.Exec(`DELETE FROM doc_embeddings WHERE rowid = ?`, vecID)

	_, err = idx.db.Exec(`INSERT INTO doc_embeddings (rowid, embedding) VALUES (?, ?)`, vecID, blob)
	if err != nil {
		return fmt.Errorf("failed to insert into vec0: %w", err)
	}

	return nil
}

// Search performs a KNN query and returns document IDs with cosine distances.
func (idx *Index) Search(queryEmbedding []float32, limit int) ([]Result, error) {
	if !idx.available {
		return nil, fmt.Errorf("vec index not available")
	}

	blob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	rows, err := idx.db.Query(`
		SELECT rowid, distance
		FROM doc_embeddings
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type rowResult struct {
		rowID    int64
		distance float64
	}
	var rowResults []rowResult
	for rows.Next() {
		var r rowResult
		if err := rows.Scan(&r.rowID, &r.distance); err != nil {
			continue
		}
		rowResults = append(rowResults, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rowResults) == 0 {
		return nil, nil
	}

	// Batch-map rowids back to document ids
	placeholders := make([]string, len(rowResults))
	args := make([]interface{}, len(rowResults))
	for i, rr := range rowResults {
		placeholders[i] = "?"
		args[i] = rr.rowID
	}

	mapRows, err := idx.db.Query(
		`SELECT vec_id, doc_id FROM doc_vec_ids WHERE vec_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer mapRows.Close()

	idMap := make(map[int64]string)
	for mapRows.Next() {
		var vecID int64
		var docID string
		if err := mapRows.Scan(&vecID, &docID); err != nil {
			continue
		}
		idMap[vecID] = docID
	}

	// Build results preserving KNN order
	var results []Result
	for _, rr := range rowResults {
		if docID, ok := idMap[rr.rowID]; ok {
			results = append(results, Result{DocID: docID, Distance: rr.distance})
		}
	}

	return results, nil
}

// Delete removes a document from the vec0 index.
func (idx *Index) Delete(docID string) error {
	if !idx.available {
		return nil
	}
	var vecID int64
	if err := idx.db.QueryRow(`SELECT vec_id FROM doc_vec_ids WHERE doc_id = ?`, docID).Scan(&vecID); err != nil {
		return nil // not indexed
	}
	idx.db.Exec(`DELETE FROM doc_embeddings WHERE rowid = ?`, vecID)
	idx.db.Exec(`DELETE FROM doc_vec_ids WHERE vec_id = ?`, vecID)
	return nil
}

// Backfill populates the vec0 index from existing documents that have
// embeddings. Returns the number of documents backfilled.
func (idx *Index) Backfill(db *sql.DB) (int, error) {
	if !idx.available {
		return 0, nil
	}

	var vecCount int
	idx.db.QueryRow(`SELECT COUNT(*) FROM doc_vec_ids`).Scan(&vecCount)

	var docCount int
	db.QueryRow(`SELECT COUNT(*) FROM documents WHERE embedding IS NOT NULL AND embedding != '' AND embedding != '[]' AND embedding != 'null'`).Scan(&docCount)

	if vecCount >= docCount || docCount == 0 {
		return 0, nil
	}

	rows, err := db.Query(`
		SELECT d.id, d.embedding
		FROM documents d
		LEFT JOIN doc_vec_ids v ON v.doc_id = d.id
		WHERE v.vec_id IS NULL
		AND d.embedding IS NOT NULL AND d.embedding != '' AND d.embedding != '[]' AND d.embedding != 'null'
	`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var docID, embJSON string
		if err := rows.Scan(&docID, &embJSON); err != nil {
			continue
		}

		var embedding []float32
		if err := json.Unmarshal([]byte(embJSON), &embedding); err != nil {
			continue
		}

		if len(embedding) != idx.dimensions {
			continue
		}

		if err := idx.Insert(docID, embedding); err != nil {
			continue
		}
		count++
	}

	return count, nil
}
