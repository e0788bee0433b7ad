package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xylemhq/xylem/internal/audit"
	"github.com/xylemhq/xylem/internal/pipeline"
	"github.com/xylemhq/xylem/internal/recon"
	"github.com/xylemhq/xylem/internal/store"
)

func setupTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s, err := store.NewStoreAt(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	engine := recon.NewEngine(recon.WithAuditSink(audit.NewEpisodeSink(s)))
	pipe := pipeline.New(s, engine, nil)
	return New("127.0.0.1:0", s, pipe, nil), s
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := setupTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFactCRUD(t *testing.T) {
	srv, _ := setupTestServer(t)

	// Put
	rec := doJSON(t, srv, http.MethodPut, "/api/v1/facts/displayName", map[string]interface{}{"value": "Mark"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Get
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/facts/displayName", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fact store.Fact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fact))
	assert.Equal(t, "Mark", fact.Value)
	assert.Equal(t, 1.0, fact.Confidence)

	// List
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/facts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var facts []store.Fact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &facts))
	assert.Len(t, facts, 1)

	// Delete
	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/facts/displayName", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/facts/displayName", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutFact_Validation(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/v1/facts/displayName", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/facts/displayName", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery_CanonicalWinsEndToEnd(t *testing.T) {
	srv, s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.SetFact(ctx, "displayName", "Mark", 1.0, false)
	require.NoError(t, err)
	_, err = s.AddDocument(ctx, "the display name the user prefers is Marcus", "displayName", nil)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", map[string]string{"query": "What is my display name?"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer         recon.SynthesisOutput      `json:"answer"`
		Reconciliation recon.ReconciliationResult `json:"reconciliation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Contains(t, resp.Answer.Content, "Mark")
	assert.NotContains(t, resp.Answer.Content, "Marcus")
	assert.Equal(t, 1, resp.Reconciliation.KVOverridesApplied)
	require.Len(t, resp.Reconciliation.Facts, 1)
	assert.Equal(t, "Mark", resp.Reconciliation.Facts[0].Value)
}

func TestQuery_WithCallerSuppliedResults(t *testing.T) {
	srv, _ := setupTestServer(t)

	body := map[string]interface{}{
		"query": "what is my display name?",
		"results": []recon.ToolResult{{
			Tool: recon.ToolKVLookup,
			Rows: []recon.KVRow{{Key: "displayName", Value: "Mark"}},
		}},
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer recon.SynthesisOutput `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Answer.Content, "Mark")
}

func TestQuery_RequiresQuery(t *testing.T) {
	srv, _ := setupTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRememberAndRecall(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/remember", map[string]interface{}{
		"content": "the user's favorite color is teal",
		"key":     "favoriteColor",
		"tags":    []string{"prefs"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var doc store.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.NotEmpty(t, doc.ID)
	assert.Nil(t, doc.Embedding, "embedding must not be echoed over the wire")

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/recall?q=favorite+color&limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hits []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, "favoriteColor", hits[0]["key"])
}

func TestRecall_RequiresQuery(t *testing.T) {
	srv, _ := setupTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/recall", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemember_RejectsEmptyContent(t *testing.T) {
	srv, _ := setupTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/remember", map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConflictsEndpoint(t *testing.T) {
	srv, s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.SetFact(ctx, "displayName", "Mark", 1.0, false)
	require.NoError(t, err)
	_, err = s.AddDocument(ctx, "the display name the user prefers is Marcus", "displayName", nil)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", map[string]string{"query": "What is my display name?"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		History []recon.Conflict   `json:"history"`
		Stats   recon.ConflictStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.History)
	assert.Equal(t, "displayName", resp.History[0].FactKey)
	assert.Equal(t, resp.Stats.Total, len(resp.History))
}

func TestEpisodesEndpoint(t *testing.T) {
	srv, s := setupTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AppendEpisode(ctx, "test_event", map[string]int{"i": i})
		require.NoError(t, err)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/episodes?kind=test_event", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var episodes []store.Episode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &episodes))
	assert.Len(t, episodes, 3)

	// Absent kind yields an empty array, not null
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/episodes?kind=other", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestQueryAuditTrailWritten(t *testing.T) {
	srv, s := setupTestServer(t)
	ctx := context.Background()

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query", map[string]string{"query": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)

	episodes, err := s.ListEpisodes(ctx, audit.KindReconciliationSummary, 10)
	require.NoError(t, err)
	assert.Len(t, episodes, 1, "every query should leave a reconciliation summary")
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := setupTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
