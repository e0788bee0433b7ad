// Package server exposes the memory scaffold over a thin HTTP API.
// Endpoints carry no business logic; every answer comes out of the
// reconciliation pipeline and every write goes through the store.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/xylemhq/xylem/internal/pipeline"
	"github.com/xylemhq/xylem/internal/recon"
	"github.com/xylemhq/xylem/internal/store"
)

// Server is the HTTP front of the memory scaffold.
type Server struct {
	store      *store.Store
	pipe       *pipeline.Pipeline
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	addr       string
}

// New creates a server around an existing store and pipeline.
func New(addr string, s *store.Store, pipe *pipeline.Pipeline, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		store:  s,
		pipe:   pipe,
		logger: logger,
		addr:   addr,
	}
	srv.router = srv.buildRouter()
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)

		r.Get("/facts", s.handleListFacts)
		r.Get("/facts/{key}", s.handleGetFact)
		r.Put("/facts/{key}", s.handlePutFact)
		r.Delete("/facts/{key}", s.handleDeleteFact)

		r.Post("/remember", s.handleRemember)
		r.Get("/recall", s.handleRecall)

		r.Get("/conflicts", s.handleConflicts)
		r.Get("/episodes", s.handleEpisodes)
	})

	return r
}

// requestLogger logs each request through zap instead of chi's default
// stdlib logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("http server listening", zap.String("addr", s.addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryRequest drives one chat turn. When Results is absent the server
// performs retrieval itself; callers that already ran their own tool
// calls can pass raw results instead.
type queryRequest struct {
	Query   string             `json:"query"`
	Results []recon.ToolResult `json:"results,omitempty"`
}

type queryResponse struct {
	Answer         recon.SynthesisOutput      `json:"answer"`
	Reconciliation recon.ReconciliationResult `json:"reconciliation"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var output recon.SynthesisOutput
	var rec recon.ReconciliationResult
	if req.Results != nil {
		output, rec = s.pipe.AskWith(r.Context(), req.Query, req.Results)
	} else {
		output, rec = s.pipe.Ask(r.Context(), req.Query)
	}
	writeJSON(w, http.StatusOK, queryResponse{Answer: output, Reconciliation: rec})
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.store.ListFacts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if facts == nil {
		facts = []store.Fact{}
	}
	writeJSON(w, http.StatusOK, facts)
}

func (s *Server) handleGetFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	fact, err := s.store.GetFact(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fact == nil {
		writeError(w, http.StatusNotFound, "fact not found: "+key)
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

type putFactRequest struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Sensitive  bool    `json:"sensitive,omitempty"`
}

func (s *Server) handlePutFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req putFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	fact, err := s.store.SetFact(r.Context(), key, req.Value, req.Confidence, req.Sensitive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

func (s *Server) handleDeleteFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.store.DeleteFact(r.Context(), key); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": key})
}

type rememberRequest struct {
	Content string   `json:"content"`
	Key     string   `json:"key,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req rememberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	doc, err := s.store.AddDocument(r.Context(), req.Content, req.Key, req.Tags)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Don't echo the embedding back over the wire
	doc.Embedding = nil
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit := 5
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	hits, err := s.store.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": s.pipe.Engine().ConflictHistory(),
		"stats":   s.pipe.Engine().ConflictStats(),
	})
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	episodes, err := s.store.ListEpisodes(r.Context(), kind, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if episodes == nil {
		episodes = []store.Episode{}
	}
	writeJSON(w, http.StatusOK, episodes)
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
