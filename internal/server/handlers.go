package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/semdex/internal/indexer"
	"github.com/hyperjump/semdex/internal/models"
	"github.com/hyperjump/semdex/internal/semantic"
	"github.com/hyperjump/semdex/internal/storage"
	"github.com/hyperjump/semdex/pkg/utils"
	"go.uber.org/zap"
)

// statusFor maps index errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, semantic.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, semantic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, semantic.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidDocument), errors.Is(err, semantic.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, semantic.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, semantic.ErrNoStore), errors.Is(err, indexer.ErrNoKeywordIndex):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

// parseK reads the k query parameter. A missing or empty k means the default; an
// explicit zero is kept. The result is capped at max_k.
func (s *Server) parseK(r *http.Request) (int, error) {
	k := s.config.Index.DefaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: k must be a non-negative integer", semantic.ErrInvalidArgument)
		}
		k = n
	}
	if maxK := s.config.Index.MaxK; maxK > 0 && k > maxK {
		k = maxK
	}
	return k, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"index": s.index.Stats(),
		"config": map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"database_path":        s.config.Storage.DatabasePath,
			"keyword_index_path":   s.config.Storage.KeywordIndexPath,
		},
	}
	if n, err := s.indexer.KeywordCount(); err == nil {
		resp["keyword_documents"] = n
	}
	if bytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.KeywordIndexPath); err == nil {
		resp["disk_usage_bytes"] = bytes
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req models.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	docs, err := s.indexer.Build(r.Context(), req.Documents)
	if err != nil {
		s.fail(w, "build", err)
		return
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": len(docs), "ids": ids})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Restore(r.Context()); err != nil {
		s.fail(w, "restore", err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.index.Stats())
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	n, err := s.index.Compact(r.Context())
	if err != nil {
		s.fail(w, "compact", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Clear(r.Context()); err != nil {
		s.fail(w, "clear", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, err := s.indexer.Add(r.Context(), &input)
	if err != nil {
		s.fail(w, "add document", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": doc.ID, "status": "indexed"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.index.Documents(r.Context())
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "total": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.index.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.ID != "" && input.ID != id {
		s.respondError(w, http.StatusBadRequest, "document id does not match path")
		return
	}
	input.ID = id
	if err := s.indexer.Update(r.Context(), input.Document()); err != nil {
		s.fail(w, "update document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.indexer.Remove(r.Context(), id); err != nil {
		s.fail(w, "remove document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSimilarDocuments(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	k, err := s.parseK(r)
	if err != nil {
		s.fail(w, "similar documents", err)
		return
	}
	results, err := s.index.SimilarDocuments(r.Context(), chi.URLParam(r, "id"), k)
	if err != nil {
		s.fail(w, "similar documents", err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

// handleSearch accepts either GET ?q=&k= or a POSTed SearchQuery.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var query models.SearchQuery
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if query.K != nil && *query.K < 0 {
			s.fail(w, "search", fmt.Errorf("%w: k must not be negative", semantic.ErrInvalidArgument))
			return
		}
	} else {
		k, err := s.parseK(r)
		if err != nil {
			s.fail(w, "search", err)
			return
		}
		query = models.SearchQuery{Query: r.URL.Query().Get("q"), K: &k}
	}
	query.Query = utils.Sanitize(query.Query)
	if err := query.Validate(s.config.Index.DefaultK, s.config.Index.MaxK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("k", query.Limit()))
	results, err := s.index.Search(r.Context(), query.Query, query.Limit())
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     query.Query,
	})
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	k, err := s.parseK(r)
	if err != nil {
		s.fail(w, "keyword search", err)
		return
	}
	q := utils.Sanitize(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}
	hits, err := s.indexer.KeywordSearch(r.Context(), q, k)
	if err != nil {
		s.fail(w, "keyword search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": hits, "total": len(hits), "query": q})
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		s.respondError(w, http.StatusBadRequest, "both a and b are required")
		return
	}
	sim, err := s.index.Similarity(r.Context(), a, b)
	if err != nil {
		s.fail(w, "similarity", err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.SimilarityResponse{A: a, B: b, Similarity: sim})
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req models.ClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if maxN := s.config.Index.MaxClusters; maxN > 0 && req.NClusters > maxN {
		s.fail(w, "cluster", fmt.Errorf("%w: n_clusters must be at most %d, got %d", semantic.ErrInvalidArgument, maxN, req.NClusters))
		return
	}
	clusters, err := s.index.Cluster(r.Context(), req.NClusters)
	if err != nil {
		s.fail(w, "cluster", err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.ClusterResponse{Clusters: clusters})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
