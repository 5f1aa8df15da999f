package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

// handleSearch serves GET /search with query parameters. Expansion needs a
// provider config and is therefore only reachable through the POST form.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := models.SearchQuery{
		Query:     params.Get("q"),
		Precision: params.Get("precision"),
		Paths:     params["paths"],
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		q.Offset = n
	}
	s.runSearch(w, r, &q)
}

// handleSearchPost serves POST /search with a full JSON query, including the
// optional per-request AI expansion config.
func (s *Server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var q models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.runSearch(w, r, &q)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, q *models.SearchQuery) {
	s.logger.Debug("search request", zap.String("query", q.Query), zap.Int("limit", q.Limit))
	response, err := s.engine.Search(r.Context(), q)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		if errors.Is(err, store.ErrCorrupt) {
			s.respondError(w, http.StatusInternalServerError, "index corrupt, rebuild required: "+err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIndexFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderPath string `json:"folder_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FolderPath == "" {
		s.respondError(w, http.StatusBadRequest, "folder_path is required")
		return
	}
	s.logger.Debug("index folder request", zap.String("folder", req.FolderPath))
	result, err := s.coordinator.IndexFolder(r.Context(), req.FolderPath)
	if err != nil {
		s.logger.Error("folder indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"folder":        req.FolderPath,
		"indexed_count": result.Indexed,
		"total_count":   result.Total,
	})
}

func (s *Server) handleIndexPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.logger.Debug("index path request", zap.String("path", req.Path))
	result, err := s.coordinator.IndexPath(r.Context(), req.Path)
	if err != nil {
		s.logger.Error("path indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"path":          req.Path,
		"indexed_count": result.Indexed,
		"total_count":   result.Total,
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Info("rebuild request", zap.Strings("paths", req.Paths))
	jobID, err := s.coordinator.Rebuild(r.Context(), req.Paths)
	if err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "rebuilding",
		"job_id": jobID,
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	statuses, err := s.store.Status(r.Context(), req.Paths)
	if err != nil {
		s.logger.Error("status query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// An in-flight indexing job overrides the stored view for its subtree.
	for i := range statuses {
		if s.coordinator.IsIndexing(statuses[i].Path) {
			statuses[i].Status = models.IndexStatusIndexing
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": statuses})
}

func (s *Server) handleIndexBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths is required")
		return
	}
	s.logger.Debug("batch index request", zap.Strings("paths", req.Paths))
	result, err := s.coordinator.BatchIndex(r.Context(), req.Paths)
	if err != nil {
		s.logger.Error("batch indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "success",
		"paths_processed":   result.PathsProcessed,
		"new_files_indexed": result.NewFilesIndexed,
		"total_indexed":     result.TotalIndexed,
	})
}

func (s *Server) handleIndexDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.logger.Debug("delete index request", zap.String("path", req.Path))
	deleted, err := s.coordinator.DeleteIndex(r.Context(), req.Path)
	if err != nil {
		s.logger.Error("index deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"path":          req.Path,
		"deleted_count": deleted,
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	suggestions, err := s.suggest.Suggestions(r.Context(), q)
	if err != nil {
		s.logger.Error("suggestions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleRecentFiles(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	files, err := s.suggest.RecentFiles(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent files failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, files)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

type aiRequest struct {
	Query       string           `json:"query"`
	CodeSnippet string           `json:"code_snippet"`
	Context     string           `json:"context"`
	Prompt      string           `json:"prompt"`
	Config      *models.AIConfig `json:"config"`
}

func (s *Server) handleAIExpand(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if !req.Config.Configured() {
		s.respondError(w, http.StatusBadRequest, "config with base_url and api_key is required")
		return
	}
	terms, err := s.ai.Expand(r.Context(), req.Query, req.Prompt, req.Config)
	if err != nil {
		s.logger.Error("expansion failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if terms == nil {
		terms = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"original": req.Query,
		"expanded": terms,
	})
}

func (s *Server) handleAIExplain(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CodeSnippet == "" {
		s.respondError(w, http.StatusBadRequest, "code_snippet is required")
		return
	}
	if !req.Config.Configured() {
		s.respondError(w, http.StatusBadRequest, "config with base_url and api_key is required")
		return
	}
	explanation, err := s.ai.Explain(r.Context(), req.CodeSnippet, req.Context, req.Config)
	if err != nil {
		s.logger.Error("explain failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"explanation": explanation})
}

func (s *Server) handleAITest(w http.ResponseWriter, r *http.Request) {
	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Config.Configured() {
		s.respondError(w, http.StatusBadRequest, "config with base_url and api_key is required")
		return
	}
	if err := s.ai.TestConnection(r.Context(), req.Config); err != nil {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
