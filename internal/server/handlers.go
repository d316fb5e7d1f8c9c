package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hyperjump/ragpipe/internal/models"
	"github.com/hyperjump/ragpipe/internal/pipeline"
	"github.com/hyperjump/ragpipe/internal/rag"
	"go.uber.org/zap"
)

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (*models.QueryRequest, bool) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := req.Validate(s.maxResults); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &req, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("n_results", req.NResults))
	s.mu.Lock()
	ans, err := s.engine.Answer(r.Context(), req.Query, req.NResults)
	s.mu.Unlock()
	if err != nil {
		s.engineError(w, "query", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	s.logger.Debug("retrieve request", zap.String("query", req.Query), zap.Int("n_results", req.NResults))
	s.mu.Lock()
	hits, err := s.engine.Retrieve(r.Context(), req.Query, req.NResults)
	s.mu.Unlock()
	if err != nil {
		s.engineError(w, "retrieve", err)
		return
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	s.respondJSON(w, http.StatusOK, models.RetrieveResponse{Query: req.Query, Hits: hits})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.respondError(w, http.StatusNotImplemented, "status not enabled")
		return
	}
	s.mu.Lock()
	st, err := s.status(r.Context())
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.reindex == nil {
		s.respondError(w, http.StatusNotImplemented, "reindex not enabled")
		return
	}
	s.logger.Info("reindex requested")
	if err := s.Reindex(r.Context()); err != nil {
		if errors.Is(err, pipeline.ErrNoData) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("reindex failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reindexed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) engineError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, rag.ErrEmptyQuery) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
