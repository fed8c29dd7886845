package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/answer"
)

type askRequest struct {
	Question string `json:"question"`
}

// handleAsk streams the answer as server-sent events: one "data:" frame per
// pipeline event, ending with a done or error event. Chunks are forwarded in
// the order the pipeline emits them.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Debug("ask request", zap.String("question", req.Question))
	for ev := range s.streamer.Ask(r.Context(), req.Question) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("event marshal failed", zap.Error(err))
			continue
		}
		if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
			// Client went away; the pipeline stops via the request context.
			return
		}
		flusher.Flush()
		if ev.Type == answer.EventDone || ev.Type == answer.EventError {
			return
		}
	}
}

type searchRequest struct {
	Question string `json:"question"`
}

// handleSearch runs retrieval only: interpret the question, search the
// archive, return the ranked items without generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := s.interpreter.Parse(r.Context(), req.Question)
	items, err := s.pipeline.Search(r.Context(), params)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"params": params,
		"items":  items,
		"total":  len(items),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.storage.ListTurns(r.Context(), 0)
	if err != nil {
		s.logger.Error("history load failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.ClearTurns(r.Context()); err != nil {
		s.logger.Error("history clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	itemCount, err := s.storage.CountItems(r.Context())
	if err != nil {
		s.logger.Error("status: count items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": itemCount})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
