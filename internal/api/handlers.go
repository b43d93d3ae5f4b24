package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/addongate/addongate/internal/dispatch"
	"github.com/addongate/addongate/internal/engine"
	"github.com/addongate/addongate/internal/events"
)

// Engine defines the engine operations the front door needs.
type Engine interface {
	Dispatcher(addonID string) (*dispatch.Dispatcher, error)
	Info() engine.ServerInfo
	Selftest(ctx context.Context) (int, map[string]engine.SelftestEntry)
	Hub() *events.Hub
}

// invokeRequest is the transport form of a request envelope.
type invokeRequest struct {
	Action  string          `json:"action"`
	Input   json.RawMessage `json:"input"`
	Sig     string          `json:"sig"`
	Request map[string]any  `json:"request"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Info())
}

func (s *Server) handleSelftest(w http.ResponseWriter, r *http.Request) {
	status, results := s.engine.Selftest(r.Context())
	s.writeJSON(w, status, results)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}
	s.writeJSON(w, http.StatusOK, s.engine.Hub().SnapshotSince(since))
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	addonID := chi.URLParam(r, "addon")

	d, err := s.engine.Dispatcher(addonID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		s.writeError(w, http.StatusBadRequest, "action is empty")
		return
	}

	transport := req.Request
	if transport == nil {
		transport = make(map[string]any)
	}
	transport["remoteAddr"] = r.RemoteAddr
	transport["requestID"] = middleware.GetReqID(r.Context())

	env := &dispatch.Envelope{
		Action:  req.Action,
		Input:   req.Input,
		Sig:     req.Sig,
		Request: transport,
		Send: func(status int, body json.RawMessage) error {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, werr := w.Write(body)
			return werr
		},
	}

	d.Dispatch(r.Context(), env)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
