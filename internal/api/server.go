// Package api exposes the agent over HTTP: one chat endpoint and a
// health check.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kestrelworks/kestrel/internal/agent"
	"github.com/kestrelworks/kestrel/internal/buildinfo"
)

// maxRequestBytes caps inbound chat payloads.
const maxRequestBytes = 1 << 20

// ChatRequest is the POST /api/chat payload.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ChatResponse is the reply payload. SessionID is always set so the
// caller can continue the conversation.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// Server handles inbound chat traffic.
type Server struct {
	logger  *slog.Logger
	runtime *agent.Runtime
	mux     *http.ServeMux
}

// NewServer creates the HTTP handler around a runtime.
func NewServer(logger *slog.Logger, runtime *agent.Runtime) *Server {
	s := &Server{logger: logger, runtime: runtime, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start),
	)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}

	reply, sessionID, err := s.runtime.HandleMessage(r.Context(), req.SessionID, req.UserID, req.Message)
	if err != nil {
		s.logger.Error("turn failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply, SessionID: sessionID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
		"uptime":  buildinfo.Uptime().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
