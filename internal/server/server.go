// Package server exposes the HTTP control surface and the websocket chat
// transport.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/config"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/flow"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/store"
	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/types"
)

type Server struct {
	router *chi.Mux
	store  store.Store
	engine *flow.Engine
	cfg    config.Config
}

func NewServer(cfg config.Config, st store.Store, engine *flow.Engine) *Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	s := &Server{
		router: r,
		store:  st,
		engine: engine,
		cfg:    cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/flow", s.handleGetFlow)
	s.router.Post("/api/flow", s.handleCreateFlow)
	s.router.Get("/api/conversations", s.handleListConversations)
	s.router.Get("/api/chats", s.handleListChats)
	s.router.Get("/ws", s.handleWebSocket)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	raw, found, err := s.store.GetFlowDocument(r.Context())
	if err != nil {
		slog.Error("failed to fetch flow document", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "no flow document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(raw))
}

func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req types.CreateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Flow) == 0 {
		s.writeError(w, http.StatusBadRequest, "flow is required")
		return
	}

	// The document may arrive as an embedded object or as a JSON-encoded
	// string holding the document text.
	raw := req.Flow
	var asString string
	if err := json.Unmarshal(req.Flow, &asString); err == nil {
		raw = []byte(asString)
	}

	if _, err := flow.Load(raw); err != nil {
		slog.Warn("rejected flow upload", "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flowID, err := s.store.ReplaceFlowDocument(r.Context(), string(raw))
	if err != nil {
		slog.Error("failed to replace flow document", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	slog.Info("flow document replaced", "flow_id", flowID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.CreateFlowResponse{FlowID: flowID})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations(r.Context())
	if err != nil {
		slog.Error("failed to list conversations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(conversations)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context())
	if err != nil {
		slog.Error("failed to list chat entries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if chats == nil {
		chats = []store.ChatEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chats)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}
