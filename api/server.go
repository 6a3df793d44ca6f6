// Package api exposes the small HTTP surface next to the websocket: history
// pagination, the unread badge count and a liveness probe.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chat-relay/contract"
	"chat-relay/services"
	"chat-relay/socket"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

type ctxKey string

const userIDKey ctxKey = "userID"

// Server mounts the REST routes and the websocket endpoint on one chi router.
type Server struct {
	log      *slog.Logger
	verifier contract.TokenVerifier
	chat     *services.ChatService
	ws       *socket.Controller
}

func NewServer(log *slog.Logger, verifier contract.TokenVerifier, chat *services.ChatService, ws *socket.Controller) *Server {
	return &Server{log: log, verifier: verifier, chat: chat, ws: ws}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/conversations/{peerID}/messages", s.handleConversation)
		r.Get("/messages/unread", s.handleUnreadCount)
	})
	return r
}

// authenticate resolves the bearer token to a user id and stashes it in the
// request context. The websocket endpoint does its own handshake and is not
// behind this middleware.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, err := s.verifier.Verify(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConversation returns one page of the exchange with the peer, newest
// first. Soft-deleted messages are included as placeholders.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	peerID := chi.URLParam(r, "peerID")

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	views, err := s.chat.GetConversation(userID, peerID, page, limit)
	if err != nil {
		s.log.Error("Conversation query failed", "user", userID, "peer", peerID, "err", err)
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"messages": views,
		"page":     page,
		"limit":    limit,
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	count, err := s.chat.UnreadCount(userID)
	if err != nil {
		s.log.Error("Unread count failed", "user", userID, "err", err)
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"unreadCount": count})
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Response encode failed", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
