package ws

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/nova/pkg/interfaces"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/usecase/chat"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
)

// ChatHandler runs one conversational turn for an inbound message
type ChatHandler interface {
	HandleInboundMessage(ctx context.Context, input chat.InboundInput, emitter interfaces.Emitter) (*chat.Result, error)
}

// HistoryService manages the chats of a user and lists their messages.
// Chats of other users are reported as not found.
type HistoryService interface {
	List(ctx context.Context, chatID model.ChatID, userID model.UserID, limit int) ([]*model.Message, error)
	CreateChat(ctx context.Context, userID model.UserID, title string) (*model.Chat, error)
	ListChats(ctx context.Context, userID model.UserID) ([]*model.Chat, error)
	RenameChat(ctx context.Context, chatID model.ChatID, userID model.UserID, title string) (*model.Chat, error)
	DeleteChat(ctx context.Context, chatID model.ChatID, userID model.UserID) error
}

// Server is the realtime session gateway. It authenticates websocket
// sessions and hands every inbound event to the chat handler.
type Server struct {
	auth     *Authenticator
	chat     ChatHandler
	history  HistoryService
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

type Option func(*Server)

// WithAllowedOrigins restricts websocket upgrades to the listed origins.
// Without it only same-origin requests (or clients sending no Origin) are accepted.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) == 0 {
			return
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, origin)
		}
	}
}

// WithHistory enables the chat management and message listing endpoints
func WithHistory(history HistoryService) Option {
	return func(s *Server) {
		s.history = history
	}
}

func New(auth *Authenticator, handler ChatHandler, opts ...Option) *Server {
	s := &Server{
		auth: auth,
		chat: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.history != nil {
		s.mux.HandleFunc("POST /api/chats", s.handleCreateChat)
		s.mux.HandleFunc("GET /api/chats", s.handleListChats)
		s.mux.HandleFunc("PATCH /api/chats/{chatID}/title", s.handleRenameChat)
		s.mux.HandleFunc("DELETE /api/chats/{chatID}", s.handleDeleteChat)
		s.mux.HandleFunc("GET /api/chats/{chatID}/messages", s.handleListMessages)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	userID, err := s.auth.Authenticate(r)
	if err != nil {
		logger.Info("websocket authentication failed", "error", err, "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response
		logger.Warn("failed to upgrade websocket", "error", err, "user_id", userID)
		return
	}

	logger = logger.With("user_id", userID, "remote_addr", r.RemoteAddr)
	// The session outlives the handshake request context
	sessCtx, cancel := context.WithCancel(logging.With(context.WithoutCancel(ctx), logger))
	defer cancel()

	sess := newSession(conn, userID, s.chat)
	logger.Info("session opened")
	sess.run(sessCtx)
	logger.Info("session closed")
}
