package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/usecase/chat"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

var errSessionClosed = errors.New("session is closed")

// session is one authenticated websocket connection. Inbound events are
// handled concurrently; writes are serialized by writeMu.
type session struct {
	conn    *websocket.Conn
	userID  model.UserID
	handler ChatHandler

	writeMu sync.Mutex
	closed  bool

	inflight sync.WaitGroup
}

func newSession(conn *websocket.Conn, userID model.UserID, handler ChatHandler) *session {
	return &session{
		conn:    conn,
		userID:  userID,
		handler: handler,
	}
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	logger := logging.From(ctx)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		s.keepAlive(ctx)
	}()

	for {
		var in frame
		if err := s.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			}
			break
		}

		if in.Type != frameMessage {
			s.writeError(ctx, in.Chat, goerr.New("unknown event type",
				goerr.V("type", in.Type),
				goerr.T(model.ErrTagInvalidInput)))
			continue
		}

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.handle(ctx, in)
		}()
	}

	// A closed connection cancels turns that have not emitted yet; their
	// background persistence is detached and keeps running.
	cancel()
	s.inflight.Wait()
	<-pingDone

	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
	_ = s.conn.Close()
}

func (s *session) handle(ctx context.Context, in frame) {
	event := in.inbound()
	logger := logging.From(ctx).With("chat_id", event.ChatID)
	ctx = logging.With(ctx, logger)

	if strings.TrimSpace(string(event.ChatID)) == "" {
		s.writeError(ctx, in.Chat, goerr.New("chat is required", goerr.T(model.ErrTagInvalidInput)))
		return
	}

	_, err := s.handler.HandleInboundMessage(ctx, chat.InboundInput{
		ChatID: event.ChatID,
		UserID: s.userID,
		Text:   event.Text,
	}, s)
	if err == nil {
		return
	}

	// The reply could not be delivered; nothing more can be sent either
	if goerr.HasTag(err, model.ErrTagEmitFailed) {
		return
	}

	switch {
	case goerr.HasTag(err, model.ErrTagInvalidInput),
		goerr.HasTag(err, model.ErrTagNotFound),
		goerr.HasTag(err, model.ErrTagPolicyDenied):
		logger.Info("inbound message rejected", "error", err)
	default:
		logger.Error("failed to handle inbound message", "error", err)
	}
	s.writeError(ctx, in.Chat, err)
}

// Emit implements interfaces.Emitter for replies to this session
func (s *session) Emit(ctx context.Context, event model.OutboundEvent) error {
	return s.write(frame{
		Type:    frameResponse,
		Chat:    string(event.ChatID),
		Content: event.Text,
	})
}

func (s *session) writeError(ctx context.Context, chatID string, cause error) {
	if err := s.write(frame{
		Type:  frameError,
		Chat:  chatID,
		Error: model.ErrorCode(cause),
	}); err != nil {
		logging.From(ctx).Warn("failed to send error event", "error", err, "cause", cause)
	}
}

func (s *session) write(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return errSessionClosed
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(f); err != nil {
		return goerr.Wrap(err, "failed to write websocket frame", goerr.V("type", f.Type))
	}
	return nil
}

func (s *session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
