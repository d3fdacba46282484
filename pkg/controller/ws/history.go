package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

type messageJSON struct {
	ID        string    `json:"id"`
	Chat      string    `json:"chat"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type listMessagesResponse struct {
	Messages []messageJSON `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, r, err, "failed to authenticate")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: model.ErrTagInvalidInput.String()})
			return
		}
	}

	chatID := model.ChatID(r.PathValue("chatID"))
	msgs, err := s.history.List(ctx, chatID, userID, limit)
	if err != nil {
		writeError(w, r, err, "failed to list messages")
		return
	}

	resp := listMessagesResponse{Messages: make([]messageJSON, 0, len(msgs))}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, messageJSON{
			ID:        string(msg.ID),
			Chat:      string(msg.ChatID),
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps tagged errors to HTTP statuses. Only unexpected failures are
// logged.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case goerr.HasTag(err, model.ErrTagNotFound):
		status = http.StatusNotFound
	case goerr.HasTag(err, model.ErrTagInvalidInput):
		status = http.StatusBadRequest
	case goerr.HasTag(err, model.ErrTagUnauthorized):
		status = http.StatusUnauthorized
	default:
		logging.From(r.Context()).Error(msg, "error", err, "path", r.URL.Path)
	}
	writeJSON(w, status, errorResponse{Error: model.ErrorCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
