package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

const maxRequestBodySize = 16 * 1024

type chatJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type chatResponse struct {
	Chat chatJSON `json:"chat"`
}

type listChatsResponse struct {
	Chats []chatJSON `json:"chats"`
}

type titleRequest struct {
	Title string `json:"title"`
}

func toChatJSON(chat *model.Chat) chatJSON {
	return chatJSON{
		ID:        string(chat.ID),
		Title:     chat.Title,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
}

func decodeTitle(w http.ResponseWriter, r *http.Request) (string, error) {
	var req titleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(&req); err != nil {
		return "", goerr.Wrap(err, "invalid request body", goerr.T(model.ErrTagInvalidInput))
	}
	return req.Title, nil
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, r, err, "failed to authenticate")
		return
	}

	title, err := decodeTitle(w, r)
	if err != nil {
		writeError(w, r, err, "failed to decode request")
		return
	}

	chat, err := s.history.CreateChat(r.Context(), userID, title)
	if err != nil {
		writeError(w, r, err, "failed to create chat")
		return
	}

	writeJSON(w, http.StatusCreated, chatResponse{Chat: toChatJSON(chat)})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, r, err, "failed to authenticate")
		return
	}

	chats, err := s.history.ListChats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, "failed to list chats")
		return
	}

	resp := listChatsResponse{Chats: make([]chatJSON, 0, len(chats))}
	for _, chat := range chats {
		resp.Chats = append(resp.Chats, toChatJSON(chat))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, r, err, "failed to authenticate")
		return
	}

	title, err := decodeTitle(w, r)
	if err != nil {
		writeError(w, r, err, "failed to decode request")
		return
	}

	chat, err := s.history.RenameChat(r.Context(), model.ChatID(r.PathValue("chatID")), userID, title)
	if err != nil {
		writeError(w, r, err, "failed to rename chat")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Chat: toChatJSON(chat)})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, r, err, "failed to authenticate")
		return
	}

	chatID := model.ChatID(r.PathValue("chatID"))
	if err := s.history.DeleteChat(r.Context(), chatID, userID); err != nil {
		writeError(w, r, err, "failed to delete chat")
		return
	}

	logging.From(r.Context()).Debug("chat deleted via API", "chat_id", chatID)
	w.WriteHeader(http.StatusNoContent)
}
