package handlers

import (
	"chatcore/internal/chat"
	"chatcore/internal/database"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetMessageList pages backwards through a chat. before is a unix millisecond
// timestamp, beforeId breaks ties between messages sent in the same millisecond.
func (h *Handlers) GetMessageList(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.idParam(w, r, "chatID")
	if !ok {
		return
	}

	query := r.URL.Query()

	limit := 0
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	var cursor *database.Cursor
	if v := query.Get("before"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid before"})
			return
		}
		cursor = &database.Cursor{Before: time.UnixMilli(ms).UTC()}

		if v := query.Get("beforeId"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid beforeId"})
				return
			}
			cursor.BeforeID = id
		}
	}

	messages, err := h.engine.ListMessages(r.Context(), identity(r).UserID, chatID, limit, cursor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Content   string `json:"content"`
		ReplyToID string `json:"replyToId" validate:"omitempty,numeric"`
		FileRef   string `json:"fileRef" validate:"omitempty,url"`
	}

	chatID, ok := h.idParam(w, r, "chatID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	input := chat.MessageInput{Content: req.Content, FileRef: req.FileRef}
	if req.ReplyToID != "" {
		ids, err := parseIDs([]string{req.ReplyToID})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		input.ReplyToID = ids[0]
	}

	message, err := h.engine.SendMessage(r.Context(), identity(r).UserID, chatID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, message)
}

func (h *Handlers) EditMessage(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Content string `json:"content"`
	}

	messageID, ok := h.idParam(w, r, "messageID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	message, err := h.engine.EditMessage(r.Context(), identity(r).UserID, messageID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message)
}

func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, ok := h.idParam(w, r, "messageID")
	if !ok {
		return
	}

	message, err := h.engine.DeleteMessage(r.Context(), identity(r).UserID, messageID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message)
}

func (h *Handlers) AddReaction(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Emoji string `json:"emoji" validate:"required"`
	}

	messageID, ok := h.idParam(w, r, "messageID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	reaction, err := h.engine.AddReaction(r.Context(), identity(r).UserID, messageID, req.Emoji)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, reaction)
}

func (h *Handlers) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	messageID, ok := h.idParam(w, r, "messageID")
	if !ok {
		return
	}

	emoji, err := url.PathUnescape(chi.URLParam(r, "emoji"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid emoji"})
		return
	}

	err = h.engine.RemoveReaction(r.Context(), identity(r).UserID, messageID, emoji)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) PinMessage(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		MessageID string `json:"messageId" validate:"required,numeric"`
	}

	chatID, ok := h.idParam(w, r, "chatID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	ids, err := parseIDs([]string{req.MessageID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message, err := h.engine.PinMessage(r.Context(), identity(r).UserID, chatID, ids[0])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message)
}

func (h *Handlers) UnpinMessage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.idParam(w, r, "chatID")
	if !ok {
		return
	}

	if err := h.engine.UnpinMessage(r.Context(), identity(r).UserID, chatID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
