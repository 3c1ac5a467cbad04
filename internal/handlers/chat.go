package handlers

import (
	"net/http"
)

func (h *Handlers) GetChatList(w http.ResponseWriter, r *http.Request) {
	chats, err := h.engine.ListChats(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, chats)
}

func (h *Handlers) CreatePrivateChat(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		UserID string `json:"userId" validate:"required,numeric"`
	}

	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	targetIDs, err := parseIDs([]string{req.UserID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.engine.CreatePrivateChat(r.Context(), identity(r).UserID, targetIDs[0])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) CreateGroupChat(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,numeric"`
	}

	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	memberIDs, err := parseIDs(req.MemberIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.engine.CreateGroupChat(r.Context(), identity(r).UserID, req.Name, memberIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, chat)
}

func (h *Handlers) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.idParam(w, r, "chatID")
	if !ok {
		return
	}

	chat, err := h.engine.GetChat(r.Context(), identity(r).UserID, chatID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, chat)
}

func (h *Handlers) AddChatMember(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		UserID string `json:"userId" validate:"required,numeric"`
	}

	chatID, ok := h.idParam(w, r, "chatID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	userIDs, err := parseIDs([]string{req.UserID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	member, err := h.engine.AddChatMember(r.Context(), identity(r).UserID, chatID, userIDs[0])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, member)
}
