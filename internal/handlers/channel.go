package handlers

import (
	"chatcore/internal/chat"
	"net/http"
)

func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Name     string `json:"name" validate:"required"`
		Type     string `json:"type" validate:"omitempty,oneof=TEXT VOICE"`
		Position *int   `json:"position" validate:"omitempty,min=0"`
	}

	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	channel, err := h.engine.CreateChannel(r.Context(), identity(r).UserID, serverID, chat.ChannelInput{
		Name:     req.Name,
		Type:     req.Type,
		Position: req.Position,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, channel)
}

func (h *Handlers) GetChannelList(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}

	channels, err := h.engine.ListChannels(r.Context(), identity(r).UserID, serverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, channels)
}
