package handlers

import (
	"net/http"
)

func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity(r).UserID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the client
		h.sugar.Debug(err)
		return
	}

	h.hub.ServeConn(r.Context(), conn, userID, h.engine)
}
