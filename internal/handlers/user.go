package handlers

import (
	"chatcore/internal/auth"
	"net/http"
)

func (h *Handlers) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) UpdateUserInfo(w http.ResponseWriter, r *http.Request) {
	type Update struct {
		Avatar *string `json:"avatar" validate:"omitempty,url"`
		Bio    *string `json:"bio"`
	}

	var update Update
	if !h.decode(w, r, &update) {
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), identity(r).UserID, auth.ProfileUpdate{
		Avatar: update.Avatar,
		Bio:    update.Bio,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}
