package handlers

import (
	"chatcore/internal/auth"
	"chatcore/internal/jwt"
	"chatcore/internal/models"
	"net/http"
)

type sessionResponse struct {
	User   models.User `json:"user"`
	Tokens jwt.Pair    `json:"tokens"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	type Registration struct {
		Username        string `json:"username" validate:"required"`
		Email           string `json:"email" validate:"required,email"`
		Password        string `json:"password" validate:"required,eqfield=ConfirmPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}

	var registration Registration
	if !h.decode(w, r, &registration) {
		return
	}

	user, pair, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Username: registration.Username,
		Email:    registration.Email,
		Password: registration.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sessionResponse{User: user, Tokens: pair})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	var login Login
	if !h.decode(w, r, &login) {
		return
	}

	user, pair, err := h.auth.Login(r.Context(), login.Email, login.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{User: user, Tokens: pair})
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	type Refresh struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	var refresh Refresh
	if !h.decode(w, r, &refresh) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), refresh.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pair)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), identity(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
