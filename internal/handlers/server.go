package handlers

import (
	"chatcore/internal/chat"
	"net/http"
)

func (h *Handlers) CreateServer(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description" validate:"max=512"`
		Icon        string `json:"icon" validate:"omitempty,url"`
	}

	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	server, err := h.engine.CreateServer(r.Context(), identity(r).UserID, chat.ServerInput{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, server)
}

func (h *Handlers) GetServerList(w http.ResponseWriter, r *http.Request) {
	servers, err := h.engine.ListServers(r.Context(), identity(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, servers)
}

func (h *Handlers) GetServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}

	server, err := h.engine.GetServer(r.Context(), identity(r).UserID, serverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, server)
}

func (h *Handlers) UpdateServer(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Name        *string `json:"name"`
		Description *string `json:"description" validate:"omitempty,max=512"`
		Icon        *string `json:"icon"`
	}

	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	server, err := h.engine.UpdateServer(r.Context(), identity(r).UserID, serverID, chat.ServerUpdate{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, server)
}

func (h *Handlers) GetRoleList(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}

	roles, err := h.engine.ListRoles(r.Context(), identity(r).UserID, serverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, roles)
}

func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Name        string   `json:"name" validate:"required"`
		Color       string   `json:"color" validate:"omitempty,hexcolor"`
		Permissions []string `json:"permissions"`
	}

	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	role, err := h.engine.CreateRole(r.Context(), identity(r).UserID, serverID, chat.RoleInput{
		Name:        req.Name,
		Color:       req.Color,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, role)
}

func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		Name        *string   `json:"name"`
		Color       *string   `json:"color"`
		Permissions *[]string `json:"permissions"`
	}

	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	roleID, ok := h.idParam(w, r, "roleID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}

	role, err := h.engine.UpdateRole(r.Context(), identity(r).UserID, serverID, roleID, chat.RoleUpdate{
		Name:        req.Name,
		Color:       req.Color,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, role)
}

func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	roleID, ok := h.idParam(w, r, "roleID")
	if !ok {
		return
	}

	if err := h.engine.DeleteRole(r.Context(), identity(r).UserID, serverID, roleID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
