package handlers

import (
	"net/http"
)

func (h *Handlers) GetMemberList(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}

	members, err := h.engine.ListMembers(r.Context(), identity(r).UserID, serverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, members)
}

func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		UserID string `json:"userId" validate:"required,numeric"`
	}

	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	ids, err := parseIDs([]string{req.UserID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	member, err := h.engine.AddMember(r.Context(), identity(r).UserID, serverID, ids[0])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, member)
}

// RemoveMember kicks a member, or leaves the server when the user is the caller.
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	userID, ok := h.idParam(w, r, "userID")
	if !ok {
		return
	}

	if err := h.engine.RemoveMember(r.Context(), identity(r).UserID, serverID, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) BanMember(w http.ResponseWriter, r *http.Request) {
	type Request struct {
		UserID string `json:"userId" validate:"required,numeric"`
		Reason string `json:"reason" validate:"max=512"`
	}

	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	ids, err := parseIDs([]string{req.UserID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ban, err := h.engine.BanMember(r.Context(), identity(r).UserID, serverID, ids[0], req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ban)
}

func (h *Handlers) UnbanMember(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.idParam(w, r, "serverID")
	if !ok {
		return
	}
	userID, ok := h.idParam(w, r, "userID")
	if !ok {
		return
	}

	if err := h.engine.UnbanMember(r.Context(), identity(r).UserID, serverID, userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	serverID, userID, roleID, ok := h.memberRoleParams(w, r)
	if !ok {
		return
	}

	member, err := h.engine.AssignRole(r.Context(), identity(r).UserID, serverID, userID, roleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, member)
}

func (h *Handlers) UnassignRole(w http.ResponseWriter, r *http.Request) {
	serverID, userID, roleID, ok := h.memberRoleParams(w, r)
	if !ok {
		return
	}

	member, err := h.engine.UnassignRole(r.Context(), identity(r).UserID, serverID, userID, roleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, member)
}

func (h *Handlers) memberRoleParams(w http.ResponseWriter, r *http.Request) (serverID int64, userID int64, roleID int64, ok bool) {
	if serverID, ok = h.idParam(w, r, "serverID"); !ok {
		return
	}
	if userID, ok = h.idParam(w, r, "userID"); !ok {
		return
	}
	roleID, ok = h.idParam(w, r, "roleID")
	return
}
