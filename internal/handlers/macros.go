package handlers

import (
	"chatcore/internal/apperr"
	"chatcore/internal/auth"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.sugar.Error(err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUnauthenticated) {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}

	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.sugar.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		h.sugar.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	h.writeJSON(w, status, errorResponse{Error: apperr.PublicMessage(err)})
}

// decode reads a json body into dst and validates it. On failure it has
// already written the 400 response, with the failing fields if any.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.sugar.Debug(err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}

	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}

	var validateErrs validator.ValidationErrors
	if !errors.As(err, &validateErrs) {
		h.sugar.Error(err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return false
	}

	fields := make(map[string]string, len(validateErrs))
	for _, e := range validateErrs {
		fields[e.Field()] = e.Tag()
	}
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Fields: fields})
	return false
}

// idParam parses a snowflake id out of the route.
func (h *Handlers) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func parseIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, apperr.Validation("invalid id %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
