package handlers

import (
	"chatcore/internal/auth"
	"chatcore/internal/jwt"
	"chatcore/internal/metrics"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type IdentityKeyType struct{}

// UserVerifier authenticates the bearer token and passes the identity to the
// next handler. Browsers can't set headers on websocket upgrades, so the
// websocket endpoint also accepts the token as a query parameter.
func (h *Handlers) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := jwt.ExtractBearer(r.Header.Get("Authorization"))
		if !ok && websocketUpgrade(r) {
			token = r.URL.Query().Get("token")
			ok = token != ""
		}
		if !ok {
			h.writeError(w, r, auth.ErrUnauthenticated)
			return
		}

		id, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityKeyType{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func identity(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(IdentityKeyType{}).(auth.Identity)
	return id
}

// Metrics records request latency by route pattern, so ids in paths don't
// blow up the label set.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !h.cfg.Cors || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.sugar.Debugf("Rejected websocket from origin %s", origin)
	return false
}
