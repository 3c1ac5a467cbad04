package handlers

import (
	"chatcore/internal/auth"
	"chatcore/internal/chat"
	"chatcore/internal/config"
	"chatcore/internal/hub"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	authRequests = 20
	authWindow   = time.Minute
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers serves the HTTP api and the websocket endpoint.
type Handlers struct {
	cfg      *config.ConfigFile
	sugar    *zap.SugaredLogger
	auth     *auth.Service
	engine   *chat.Engine
	hub      *hub.Hub
	db       Pinger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func New(cfg *config.ConfigFile, sugar *zap.SugaredLogger, authService *auth.Service, engine *chat.Engine, h *hub.Hub, db Pinger) *Handlers {
	handlers := &Handlers{
		cfg:      cfg,
		sugar:    sugar,
		auth:     authService,
		engine:   engine,
		hub:      h,
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	handlers.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     handlers.checkOrigin,
	}
	return handlers
}

func (h *Handlers) limitByIP(requests int, window time.Duration) func(http.Handler) http.Handler {
	if h.cfg.BehindNginx {
		return httprate.LimitByRealIP(requests, window)
	}
	return httprate.LimitByIP(requests, window)
}

func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	if h.cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(Metrics)

	if h.cfg.Cors {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if h.cfg.RateLimitRequests > 0 {
		r.Use(h.limitByIP(h.cfg.RateLimitRequests, h.cfg.RateLimitWindow))
	}

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(60 * time.Second))

		api.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.limitByIP(authRequests, authWindow))
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/refresh", h.Refresh)
			})
			r.With(h.UserVerifier).Post("/logout", h.Logout)
			r.With(h.UserVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.Route("/user", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/me", h.GetUserInfo)
			r.Patch("/me", h.UpdateUserInfo)
		})

		api.Route("/chat", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/", h.GetChatList)
			r.Post("/private", h.CreatePrivateChat)
			r.Post("/group", h.CreateGroupChat)
			r.Route("/{chatID}", func(r chi.Router) {
				r.Get("/", h.GetChat)
				r.Post("/members", h.AddChatMember)
				r.Get("/messages", h.GetMessageList)
				r.Post("/messages", h.CreateMessage)
				r.Put("/pin", h.PinMessage)
				r.Delete("/pin", h.UnpinMessage)
			})
		})

		api.Route("/message/{messageID}", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Patch("/", h.EditMessage)
			r.Delete("/", h.DeleteMessage)
			r.Post("/reactions", h.AddReaction)
			r.Delete("/reactions/{emoji}", h.RemoveReaction)
		})

		api.Route("/server", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/", h.GetServerList)
			r.Post("/", h.CreateServer)
			r.Route("/{serverID}", func(r chi.Router) {
				r.Get("/", h.GetServer)
				r.Patch("/", h.UpdateServer)

				r.Get("/channels", h.GetChannelList)
				r.Post("/channels", h.CreateChannel)

				r.Get("/members", h.GetMemberList)
				r.Post("/members", h.AddMember)
				r.Delete("/members/{userID}", h.RemoveMember)
				r.Put("/members/{userID}/roles/{roleID}", h.AssignRole)
				r.Delete("/members/{userID}/roles/{roleID}", h.UnassignRole)

				r.Post("/bans", h.BanMember)
				r.Delete("/bans/{userID}", h.UnbanMember)

				r.Get("/roles", h.GetRoleList)
				r.Post("/roles", h.CreateRole)
				r.Patch("/roles/{roleID}", h.UpdateRole)
				r.Delete("/roles/{roleID}", h.DeleteRole)
			})
		})
	})

	// no timeout here, the connection lives as long as the client stays
	var websocketPath string
	if h.cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
	}
	r.With(h.UserVerifier).Get(websocketPath, h.HandleWebSocket)

	return r
}

// Server runs the HTTP listener as a supervised service.
type Server struct {
	cfg   *config.ConfigFile
	sugar *zap.SugaredLogger
	srv   *http.Server
}

func NewServer(cfg *config.ConfigFile, sugar *zap.SugaredLogger, handler http.Handler) *Server {
	return &Server{
		cfg:   cfg,
		sugar: sugar,
		srv: &http.Server{
			Addr:              cfg.ListenAddress(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) String() string {
	return "http server"
}

// Serve listens until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		s.sugar.Infof("Server is running on %s (https: %t)", s.srv.Addr, s.cfg.IsHttps())
		if s.cfg.IsHttps() {
			errs <- s.srv.ListenAndServeTLS(s.cfg.TlsCert, s.cfg.TlsKey)
		} else {
			errs <- s.srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
