package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"chartscan/internal/config"
	"chartscan/internal/http-server/handlers/account"
	"chartscan/internal/http-server/handlers/errors"
	"chartscan/internal/http-server/handlers/payment"
	"chartscan/internal/http-server/handlers/stats"
	"chartscan/internal/http-server/handlers/stripehandler"
	"chartscan/internal/http-server/middleware/authenticate"
	"chartscan/internal/http-server/middleware/timeout"
	"chartscan/lib/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	account.Core
	stats.Core
	payment.Core
	stripehandler.Core
}

// NewRouter mounts the public, admin and webhook routes. metrics may be nil.
func NewRouter(log *slog.Logger, handler Handler, metrics http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(5 * time.Second))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Get("/leaderboard", stats.Leaderboard(log, handler))
		rootApi.Get("/stats", stats.Stats(log, handler))
		rootApi.Route("/accounts/{id}", func(acc chi.Router) {
			acc.Get("/", account.Summary(log, handler))
			acc.Get("/scans", account.Scans(log, handler))
			acc.Group(func(admin chi.Router) {
				admin.Use(authenticate.AdminOnly(log))
				admin.Post("/grant", account.Grant(log, handler))
				admin.Post("/premium", account.Premium(log, handler))
				admin.Post("/referral", account.Referral(log, handler))
			})
		})
		rootApi.Route("/st", func(st chi.Router) {
			st.Post("/checkout", payment.Checkout(log, handler))
		})
	})
	router.Route("/webhook", func(rootWH chi.Router) {
		rootWH.Post("/event", stripehandler.Event(log, handler))
	})
	if metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics)
	}
	return router
}

func New(conf *config.Config, log *slog.Logger, handler Handler, metrics http.Handler) *Server {
	server := &Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}
	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      NewRouter(log, handler, metrics),
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// Start blocks until the server is shut down.
func (s *Server) Start() error {
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIp, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	s.log.Info("starting api server", slog.String("address", serverAddress))

	err = s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
