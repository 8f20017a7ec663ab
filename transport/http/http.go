package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bunk/config"
	"bunk/internal/worker"
	"bunk/transport/http/response"
	"bunk/transport/http/router"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type ServerState int

const (
	ServerStateReady ServerState = iota + 1
	ServerStateInGracePeriod
	ServerStateInCleanupPeriod
)

type HTTP struct {
	Config  *config.Config
	Router  router.Router
	Sweeper *worker.Sweeper
	State   ServerState

	mux         *chi.Mux
	server      *http.Server
	stopSweeper context.CancelFunc
}

func New(cfg *config.Config, r router.Router, sweeper *worker.Sweeper) *HTTP {
	return &HTTP{
		Config:  cfg,
		Router:  r,
		Sweeper: sweeper,
	}
}

func (h *HTTP) Serve() {
	h.setup()

	sweepCtx, cancel := context.WithCancel(context.Background())
	h.stopSweeper = cancel

	go h.Sweeper.Run(sweepCtx)

	h.server = &http.Server{
		Addr:    net.JoinHostPort("0.0.0.0", h.Config.Server.Port),
		Handler: h.mux,
	}

	log.Info().Str("port", h.Config.Server.Port).Msg("Starting up HTTP server.")

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}
}

// ServeHTTP lets the whole app run behind a serverless handler. The sweeper
// stays off on this path; serverless invocations cannot host a ticker loop.
func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.mux == nil {
		h.setup()
	}

	h.mux.ServeHTTP(w, r)
}

func (h *HTTP) setup() {
	h.setupRoutes()
	h.setupGracefulShutdown()
	h.State = ServerStateReady
}

// setupRoutes builds the mux. Middlewares registered by SetupRoutes must come
// before any route, so the health endpoint is added last.
func (h *HTTP) setupRoutes() {
	h.mux = chi.NewRouter()

	h.Router.SetupRoutes(h.mux)

	h.mux.Get("/health", h.HealthCheck)
}

func (h *HTTP) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	switch h.State {
	case ServerStateReady:
		response.WithMessage(w, http.StatusOK, "OK")
	case ServerStateInGracePeriod:
		response.WithPreparingShutdown(w)
	default:
		response.WithUnhealthy(w)
	}
}

func (h *HTTP) setupGracefulShutdown() {
	serverStateCh := make(chan os.Signal, 1)

	signal.Notify(serverStateCh, os.Interrupt, syscall.SIGTERM)

	go h.respondToSigterm(serverStateCh)
}

func (h *HTTP) respondToSigterm(done chan os.Signal) {
	<-done

	defer os.Exit(0)

	if h.Config.Server.Env == "development" {
		log.Warn().Msg("Received SIGTERM. Shutting down now.")

		h.stopBackground()
		h.shutdownServer()

		return
	}

	shutdownConfig := h.Config.Server.Shutdown

	log.Info().Msg("Received SIGTERM.")
	log.Info().Int64("seconds", shutdownConfig.GracePeriodSeconds).Msg("Entering grace period.")

	h.State = ServerStateInGracePeriod

	time.Sleep(time.Duration(shutdownConfig.GracePeriodSeconds) * time.Second)

	log.Info().Int64("seconds", shutdownConfig.CleanupPeriodSeconds).Msg("Entering cleanup period.")

	h.State = ServerStateInCleanupPeriod

	h.stopBackground()

	time.Sleep(time.Duration(shutdownConfig.CleanupPeriodSeconds) * time.Second)

	h.shutdownServer()

	log.Info().Msg("Cleaning up completed. Shutting down now.")
}

func (h *HTTP) stopBackground() {
	if h.stopSweeper != nil {
		h.stopSweeper()
	}
}

func (h *HTTP) shutdownServer() {
	if h.server == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down HTTP server gracefully")
	}
}
