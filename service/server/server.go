package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pushbridge/service/activity"
	"pushbridge/service/bridge"
	"pushbridge/service/config"
	"pushbridge/service/delivery"
	"pushbridge/service/iterable"
	"pushbridge/service/subscription"
	"pushbridge/service/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// BridgeStatus reports whether the native host connection is alive.
type BridgeStatus interface {
	Connected() bool
}

type Deps struct {
	SDK           *iterable.Client
	Bridge        BridgeStatus
	Activity      *activity.Store
	Feed          *activity.Feed
	Subscriptions *subscription.Store
	Publisher     *delivery.Publisher
	Version       string
}

type Server struct {
	cfg           *config.Config
	sdk           *iterable.Client
	bridge        BridgeStatus
	activity      *activity.Store
	feed          *activity.Feed
	subscriptions *subscription.Store
	publisher     *delivery.Publisher
	version       string
	logger        *slog.Logger
	router        *chi.Mux
	httpServer    *http.Server
	startTime     time.Time
}

func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:           cfg,
		sdk:           deps.SDK,
		bridge:        deps.Bridge,
		activity:      deps.Activity,
		feed:          deps.Feed,
		subscriptions: deps.Subscriptions,
		publisher:     deps.Publisher,
		version:       deps.Version,
		logger:        logger,
		startTime:     time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(peerAddrMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))
	r.Use(securityHeadersMiddleware())
	r.Use(middleware.StripSlashes)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimitMiddleware(s.cfg.RateLimit))
		}
		r.Use(authMiddleware(s.cfg.APIKey))

		r.Get("/identity/email", s.handleGetEmail)
		r.Put("/identity/email", s.handleSetEmail)
		r.Get("/identity/user-id", s.handleGetUserID)
		r.Put("/identity/user-id", s.handleSetUserID)
		r.Post("/device/disable", s.handleDisableDevice)

		r.Get("/push/last", s.handleGetLastPushPayload)
		r.Get("/attribution", s.handleGetAttribution)
		r.Put("/attribution", s.handleSetAttribution)
		r.Delete("/attribution", s.handleClearAttribution)

		r.Post("/track/push-open/payload", s.handleTrackPushOpenPayload)
		r.Post("/track/push-open/campaign", s.handleTrackPushOpenCampaign)
		r.Post("/track/purchase", s.handleTrackPurchase)

		r.Get("/inapp", s.handleGetInAppMessages)
		r.Get("/activity", s.handleListActivity)
		r.Get("/activity/stream", s.handleActivityStream)
		r.Get("/activity/{id}", s.handleGetActivity)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Delete("/", s.handleDeleteChannelSubscriptions)
			r.Get("/{id}", s.handleGetSubscription)
			r.Post("/webpush", s.handleCreateWebPushSubscription)
			r.Post("/telegram", s.handleCreateTelegramSubscription)
			r.Delete("/{id}", s.handleDeleteSubscription)
		})
	})

	s.router = r
}

// Handler is the traced router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "pushbridge")
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.BridgeCallTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	msg := fmt.Sprintf("Pushbridge running on:\n  Local: http://localhost:%d", s.cfg.Port)
	if lanIP := util.GetLANIP(); lanIP != "" {
		msg += fmt.Sprintf("\n  Network: http://%s:%d", lanIP, s.cfg.Port)
	}
	s.logger.Info(msg)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}

// bridgeContext bounds a native call by the configured timeout.
func (s *Server) bridgeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.BridgeCallTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.BridgeCallTimeout)
}

// bridgeError maps a failed native operation onto a status code: 502 when
// native rejected it or the bridge is gone, 504 on timeout.
func (s *Server) bridgeError(w http.ResponseWriter, op string, err error) {
	var remoteErr *bridge.RemoteError
	switch {
	case errors.As(err, &remoteErr), errors.Is(err, bridge.ErrClosed):
		util.LogAndError(w, s.logger, "Native "+op+" failed", http.StatusBadGateway, err)
	case errors.Is(err, context.DeadlineExceeded):
		util.LogAndError(w, s.logger, "Native "+op+" timed out", http.StatusGatewayTimeout, err)
	default:
		util.LogAndError(w, s.logger, "Failed to "+op, http.StatusInternalServerError, err)
	}
}
