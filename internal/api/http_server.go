package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/logging"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Services are the use cases the HTTP API exposes.
type Services struct {
	Availability availabilityAPI
	Bookings     bookingAPI
	Verification verificationAPI
	// Outbox is nil when the outbox worker is disabled.
	Outbox outboxAPI
	Health []HealthCheck
}

// HTTPServer serves the public booking API and the admin routes.
type HTTPServer struct {
	cfg          config.APIConfig
	availability availabilityAPI
	bookings     bookingAPI
	verification verificationAPI
	outbox       outboxAPI
	health       []HealthCheck
	server       *http.Server
	logger       *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:          cfg,
		availability: svc.Availability,
		bookings:     svc.Bookings,
		verification: svc.Verification,
		outbox:       svc.Outbox,
		health:       svc.Health,
		logger:       logging.Component(logger, "http"),
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	auth := NewHTTPAuth(s.cfg.Auth)
	limiter := newRateLimiter(s.cfg.RateLimit)

	middleware := []mux.MiddlewareFunc{
		requestIDMiddleware(s.logger),
		recoverMiddleware,
		accessLogMiddleware,
		metricsMiddleware,
		rateLimitMiddleware(limiter, auth.keys.keyHeader),
	}

	r := mux.NewRouter()
	r.Use(middleware...)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/availability", s.handleGetAvailability).Methods(http.MethodGet)
	r.HandleFunc("/availability/bulk", s.handleAvailabilityBulk).Methods(http.MethodPost)
	r.HandleFunc("/book", s.handleBook).Methods(http.MethodPost)
	r.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)

	r.HandleFunc("/availability", auth.Require(permWriteAvailability, s.handleSetAvailability)).Methods(http.MethodPost)
	r.HandleFunc("/availability/overrides", auth.Require(permReadAvailability, s.handleListOverrides)).Methods(http.MethodGet)
	r.HandleFunc("/bookings", auth.Require(permReadBookings, s.handleListBookings)).Methods(http.MethodGet)
	r.HandleFunc("/bookings/export", auth.Require(permReadBookings, s.handleExportBookings)).Methods(http.MethodGet)
	r.HandleFunc("/bookings/{id:[0-9]+}", auth.Require(permReadBookings, s.handleGetBooking)).Methods(http.MethodGet)

	if s.outbox != nil {
		r.HandleFunc("/outbox/failed", auth.Require(permManageOutbox, s.handleFailedTasks)).Methods(http.MethodGet)
		r.HandleFunc("/outbox/{id:[0-9]+}/requeue", auth.Require(permManageOutbox, s.handleRequeueTask)).Methods(http.MethodPost)
	}

	// mux skips r.Use middleware when no route matches
	r.MethodNotAllowedHandler = wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}), middleware)
	r.NotFoundHandler = wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	}), middleware)
	return r
}

// wrap applies middleware in the order r.Use would.
func wrap(h http.Handler, middleware []mux.MiddlewareFunc) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// Handler exposes the routed handler, used by tests and embedding servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
