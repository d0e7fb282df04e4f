package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/h4shk4t/validAI-Contract/internal/contract"
	"github.com/h4shk4t/validAI-Contract/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second

	defaultRespondRPS   = 20
	defaultRespondBurst = 40
)

// Options tunes the HTTP surface.
type Options struct {
	// RespondRPS and RespondBurst bound /v1/respond per client IP.
	RespondRPS   float64
	RespondBurst int
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router  *chi.Mux
	svc     *contract.Service
	store   store.Store
	limiter *ipLimiter
	logger  *slog.Logger
	addr    string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, svc *contract.Service, s store.Store, logger *slog.Logger, opts Options) *Server {
	if opts.RespondRPS <= 0 {
		opts.RespondRPS = defaultRespondRPS
	}
	if opts.RespondBurst <= 0 {
		opts.RespondBurst = defaultRespondBurst
	}

	srv := &Server{
		router:  chi.NewRouter(),
		svc:     svc,
		store:   s,
		limiter: newIPLimiter(opts.RespondRPS, opts.RespondBurst),
		logger:  logger,
		addr:    addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id", callerHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/init", s.handleInit)
		r.Get("/state", s.handleGetState)
		r.Get("/stats", s.handleGetStats)

		r.Post("/tasks/before", s.handleBeforeTask)
		r.Post("/tasks/after", s.handleAfterTask)

		r.Post("/models", s.handleRegisterModel)
		r.Get("/models/{name}", s.handleGetModel)

		r.With(s.limiter.middleware).Post("/respond", s.handleRespond)

		r.Get("/events", s.handleStreamEvents)

		r.Get("/requests", s.handleListRequests)
		r.Get("/requests/{yield_id}", s.handleGetRequest)
		r.Get("/receipts/{id}/logs", s.handleGetReceiptLogs)

		r.Get("/accounts/{id}/balance", s.handleGetBalance)
		r.Get("/accounts/{id}/transfers", s.handleListTransfers)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Ends open event streams so Shutdown does not wait on them.
	s.svc.Runtime().Broker().Close()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
