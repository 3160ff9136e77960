package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/windfall/engapp_service/internal/config"
	httphandler "github.com/windfall/engapp_service/internal/handler/http"
	"github.com/windfall/engapp_service/internal/middleware"
	"github.com/windfall/engapp_service/internal/observe"
)

// HTTPServer represents the HTTP server.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// Routes bundles the handlers mounted by the HTTP server.
type Routes struct {
	Health     *httphandler.HealthHandler
	Assessment *httphandler.AssessmentHandler
	WebSocket  *WebSocketHub
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the HTTP routing tree.
func NewRouter(
	cfg *config.Config,
	log zerolog.Logger,
	routes Routes,
	validator middleware.TokenValidator,
	metrics *observe.Metrics,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if metrics != nil {
		r.Use(observe.Middleware(metrics))
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (public)
	r.Get("/health", routes.Health.Health)
	r.Get("/ready", routes.Health.Ready)
	r.Get("/live", routes.Health.Live)
	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics)
	}

	if routes.WebSocket != nil {
		r.With(middleware.AuthWithQueryToken(validator)).Get("/ws", routes.WebSocket.HandleWebSocket)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(validator))

		r.Route("/assessments", func(r chi.Router) {
			r.Get("/eligibility", routes.Assessment.Eligibility)
			r.Get("/dashboard", routes.Assessment.Dashboard)
			r.Post("/", routes.Assessment.Start)
			r.Get("/{sessionID}", routes.Assessment.GetResults)
			r.Post("/{sessionID}/complete", routes.Assessment.Complete)
			r.Post("/{sessionID}/phases/{phase}", routes.Assessment.SubmitPhase)
		})
	})

	return r
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(cfg *config.Config, log zerolog.Logger, handler http.Handler) *HTTPServer {
	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &HTTPServer{
		server: server,
		log:    log,
	}
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
