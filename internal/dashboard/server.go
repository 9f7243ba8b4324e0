// Package dashboard serves the web front end and JSON API for verifications.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/history"
	"github.com/ppiankov/vetter/internal/ratelimit"
	"github.com/ppiankov/vetter/internal/vetting"
)

// HistoryReader lists past verifications.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Config holds dashboard configuration.
type Config struct {
	Addr     string
	Service  *vetting.Service
	History  HistoryReader
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	// Remote merges the remote denylist on every verification unless the
	// request sets remote=false.
	Remote bool
	// RequestTimeout bounds a single request, including upstream fetches.
	RequestTimeout time.Duration
	// VerifyLimit bounds verifications per client IP. Zero disables it.
	VerifyLimit ratelimit.Limit
	// TrustedProxies lists peers whose X-Forwarded-For is believed. Empty
	// means the peer address is the client.
	TrustedProxies []netip.Prefix
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg     Config
	router  chi.Router
	limiter *ratelimit.Limiter
}

// New builds the router for cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("dashboard: service is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{cfg: cfg, limiter: ratelimit.New(cfg.VerifyLimit)}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.cfg.Logger, s.cfg.TrustedProxies))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		r.Get("/", s.handleIndex)
		r.Route("/api", func(r chi.Router) {
			r.With(s.limitVerify).Get("/verify", s.handleVerify)
			r.Get("/history", s.handleHistory)
			r.Get("/reference", s.handleReference)
		})
	})
	return r
}

// Handler returns the root handler. For testing and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.cfg.Logger.Info().Str("addr", s.cfg.Addr).Msg("dashboard listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	return nil
}
