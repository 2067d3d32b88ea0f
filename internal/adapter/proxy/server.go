// Package proxy is the single HTTP entry point of a run. It serves the
// explorer UI and forwards path prefixes to the backends.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"am/internal/domain"
	"am/internal/metrics"
)

// DefaultListenAddress is where the proxy binds unless configured.
const DefaultListenAddress = "127.0.0.1:6789"

// DefaultShutdownTimeout bounds the graceful shutdown of the server.
const DefaultShutdownTimeout = 5 * time.Second

// Config configures the HTTP front end.
type Config struct {
	ListenAddress string
	// AllowedOrigins enables CORS for the listed origins. Empty disables
	// CORS handling.
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Server binds the listen address and serves the router.
type Server struct {
	cfg     Config
	routes  []Route
	logger  domain.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

// New creates a Server. reg is exposed under /api/metrics and m records
// per-route request metrics; both must come from the same registry.
func New(cfg Config, routes []Route, logger domain.Logger, reg *prometheus.Registry, m *metrics.Metrics) *Server {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{cfg: cfg, routes: routes, logger: logger, reg: reg, metrics: m}
}

// Serve binds the listen address, reports the bound address to onBound and
// serves until ctx is done. A bind failure is returned immediately and is
// not retried.
func (s *Server) Serve(ctx context.Context, onBound func(netip.AddrPort)) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.ListenAddress, err)
	}

	bound, err := netip.ParseAddrPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("parse bound address: %w", err)
	}
	bound = netip.AddrPortFrom(bound.Addr().Unmap(), bound.Port())

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("proxy listening", "addr", bound.String())
	if onBound != nil {
		onBound(bound)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("proxy shutdown incomplete", "err", err)
		_ = srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	s.logger.Debug("proxy stopped")
	return nil
}
