// Package server exposes the replicator over gRPC. It serves the standard
// health protocol with one service name per remote site, so a probe can ask
// whether a particular site currently answers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServicePrefix prefixes the health service name of every site.
const ServicePrefix = "replicator.site."

// ServiceName returns the health service name of site.
func ServiceName(site string) string {
	return ServicePrefix + site
}

// Health tracks the serving status of the replicator and of each site.
type Health struct {
	hs  *health.Server
	log *slog.Logger

	mu    sync.Mutex
	sites map[string]bool
}

// NewHealth returns a Health reporting the replicator itself as serving.
func NewHealth(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	return &Health{
		hs:    health.NewServer(),
		log:   logger,
		sites: make(map[string]bool),
	}
}

// SetSiteStatus records whether site answered its last poll.
func (h *Health) SetSiteStatus(site string, available bool) {
	h.mu.Lock()
	prev, known := h.sites[site]
	h.sites[site] = available
	h.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if available {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus(ServiceName(site), status)

	if !known || prev != available {
		h.log.Info("site health changed", "site", site, "available", available)
	}
}

// RemoveSite forgets site. Probes for it get SERVICE_UNKNOWN.
func (h *Health) RemoveSite(site string) {
	h.mu.Lock()
	delete(h.sites, site)
	h.mu.Unlock()
	h.hs.SetServingStatus(ServiceName(site), healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
}

// Sites returns the known sites and whether each answers.
func (h *Health) Sites() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]bool, len(h.sites))
	for k, v := range h.sites {
		out[k] = v
	}
	return out
}

// Check answers a health probe without a network round trip.
func (h *Health) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown reports every service as not serving.
func (h *Health) Shutdown() { h.hs.Shutdown() }

// ============================================================================
// gRPC server
// ============================================================================

// Server serves Health on a TCP address.
type Server struct {
	addr   string
	health *Health
	grpc   *grpc.Server
	log    *slog.Logger

	mu  sync.Mutex
	lis net.Listener
}

// NewServer returns a server for h listening on addr once run.
func NewServer(addr string, h *Health, logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(gs, h.hs)
	return &Server{addr: addr, health: h, grpc: gs, log: logger}
}

// Addr returns the bound address, nil before Run has listened.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Run serves until ctx is done, then marks everything not serving and
// stops gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()
	s.log.Info("health server listening", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.health.Shutdown()
	s.grpc.GracefulStop()
	<-errCh
	s.log.Info("health server stopped")
	return nil
}
