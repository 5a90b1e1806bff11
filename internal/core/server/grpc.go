// Package server provides gRPC server lifecycle management.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/solatis/editcheck/internal/core/api"
	"github.com/solatis/editcheck/internal/core/auth"
	"github.com/solatis/editcheck/internal/core/config"
	"github.com/solatis/editcheck/internal/lookup"
)

// ShutdownTimeout bounds graceful shutdown before connections are dropped.
const ShutdownTimeout = 30 * time.Second

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config *config.LookupAPIConfig
}

// NewGRPCServer creates the lookup server with auth interceptor, health
// service and service registration.
func NewGRPCServer(cfg *config.LookupAPIConfig, service *api.LookupService, authenticator *auth.Authenticator) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			authenticator.UnaryInterceptor(),
		),
	}
	if cfg.MaxConnections > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.MaxConnections)))
	}

	server := grpc.NewServer(opts...)
	lookup.RegisterLookupServer(server, service)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(lookup.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}, nil
}

// Start binds the configured address and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(listener net.Listener) error {
	return s.server.Serve(listener)
}

// Shutdown marks the server not serving and stops it gracefully, forcing a
// stop after ShutdownTimeout or when ctx is done.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(ShutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
