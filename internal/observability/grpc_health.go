package observability

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard gRPC health service. The overall status
// follows the uplink: SERVING while connected, NOT_SERVING otherwise.
type GRPCHealth struct {
	addr   string
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewGRPCHealth creates a health server for addr. It starts NOT_SERVING.
func NewGRPCHealth(addr string, logger zerolog.Logger) *GRPCHealth {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	return &GRPCHealth{
		addr:   addr,
		server: server,
		health: hs,
		logger: logger.With().Str("component", "grpc_health").Logger(),
	}
}

// SetServing flips the reported status
func (g *GRPCHealth) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve listens on the configured address until ctx is done.
func (g *GRPCHealth) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	return g.ServeListener(ctx, lis)
}

// ServeListener serves on an existing listener until ctx is done.
func (g *GRPCHealth) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		g.health.Shutdown()
		g.server.GracefulStop()
	}()

	g.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC health server failed: %w", err)
	}
	return nil
}
