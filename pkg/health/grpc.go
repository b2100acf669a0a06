package health

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the checker through the standard grpc.health.v1 service
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
}

// NewGRPCServer mirrors the checker's overall status into a gRPC health server
func NewGRPCServer(checker *Checker, service string) *GRPCServer {
	hs := grpchealth.NewServer()
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	checker.OnChange(func(healthy bool) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if healthy {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus(service, status)
		hs.SetServingStatus("", status)
	})

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return &GRPCServer{server: s, health: hs}
}

// Serve listens on addr until ctx is cancelled
func (g *GRPCServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return g.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled
func (g *GRPCServer) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		g.health.Shutdown()
		g.server.GracefulStop()
	}()
	return g.server.Serve(lis)
}
