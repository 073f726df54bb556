package main

import (
	"context"
	"net"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthServiceName is the per-service name reported next to the overall ("") status.
const healthServiceName = "livetrace.Tracking"

func healthSink(hs *health.Server) func(models.SystemHealth) {
	return func(h models.SystemHealth) {
		st := healthpb.HealthCheckResponse_SERVING
		if h.Status != models.HealthStatusOK {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(healthServiceName, st)
	}
}

func runGRPCServer(ctx context.Context, lis net.Listener, hs *health.Server, logger *zap.Logger) error {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			s.Stop()
		}
	}()

	logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
	return s.Serve(lis)
}
