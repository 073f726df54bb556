package main

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type runOpts struct {
	httpAddr string
	grpcAddr string

	onListen func(httpAddr, grpcAddr string)
}

// Run serves until ctx is done, then stops every session within the
// configured grace period.
func (a *app) Run(ctx context.Context, opts runOpts) error {
	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return errors.Wrap(err, "listen http")
	}
	grpcLis, err := net.Listen("tcp", opts.grpcAddr)
	if err != nil {
		_ = httpLis.Close()
		return errors.Wrap(err, "listen grpc")
	}
	if opts.onListen != nil {
		opts.onListen(httpLis.Addr().String(), grpcLis.Addr().String())
	}

	if err := a.svc.Start(); err != nil {
		_ = httpLis.Close()
		_ = grpcLis.Close()
		return err
	}
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.health.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHTTPServer(gctx, httpLis, newRouter(a.routes, a.logger), a.logger)
	})
	g.Go(func() error {
		return runGRPCServer(gctx, grpcLis, a.health, a.logger)
	})
	if a.consumer != nil {
		g.Go(func() error {
			a.logger.Info("sensor consumer started")
			err := a.consumer.Consume(gctx, sensorHandler(a.svc, a.logger))
			if err != nil && gctx.Err() == nil {
				a.logger.Error("sensor consumer stopped", zap.Error(err))
			}
			return nil
		})
	}

	err = g.Wait()

	if serr := a.svc.Shutdown(context.Background()); serr != nil {
		a.logger.Warn("shutdown did not complete cleanly", zap.Error(serr))
	}
	return err
}
