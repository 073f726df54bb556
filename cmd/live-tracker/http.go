package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	trackingapi "github.com/BearBump/LiveTrace/internal/api/tracking_api"
	"github.com/BearBump/LiveTrace/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

type routerOpts struct {
	api         *trackingapi.TrackingAPI
	ws          http.Handler
	authn       *auth.Authenticator
	metrics     http.Handler
	ready       func(ctx context.Context) bool
	swaggerPath string
}

func newRouter(opts routerOpts, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.ready != nil && !opts.ready(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	if opts.metrics != nil {
		r.Handle("/metrics", opts.metrics)
	}

	opts.api.Mount(r, opts.authn.Middleware)
	r.Handle("/ws", opts.ws)

	if opts.swaggerPath == "" {
		return r
	}
	fi, err := os.Stat(opts.swaggerPath)
	if err != nil {
		logger.Warn("swagger file not found, docs disabled", zap.String("path", opts.swaggerPath))
		return r
	}
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix()))))
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http serve")
	}
	return nil
}
