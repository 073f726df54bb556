package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/LiveTrace/config"
	"github.com/BearBump/LiveTrace/internal/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "live-tracker",
		Short:         "Real-time shipment tracking and alerting engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (falls back to $configPath)")
	root.AddCommand(newServeCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC health servers and the sensor consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(*configPath)
			if path == "" {
				return errors.New("config path is required: pass --config or set configPath")
			}
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.LiveTrack.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg, defaultAppFactories(), log)
			if err != nil {
				log.Error("bootstrap failed", zap.Error(err))
				return err
			}
			defer a.Close()

			return a.Run(ctx, runOpts{
				httpAddr: orDefault(cfg.LiveTrack.HTTPAddr, ":8080"),
				grpcAddr: orDefault(cfg.LiveTrack.GRPCAddr, ":50051"),
			})
		},
	}
}

func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("configPath")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
