package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/riffid/internal/config"
	"github.com/and161185/riffid/internal/migrate"
	grpcserver "github.com/and161185/riffid/internal/server/grpc"
	httpserver "github.com/and161185/riffid/internal/server/http"
	"github.com/and161185/riffid/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("grpc-addr", "", "gRPC listen address")
	cmd.Flags().String("http-addr", "", "HTTP listen address")
	cmd.Flags().String("loader", "", "principal loader strategy (local, postgres, redis)")
	bindFlag(v, cmd, "server.grpc_addr", "grpc-addr")
	bindFlag(v, cmd, "server.http_addr", "http-addr")
	bindFlag(v, cmd, "loader.name", "loader")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("loader", cfg.Loader.Name),
	)

	if cfg.Database.Migrate && cfg.Database.DSN != "" {
		if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	l, err := resolveLoader(cfg, b)
	if err != nil {
		return err
	}
	codec, err := newCodec(cfg, l, log)
	if err != nil {
		return err
	}
	metrics, err := telemetry.NewTokenMetrics()
	if err != nil {
		return err
	}
	svc := newService(cfg, b, l, codec, metrics, log)

	gs := grpcserver.New(log, svc, grpcserver.PublicMethods(cfg.Server.PublicMethods...))
	hs := httpserver.NewServer(cfg.Server.HTTPAddr, httpserver.RouterOptions{
		Service:     svc,
		Log:         log,
		IgnorePaths: cfg.Server.IgnorePaths,
		Ping:        b.ping,
	})

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
		gs.Serving()
		errCh <- gs.GRPC.Serve(lis)
	}()
	go func() {
		log.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
		shutdown(gs, hs, log)
		return err
	}
	shutdown(gs, hs, log)
	log.Info("shutdown complete")
	return nil
}

func shutdown(gs *grpcserver.Server, hs *http.Server, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := hs.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		gs.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		gs.GRPC.Stop()
	}
}
