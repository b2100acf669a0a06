package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quacker/backend/pkg/config"
	"quacker/backend/pkg/di"
	"quacker/backend/pkg/health"
	"quacker/backend/pkg/logger"
	"quacker/backend/pkg/router"
)

var version = "dev"

func main() {
	cfg := config.New()

	log := logger.New(logger.FromEnv(cfg.Logging.Level, cfg.Logging.Format))
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.LogError(err, "server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting quacker", "version", version, "env", cfg.Server.Env, "store", cfg.Store.Backend)

	container, err := di.New(ctx, cfg, log, di.Options{})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			log.LogError(err, "failed to release resources")
		}
	}()

	if container.Hub != nil {
		go container.Hub.Run(ctx)
	}
	container.Health.Start(ctx)

	if cfg.GRPC.Enabled {
		grpcHealth := health.NewGRPCServer(container.Health, "quacker")
		go func() {
			addr := net.JoinHostPort("", cfg.GRPC.Port)
			log.Info("gRPC health server starting", "addr", addr)
			if err := grpcHealth.Serve(ctx, addr); err != nil {
				log.LogError(err, "gRPC health server failed")
			}
		}()
	}

	r := router.New(ctx, container, version)
	r.SetupRoutes()
	if cfg.OpenAPI.SchemaPath != "" {
		go reloadSchemaOnHangup(ctx, r, log)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server exited gracefully")
	return nil
}

// reloadSchemaOnHangup re-reads the OpenAPI schema on every SIGHUP
func reloadSchemaOnHangup(ctx context.Context, r *router.Router, log *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := r.ReloadSchema(); err != nil {
				log.LogError(err, "failed to reload OpenAPI schema")
			}
		}
	}
}
