package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/govcontracts-loader/internal/api"
	"github.com/JakeFAU/govcontracts-loader/internal/lock"
)

// newServeCmd creates the 'serve' subcommand, which exposes runs over HTTP.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run trigger API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			defer a.Close()

			var opts []api.Option
			if e.cfg.Server.RedisAddr != "" {
				client, err := lock.Dial(cmd.Context(), e.cfg.Server.RedisAddr, e.cfg.Server.RedisPassword)
				if err != nil {
					return fmt.Errorf("connect run lock: %w", err)
				}
				defer func() { _ = client.Close() }()
				locker, err := lock.NewRedis(client, e.cfg.Server.LockKey, e.cfg.Server.LockTTL, e.logger.Named("lock"))
				if err != nil {
					return err
				}
				opts = append(opts, api.WithLocker(locker))
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", e.cfg.Server.Port),
				Handler:           api.NewServer(a, e.cfg.Server.APIKey, e.logger.Named("api"), opts...).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return serve(cmd.Context(), srv, e.logger)
		},
	}
}

func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
