package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cwygoda/shotgrab/internal/adapter/filestore"
	httpAdapter "github.com/cwygoda/shotgrab/internal/adapter/http"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				a.cfg.Server.Port = port
			}
			credential, err := a.credential()
			if err != nil {
				return err
			}
			if err := filestore.EnsureDir(a.cfg.OutputDir); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			svc, err := a.buildServices(0, 0)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			if recovered, err := svc.capture.RecoverStale(ctx); err != nil {
				a.log.Warnf("failed to recover stale captures: %v", err)
			} else if recovered > 0 {
				a.log.Infof("recovered %d stale captures", recovered)
			}

			srv := httpAdapter.NewServer(svc.capture, fmt.Sprintf(":%d", a.cfg.Server.Port), httpAdapter.Options{
				Credential: credential,
				Secret:     a.cfg.Server.Secret,
				OutputDir:  a.cfg.OutputDir,
				Logger:     a.log,
			})
			a.log.WithFields(logrus.Fields{
				"output_dir": a.cfg.OutputDir,
				"history":    a.cfg.History.Enabled,
			}).Infof("starting shotgrab on port %d", srv.Port())

			return run(ctx, srv, a)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (default from config)")
	return cmd
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, srv *httpAdapter.Server, a *app) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}
