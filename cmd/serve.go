package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pgclaw/internal/config"
	"github.com/nextlevelbuilder/pgclaw/internal/http"
	"github.com/nextlevelbuilder/pgclaw/internal/service"
	"github.com/nextlevelbuilder/pgclaw/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sidecar HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), settings)
		},
	}
}

func runServe(ctx context.Context, settings *config.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint: settings.OTLPEndpoint,
		Protocol: settings.OTLPProtocol,
		Insecure: settings.OTLPInsecure,
	})
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}
	if shutdownTracing != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				slog.Warn("tracing shutdown", "error", err)
			}
		}()
	}

	state, err := service.New(ctx, settings)
	if err != nil {
		return err
	}
	defer state.Close()

	server := http.NewServer(state)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("pgclaw serving", "addr", server.Addr, "embedding_mode", state.Provider.Mode().String())
		if err := server.ListenAndServe(); !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
