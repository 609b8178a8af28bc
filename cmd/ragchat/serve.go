package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/csheth/ragchat/internal/backend"
	"github.com/csheth/ragchat/internal/logging"
	"github.com/csheth/ragchat/internal/relay"
)

const shutdownGrace = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			if err := cfg.RequireBackend(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			upstream := backend.New(backend.Config{
				BaseURL: cfg.BackendURL,
				Timeout: cfg.RequestTimeout,
				Logger:  logger,
			})
			router := relay.NewRouter(relay.NewHandler(upstream, logger), logger)
			server := &http.Server{
				Addr:              cfg.Listen,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() {
				logger.Info().
					Str("listen", cfg.Listen).
					Str("backend", upstream.Endpoint()).
					Msg("relay listening")
				serveErr <- server.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return errors.Wrap(err, "relay server")
			case <-ctx.Done():
			}

			logger.Info().Msg("shutting down relay")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return errors.Wrap(server.Shutdown(shutdownCtx), "shutdown relay")
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "relay bind address (default :3000)")
	return cmd
}
