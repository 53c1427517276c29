package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globals) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the alt text interface",
		Long: `Starts the alt text web interface on the specified port.

The web interface accepts a batch of images, asks the configured LLM for
alt text for each one, and offers the results as a CSV download.`,
		Example: `  # Start server on default port 8888
  alttext serve

  # Start server on custom port with a description cache
  ALTTEXT_CACHE_PATH=alttext.db alttext serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(cmd.Context(), g.cfg)
			if err != nil {
				return err
			}
			if c != nil {
				defer c.Close()
			}

			handler := handlers.New(g.cfg, c)

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Alt text interface available",
					"addr", addr,
					"url", "http://localhost"+addr,
					"provider", g.cfg.Provider,
					"model", g.cfg.ModelFor(g.cfg.Provider))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Batches can take a while, give them the call timeout to finish
				shutdownCtx, cancel := context.WithTimeout(context.Background(), g.cfg.CallTimeoutOrDefault()+5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")

	return cmd
}
