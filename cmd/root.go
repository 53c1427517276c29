package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/alttext/internal/cache"
	"github.com/lehigh-university-libraries/alttext/internal/config"
	"github.com/spf13/cobra"
)

// globals is shared by every subcommand once the root pre-run has loaded it
type globals struct {
	configPath string
	verbose    bool

	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "alttext",
		Short: "Generate image alt text with multimodal LLMs",
		Long: `Alttext writes short, accessible alternative text for images using a
vision-capable LLM (OpenAI, Gemini, or Ollama).

Use the web interface for interactive batches or the describe command to
process files on disk and export the results as CSV or Parquet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.verbose {
				cfg.LogLevel = "debug"
			}
			setupLogging(cfg)
			g.cfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to a YAML config file (default $ALTTEXT_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newDescribeCmd(g))
	cmd.AddCommand(newExportCmd(g))

	return cmd
}

func setupLogging(cfg *config.Config) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))
}

// openCache returns nil when no cache path is configured
func openCache(ctx context.Context, cfg *config.Config) (*cache.Cache, error) {
	if cfg.CachePath == "" {
		return nil, nil
	}

	c, err := cache.Open(ctx, cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open description cache: %w", err)
	}
	slog.Debug("Opened description cache", "path", cfg.CachePath)

	return c, nil
}
