package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/describer"
	"github.com/lehigh-university-libraries/alttext/internal/dispatch"
	"github.com/lehigh-university-libraries/alttext/internal/export"
	"github.com/lehigh-university-libraries/alttext/internal/images"
	"github.com/lehigh-university-libraries/alttext/internal/imaging"
	"github.com/lehigh-university-libraries/alttext/internal/models"
	"github.com/lehigh-university-libraries/alttext/internal/prompt"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newDescribeCmd(g *globals) *cobra.Command {
	var maxChars int
	var style string
	var provider string
	var model string
	var concurrency int
	var temperature float64
	var output string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "describe [files, directories or URLs...]",
		Short: "Generate alt text for images on disk",
		Long: `Describe sends every image to the configured LLM and writes one row per
image (filename, alt_text, chars) in input order.

Directories are expanded to the files they contain (not recursively) and
http(s) URLs are downloaded. Files
that are not images are reported as "(not an image)" without calling the LLM.
Output is CSV on stdout unless --output names a .csv or .parquet file.`,
		Example: `  # Describe two images, CSV to stdout
  alttext describe cat.jpg dog.png

  # Describe a directory with Gemini and save as Parquet
  alttext describe ./photos --provider gemini --output photos.parquet

  # Longer descriptions than the web interface allows
  alttext describe poster.png --max-chars 300 --style descriptive`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg

			if provider == "" {
				provider = cfg.Provider
			}
			if model == "" {
				model = cfg.ModelFor(provider)
			}
			if maxChars == 0 {
				maxChars = cfg.MaxChars
			}
			if maxChars < 1 {
				return fmt.Errorf("--max-chars must be at least 1, got %d", maxChars)
			}
			if style == "" {
				style = cfg.Style
			}
			parsedStyle, err := prompt.ParseStyle(style)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") && concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
			}
			if concurrency == 0 {
				concurrency = cfg.Concurrency
			}
			opts := describer.Options{
				MaxChars:    maxChars,
				Style:       parsedStyle,
				Temperature: cfg.Temperature,
			}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = &temperature
			}

			format := export.FormatCSV
			if output != "" {
				if format, err = export.FormatFromPath(output); err != nil {
					return err
				}
			}

			// The CLI runs on the user's own machine, so local URLs are fine
			fetcher := images.NewFetcher(images.FetcherOptions{MaxBytes: cfg.MaxUploadBytes, AllowPrivateNetworks: true})
			uploads, err := loadImages(cmd.Context(), args, fetcher)
			if err != nil {
				return err
			}

			p, err := describer.NewProvider(provider, describer.BackendOptions{
				APIKey:        cfg.APIKey(provider),
				OpenAIBaseURL: cfg.OpenAI.BaseURL,
				OllamaURL:     cfg.Ollama.URL,
			})
			if err != nil {
				return fmt.Errorf("failed to create provider: %w", err)
			}

			c, err := openCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			dispatchOpts := dispatch.Options{
				Concurrency: concurrency,
				CallTimeout: cfg.CallTimeoutOrDefault(),
				Limiter:     dispatch.NewLimiter(cfg.RatePerMinute),
				CacheScope:  []string{provider, model},
			}
			if c != nil {
				defer c.Close()
				dispatchOpts.Cache = c
			}

			var bar *progressbar.ProgressBar
			if !noProgress {
				bar = progressbar.NewOptions(
					len(uploads),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("Describing images"),
					progressbar.OptionThrottle(100*time.Millisecond),
					progressbar.OptionShowCount(),
					progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
				)
			}
			dispatchOpts.OnResult = func(done, total int, r models.Result) {
				slog.Debug("Image complete", "name", r.Name, "progress", fmt.Sprintf("%d/%d", done, total))
				if bar != nil {
					_ = bar.Add(1)
				}
			}

			slog.Info("Starting batch",
				"images", len(uploads),
				"provider", provider,
				"model", model,
				"max_chars", maxChars,
				"concurrency", concurrency)

			sniffer := imaging.NewSniffer(imaging.SnifferOptions{ContentSniff: cfg.ContentSniff})
			d := dispatch.New(describer.New(p, model, sniffer), dispatchOpts)
			start := time.Now()
			results := d.Dispatch(cmd.Context(), uploads, opts)

			failures := 0
			for _, r := range results {
				if r.Failed() {
					failures++
				}
			}
			slog.Info("Batch complete", "images", len(results), "failed", failures, "duration", time.Since(start))

			return writeResults(cmd.OutOrStdout(), output, format, results)
		},
	}

	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Maximum characters per description (default from config, 125)")
	cmd.Flags().StringVar(&style, "style", "", "Description style (concise, descriptive, literal)")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (openai, gemini, or ollama)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (defaults to provider's default)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Number of concurrent LLM calls (default from config, 5)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature (provider default when unset)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, .csv or .parquet (default CSV to stdout)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

// loadImages reads every file or URL named in paths, expanding directories
// one level. Input order is kept.
func loadImages(ctx context.Context, paths []string, fetcher *images.Fetcher) ([]models.UploadedImage, error) {
	var files []string
	for _, path := range paths {
		if images.IsURL(path) {
			files = append(files, path)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	}

	if len(files) == 0 {
		return nil, errors.New("no files to describe")
	}

	uploads := make([]models.UploadedImage, 0, len(files))
	for _, file := range files {
		if images.IsURL(file) {
			img, err := fetcher.Fetch(ctx, file)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, img)
			continue
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		uploads = append(uploads, models.UploadedImage{Name: filepath.Base(file), Data: data})
	}

	return uploads, nil
}

// writeResults writes to stdout when output is empty
func writeResults(stdout io.Writer, output string, format export.Format, results []models.Result) error {
	if output == "" {
		return export.Write(stdout, format, results)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := export.Write(f, format, results); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", output, err)
	}

	slog.Info("Results saved", "output", output, "format", format)
	return nil
}
