package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/psnormalizer/internal/config"
	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/domain/consolidation"
	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
	"github.com/ehr/psnormalizer/internal/platform/middleware"
	"github.com/ehr/psnormalizer/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "psnormalizer",
		Short:        "Normalize CDA and FHIR patient summaries into one canonical data set",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(normalizeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the normalization API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	metrics := telemetry.NewProvider(telemetry.TelemetryConfig{
		MetricsEnabled: telemetry.BoolPtr(cfg.MetricsEnabled),
		RuntimeMetrics: true,
	})
	svc := consolidation.NewService(logger, metrics)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.MetricsMiddleware())

	e.GET("/health", consolidation.Health)
	if cfg.MetricsEnabled {
		e.GET("/metrics", metrics.PrometheusHandler())
	}

	apiV1 := e.Group("/api/v1",
		middleware.BodyLimit(cfg.MaxDocumentSize),
		middleware.RequestTimeout(cfg.RequestTimeout),
	)
	consolidation.NewHandler(svc, consolidation.HandlerOptions{
		DateStyle:       cfg.Style(),
		DefaultCountry:  cfg.DefaultCountry,
		MaxDocumentSize: cfg.MaxDocumentSize,
	}).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

type normalizeOptions struct {
	format  string
	country string
	style   string
	output  string
	workers int
}

func normalizeCmd() *cobra.Command {
	var opts normalizeOptions
	cmd := &cobra.Command{
		Use:   "normalize [files...]",
		Short: "Normalize documents from files (or stdin with -) and print JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("country") {
				opts.country = cfg.DefaultCountry
			}
			if !cmd.Flags().Changed("style") {
				opts.style = cfg.DateStyle
			}
			if !cmd.Flags().Changed("workers") {
				opts.workers = cfg.BatchWorkers
			}
			logger := newLogger(cfg, os.Stderr)
			return runNormalize(cmd.Context(), logger, opts, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "auto", "source format: auto, cda or fhir")
	cmd.Flags().StringVar(&opts.country, "country", "", "ISO 3166-1 alpha-2 country of origin")
	cmd.Flags().StringVar(&opts.style, "style", "european", "date style for the summary output: european or us")
	cmd.Flags().StringVar(&opts.output, "output", "json", "output: json or summary")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "documents processed in parallel")
	return cmd
}

// normalizeOutput is one line of normalize output.
type normalizeOutput struct {
	Document string      `json:"document"`
	Result   interface{} `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func runNormalize(ctx context.Context, logger zerolog.Logger, opts normalizeOptions, files []string, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := canonical.ParseSourceFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.output != "json" && opts.output != "summary" {
		return fmt.Errorf("output must be json or summary, got %q", opts.output)
	}
	style := clinicaldate.ParseStyle(opts.style)

	docs := make([]consolidation.Document, 0, len(files))
	for _, name := range files {
		var data []byte
		if name == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(filepath.Clean(name))
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		docs = append(docs, consolidation.Document{Name: name, Data: data, Format: format, Country: opts.country})
	}

	svc := consolidation.NewService(logger, nil)
	results, err := svc.ProcessBatch(ctx, docs, opts.workers)

	enc := json.NewEncoder(stdout)
	failed := 0
	for _, r := range results {
		out := normalizeOutput{Document: r.Name}
		switch {
		case r.Err != nil:
			failed++
			out.Error = r.Err.Error()
		case opts.output == "summary":
			out.Result = consolidation.Summarize(r.DataSet, style)
		default:
			out.Result = r.DataSet
		}
		if encErr := enc.Encode(out); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}
