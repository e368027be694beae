package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/internal/calibration"
	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
)

type serveOptions struct {
	port    int
	refresh time.Duration
	calib   calibrateOptions
}

func newServeCmd(rc *RootConfig) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve Prometheus metrics and the health endpoint",
		Long: `Start an HTTP server exposing /metrics and /health. The guardrail starts
its grace window when the server starts; /health reports "starting" until it
ends. Stop-loss estimates for --symbol are refreshed every --refresh and
exported as tpsl_calibration_estimate_bps.

Example:
  tpslctl serve --port 9100 --symbol BTCUSDT,ETHUSDT --refresh 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rc, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.port, "port", "p", 0, "listen port (default from config)")
	f.DurationVar(&opts.refresh, "refresh", time.Minute, "calibration refresh interval")
	f.StringSliceVarP(&opts.calib.symbols, "symbol", "s", nil, "symbols whose stop estimate is exported")
	f.StringVar(&opts.calib.path, "log", "", "outcome log path (default from config)")
	return cmd
}

// newServeMux routes /metrics and /health
func newServeMux(health *monitoring.HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", health)
	return mux
}

func runServe(ctx context.Context, rc *RootConfig, opts *serveOptions) error {
	cfg := rc.Config()
	log := rc.Logger()

	port := cfg.Monitoring.PrometheusPort
	if opts.port > 0 {
		port = opts.port
	}

	guard := safety.NewGuardRail(cfg.SafetyConfig())
	health := monitoring.NewHealthChecker(guard, cfg.Safety.DryRun)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newServeMux(health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting metrics server",
			zap.Int("port", port),
			zap.Duration("grace", cfg.Safety.GracePeriod()),
			zap.Bool("dry_run", cfg.Safety.DryRun))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if len(opts.calib.symbols) > 0 {
		go refreshEstimates(ctx, rc, opts, health)
	}

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// refreshEstimates recomputes the exported stop estimates until ctx ends.
// Read failures mark the process degraded until the next clean pass.
func refreshEstimates(ctx context.Context, rc *RootConfig, opts *serveOptions, health *monitoring.HealthChecker) {
	interval := opts.refresh
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		health.RecordError(refreshOnce(rc, &opts.calib))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func refreshOnce(rc *RootConfig, opts *calibrateOptions) error {
	cfg := rc.Config().Calibration
	path := cfg.OutcomePath
	if opts.path != "" {
		path = opts.path
	}
	est := calibration.NewEstimator(path, calibration.WithLogger(rc.Logger()))

	for _, symbol := range opts.symbols {
		e, err := est.Estimate(symbol, cfg.Percentile, cfg.DefaultBps)
		if err != nil {
			return err
		}
		monitoring.UpdateCalibrationEstimate(e.Symbol, e.Bps)
	}
	return nil
}
