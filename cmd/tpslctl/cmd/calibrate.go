package cmd

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/internal/calibration"
	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
	"github.com/ducminhle1904/tpsl-guard/pkg/reporting"
)

type calibrateOptions struct {
	symbols    []string
	path       string
	percentile float64
	defaultBps float64
}

func newCalibrateCmd(rc *RootConfig) *cobra.Command {
	opts := &calibrateOptions{}

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Estimate stop-loss distances from the outcome log",
		Long: `Estimate the stop-loss distance per symbol as a percentile of the maximum
adverse excursion recorded in the outcome log. Symbols without usable history
fall back to the default distance. Without --symbol every symbol found in the
log is reported.

Examples:
  tpslctl calibrate --symbol BTCUSDT
  tpslctl calibrate --percentile 0.8 --log data/features/outcomes.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			estimates, err := collectEstimates(rc, opts)
			if err != nil {
				return err
			}
			reporting.WriteEstimates(rc.out, estimates)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.symbols, "symbol", "s", nil, "symbols to calibrate (default: all in the log)")
	f.StringVar(&opts.path, "log", "", "outcome log path (default from config)")
	f.Float64Var(&opts.percentile, "percentile", 0, "MAE percentile in (0, 1] (default from config)")
	f.Float64Var(&opts.defaultBps, "default-bps", 0, "fallback distance in bps (default from config)")
	return cmd
}

// collectEstimates resolves the flags against the configuration and returns
// one estimate per requested symbol, sorted by symbol. An unreadable log is
// logged and every symbol gets the default distance.
func collectEstimates(rc *RootConfig, opts *calibrateOptions) ([]calibration.Estimate, error) {
	cfg := rc.Config().Calibration
	path := cfg.OutcomePath
	if opts.path != "" {
		path = opts.path
	}
	pct := cfg.Percentile
	if opts.percentile > 0 {
		pct = opts.percentile
	}
	defaultBps := cfg.DefaultBps
	if opts.defaultBps > 0 {
		defaultBps = opts.defaultBps
	}

	log := rc.Logger()
	est := calibration.NewEstimator(path, calibration.WithLogger(log))

	symbols := make([]string, 0, len(opts.symbols))
	for _, s := range opts.symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		bySymbol, _, err := est.SamplesBySymbol()
		if err != nil {
			return nil, err
		}
		for s := range bySymbol {
			if s != "" {
				symbols = append(symbols, s)
			}
		}
	}
	sort.Strings(symbols)

	out := make([]calibration.Estimate, 0, len(symbols))
	for _, symbol := range symbols {
		e, err := est.Estimate(symbol, pct, defaultBps)
		if err != nil {
			log.Warn("calibration read failed, using default stop distance",
				zap.String("symbol", symbol),
				zap.String("path", path),
				zap.Error(err))
			e = calibration.FromSamples(nil, pct, defaultBps)
			e.Symbol = symbol
		}
		monitoring.UpdateCalibrationEstimate(e.Symbol, e.Bps)
		out = append(out, e)
	}
	return out, nil
}
