package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/internal/ladder"
	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
	"github.com/ducminhle1904/tpsl-guard/pkg/reporting"
)

type reportOptions struct {
	output string
	ladder ladderOptions
	calib  calibrateOptions
}

func newReportCmd(rc *RootConfig) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export ladder and calibration sheets to Excel",
		Long: `Write an xlsx workbook with a Ladder sheet (one row per rung and symbol)
and a Calibration sheet (stop-loss estimate per symbol).

Examples:
  tpslctl report --symbol BTCUSDT,ETHUSDT --class trend --vol-bps 90
  tpslctl report --symbol BTCUSDT --entry 65000 --size 0.05 --atr 300 -o results/btc.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(rc, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output path (default results/tpsl_report_<time>.xlsx)")
	f.StringSliceVarP(&opts.calib.symbols, "symbol", "s", nil, "symbols to report (default: all in the outcome log)")
	f.StringVar(&opts.calib.path, "log", "", "outcome log path (default from config)")
	f.Float64Var(&opts.calib.percentile, "percentile", 0, "MAE percentile (default from config)")
	f.Float64Var(&opts.calib.defaultBps, "default-bps", 0, "fallback distance in bps (default from config)")
	f.StringVar(&opts.ladder.class, "class", "trend", "strategy label for the ladder sheet")
	f.Float64Var(&opts.ladder.volBps, "vol-bps", 0, "volatility in basis points")
	f.StringVar(&opts.ladder.side, "side", "buy", "position side (buy or sell)")
	f.Float64Var(&opts.ladder.entry, "entry", 0, "entry price; zero writes policy offsets only")
	f.Float64Var(&opts.ladder.size, "size", 0, "position size")
	f.Float64Var(&opts.ladder.tick, "tick", 0.01, "price tick size")
	f.Float64Var(&opts.ladder.lot, "lot", 0.001, "quantity step")
	f.Float64Var(&opts.ladder.minQty, "min-qty", 0, "minimum order quantity")
	f.Float64Var(&opts.ladder.atr, "atr", 0, "ATR in price units")
	return cmd
}

func runReport(rc *RootConfig, opts *reportOptions) error {
	estimates, err := collectEstimates(rc, &opts.calib)
	if err != nil {
		return err
	}

	symbols := make([]string, 0, len(estimates))
	for _, e := range estimates {
		symbols = append(symbols, e.Symbol)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to report: pass --symbol or record outcomes first")
	}

	side, err := parseSide(opts.ladder.side)
	if err != nil {
		return err
	}

	lo := opts.ladder
	entries := make([]reporting.LadderEntry, 0, len(symbols))
	for _, symbol := range symbols {
		policy := ladder.ComputeForLabel(lo.class, lo.volBps, 0)
		monitoring.RecordLadder(policy.Class.String())
		entry := reporting.LadderEntry{Symbol: symbol, Policy: policy}

		if lo.entry > 0 {
			plan, err := ladder.BuildPlan(ladder.PlanInput{
				PositionSide: side,
				EntryPrice:   lo.entry,
				Size:         lo.size,
				TickSize:     lo.tick,
				LotSize:      lo.lot,
				MinQty:       lo.minQty,
				ATR:          lo.atr,
				Policy:       policy,
			})
			if err != nil {
				return err
			}
			entry.Plan = &plan
		}
		entries = append(entries, entry)
	}

	path := opts.output
	if strings.TrimSpace(path) == "" {
		path = reporting.DefaultReportPath(time.Now())
	}
	if err := reporting.WriteWorkbook(path, entries, estimates); err != nil {
		return err
	}

	rc.Logger().Info("report written",
		zap.String("path", path),
		zap.Int("symbols", len(symbols)))
	fmt.Fprintf(rc.out, "✓ Report written: %s\n", path)
	return nil
}
