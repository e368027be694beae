package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/pkg/data"
)

type candlesOptions struct {
	symbol   string
	interval string
	limit    int
	output   string
	timeout  time.Duration
}

func newCandlesCmd(rc *RootConfig) *cobra.Command {
	opts := &candlesOptions{}

	cmd := &cobra.Command{
		Use:   "candles",
		Short: "Download recent klines to a CSV file",
		Long: `Download the most recent klines for a symbol from Bybit and save them in the
layout accepted by "ladder --candles-file".

Example:
  tpslctl candles --symbol BTCUSDT --interval 5 --limit 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCandles(cmd.Context(), rc, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.symbol, "symbol", "s", "BTCUSDT", "trading symbol")
	f.StringVar(&opts.interval, "interval", "5", "kline interval (1, 5, 15, 60, 240, D, ...)")
	f.IntVar(&opts.limit, "limit", 200, "number of klines (max 1000)")
	f.StringVarP(&opts.output, "output", "o", "", "output path (default data/bybit/<symbol>_<interval>.csv)")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

func runCandles(ctx context.Context, rc *RootConfig, opts *candlesOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	symbol := strings.ToUpper(opts.symbol)
	candles, err := rc.exchange().GetCandles(ctx, symbol, opts.interval, opts.limit)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("no klines returned for %s", symbol)
	}

	path := opts.output
	if path == "" {
		path = filepath.Join("data", "bybit", fmt.Sprintf("%s_%s.csv", symbol, strings.ToLower(opts.interval)))
	}
	if err := data.WriteCSV(path, candles); err != nil {
		return err
	}

	first, last := candles[0].Timestamp, candles[len(candles)-1].Timestamp
	rc.Logger().Info("klines saved",
		zap.String("symbol", symbol),
		zap.String("path", path),
		zap.Int("count", len(candles)),
		zap.Time("from", first),
		zap.Time("to", last))
	fmt.Fprintf(rc.out, "✓ Saved %d klines %s to %s: %s\n", len(candles),
		first.UTC().Format("2006-01-02 15:04"), last.UTC().Format("2006-01-02 15:04"), path)
	return nil
}
