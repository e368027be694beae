package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/internal/executor"
	"github.com/ducminhle1904/tpsl-guard/internal/ladder"
	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
	"github.com/ducminhle1904/tpsl-guard/internal/volatility"
	"github.com/ducminhle1904/tpsl-guard/pkg/data"
	"github.com/ducminhle1904/tpsl-guard/pkg/reporting"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

type ladderOptions struct {
	symbol    string
	class     string
	volBps    float64
	signal    float64
	side      string
	entry     float64
	size      float64
	tick      float64
	lot       float64
	minQty    float64
	atr       float64
	mfeBps    float64
	live      bool
	file      string
	format    string
	interval  string
	candles   int
	period    int
	place     bool
	reconcile bool
	timeout   time.Duration
}

func newLadderCmd(rc *RootConfig) *cobra.Command {
	opts := &ladderOptions{}

	cmd := &cobra.Command{
		Use:   "ladder",
		Short: "Compute a take-profit ladder and stop-loss",
		Long: `Compute the ladder policy for a trade class and volatility. With --entry
and --size the policy is materialized into tick-aligned order prices.

With --live the volatility, ATR, tick and lot sizes are fetched from Bybit.
With --place the plan is sent through the guardrail to the exchange; dry-run
configurations reject every order. Adding --reconcile first reads the open
orders: foreign reduce-only orders are cancelled when TP_CANCEL_NON_B44 is set,
a mostly complete managed ladder is adopted when TP_ADOPT_EXISTING is set, and
only missing rungs are placed.

Examples:
  tpslctl ladder --class trend --vol-bps 100
  tpslctl ladder --class breakout --vol-bps 80 --entry 100 --size 1 --atr 2
  tpslctl ladder --symbol BTCUSDT --class trend --live --entry 65000 --size 0.01
  tpslctl ladder --class trend --candles-file data/btc_5m.csv --size 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLadder(cmd.Context(), rc, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.symbol, "symbol", "s", "BTCUSDT", "trading symbol")
	f.StringVar(&opts.class, "class", "trend", "strategy label (trend, breakout, ...)")
	f.Float64Var(&opts.volBps, "vol-bps", 0, "volatility in basis points")
	f.Float64Var(&opts.signal, "signal", 0, "signal strength")
	f.StringVar(&opts.side, "side", "buy", "position side (buy or sell)")
	f.Float64Var(&opts.entry, "entry", 0, "entry price; zero prints the policy only")
	f.Float64Var(&opts.size, "size", 0, "position size")
	f.Float64Var(&opts.tick, "tick", 0.01, "price tick size")
	f.Float64Var(&opts.lot, "lot", 0.001, "quantity step")
	f.Float64Var(&opts.minQty, "min-qty", 0, "minimum order quantity")
	f.Float64Var(&opts.atr, "atr", 0, "ATR in price units; zero leaves the plan without a stop")
	f.Float64Var(&opts.mfeBps, "mfe-bps", 0, "current max favorable excursion; shows the ratcheted rungs")
	f.BoolVar(&opts.live, "live", false, "fetch instrument filters and ATR from the exchange")
	f.StringVar(&opts.file, "candles-file", "", "OHLCV CSV used for ATR instead of the exchange")
	f.StringVar(&opts.format, "csv-format", "default", "candles file layout: default or bybit (unix ms)")
	f.StringVar(&opts.interval, "interval", "5", "kline interval for --live")
	f.IntVar(&opts.candles, "candles", 200, "most recent candles used for ATR")
	f.IntVar(&opts.period, "period", volatility.DefaultATRPeriod, "ATR period")
	f.BoolVar(&opts.place, "place", false, "place the plan on the exchange")
	f.BoolVar(&opts.reconcile, "reconcile", false, "with --place, reconcile against open orders first")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "exchange request timeout")
	return cmd
}

func parseSide(s string) (types.OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return types.OrderSideBuy, nil
	case "sell", "short":
		return types.OrderSideSell, nil
	}
	return "", fmt.Errorf("invalid side %q (use buy or sell)", s)
}

func runLadder(ctx context.Context, rc *RootConfig, opts *ladderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	log := rc.Logger()
	symbol := strings.ToUpper(opts.symbol)
	side, err := parseSide(opts.side)
	if err != nil {
		return err
	}

	var client exchangeClient
	if opts.live || opts.place {
		client = rc.exchange()
	}
	if opts.live {
		if err := applyLiveMarket(ctx, client, symbol, opts); err != nil {
			return err
		}
		log.Info("live market data loaded",
			zap.String("symbol", symbol),
			zap.Float64("atr", opts.atr),
			zap.Float64("vol_bps", opts.volBps),
			zap.Float64("tick", opts.tick),
			zap.Float64("lot", opts.lot))
	} else if opts.file != "" {
		if err := applyCandleFile(log, opts); err != nil {
			return err
		}
	}

	policy := ladder.ComputeForLabel(opts.class, opts.volBps, opts.signal)
	monitoring.RecordLadder(policy.Class.String())
	reporting.WritePolicy(rc.out, symbol, policy)

	if opts.entry <= 0 {
		return nil
	}

	plan, err := ladder.BuildPlan(ladder.PlanInput{
		PositionSide: side,
		EntryPrice:   opts.entry,
		Size:         opts.size,
		TickSize:     opts.tick,
		LotSize:      opts.lot,
		MinQty:       opts.minQty,
		ATR:          opts.atr,
		Policy:       policy,
	})
	if err != nil {
		return err
	}
	reporting.WritePlan(rc.out, symbol, plan)

	if opts.mfeBps > 0 {
		prices := plan.Prices()
		ratcheted := ladder.RatchetRemaining(prices, opts.mfeBps)
		fmt.Fprintf(rc.out, "Ratchet threshold %.2f bps, MFE %.2f bps\n", ladder.RatchetThreshold(prices), opts.mfeBps)
		for i := range ratcheted {
			fmt.Fprintf(rc.out, "  TP%d %s -> %.*f\n", i+1, plan.FormatPrice(plan.Rungs[i].Price), decimalsOf(opts.tick), ratcheted[i])
		}
	}

	if !opts.place {
		return nil
	}
	return placePlan(ctx, rc, client, symbol, plan, opts.reconcile)
}

func applyLiveMarket(ctx context.Context, client exchangeClient, symbol string, opts *ladderOptions) error {
	inst, err := client.GetInstrument(ctx, symbol)
	if err != nil {
		return err
	}
	opts.tick = inst.TickSize
	opts.lot = inst.QtyStep
	opts.minQty = inst.MinOrderQty

	candles, err := client.GetCandles(ctx, symbol, opts.interval, opts.candles)
	if err != nil {
		return err
	}
	return applyCandles(candles, opts)
}

func applyCandleFile(log *zap.Logger, opts *ladderOptions) error {
	format := data.DefaultCSVFormat
	switch strings.ToLower(opts.format) {
	case "", "default":
	case "bybit":
		format = data.BybitKlineFormat
	default:
		return fmt.Errorf("unknown csv format %q (use default or bybit)", opts.format)
	}

	candles, err := data.NewCSVProviderWithFormat(format, log).LoadData(opts.file)
	if err != nil {
		return err
	}
	if err := data.ValidateData(candles); err != nil {
		return fmt.Errorf("%s: %w", opts.file, err)
	}
	return applyCandles(data.Tail(candles, opts.candles), opts)
}

// applyCandles derives ATR and, when not given, volatility and entry price
// from chronological candles
func applyCandles(candles []types.OHLCV, opts *ladderOptions) error {
	atr, bps, err := volatility.ATRBps(candles, opts.period)
	if err != nil {
		return err
	}
	opts.atr = atr
	if opts.volBps <= 0 {
		opts.volBps = bps
	}
	if opts.entry <= 0 && len(candles) > 0 && opts.size > 0 {
		opts.entry = candles[len(candles)-1].Close
	}
	return nil
}

func placePlan(ctx context.Context, rc *RootConfig, client exchangeClient, symbol string, plan ladder.Plan, reconcile bool) error {
	cfg := rc.Config()
	if !cfg.Safety.DryRun && !cfg.HasCredentials() {
		return fmt.Errorf("placing orders requires BYBIT_API_KEY and BYBIT_API_SECRET")
	}

	guard := safety.NewGuardRail(cfg.SafetyConfig())
	exec := executor.New(guard, client,
		executor.WithLogger(rc.Logger()),
		executor.WithRateLimiter(executor.NewRateLimiter(10, 10)),
		executor.WithCircuitBreaker(executor.NewCircuitBreaker(executor.CircuitBreakerConfig{})),
	)

	if !reconcile {
		records, err := exec.PlaceLadder(ctx, symbol, plan)
		reporting.WriteOrders(rc.out, records)
		return err
	}

	open, err := client.GetOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	res, err := exec.ReconcileLadder(ctx, symbol, plan, open)
	fmt.Fprintf(rc.out, "Open orders: %d managed, %d non-managed; cancels %d, skipped rungs %v, adopted %t\n",
		res.Managed, res.NonManaged, len(res.Cancels), res.SkippedRungs, res.Adopted)
	for _, c := range res.Cancels {
		fmt.Fprintf(rc.out, "  cancel %s: %s\n", c.OrderLinkID, c.Decision)
	}
	if len(res.Records) > 0 {
		reporting.WriteOrders(rc.out, res.Records)
	}
	return err
}

// decimalsOf returns the number of decimals a tick size carries
func decimalsOf(tick float64) int {
	s := strings.TrimRight(fmt.Sprintf("%.10f", tick), "0")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}
