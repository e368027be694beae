package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/tpsl-guard/internal/config"
	"github.com/ducminhle1904/tpsl-guard/internal/exchange/bybit"
	"github.com/ducminhle1904/tpsl-guard/internal/executor"
	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
	"github.com/ducminhle1904/tpsl-guard/pkg/reporting"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

var envKeys = []string{
	"TP_ADOPT_EXISTING", "TP_CANCEL_NON_B44", "TP_DRY_RUN", "TP_STARTUP_GRACE_SEC", "TP_MANAGED_TAG",
	"OUTCOME_PATH", "SL_MAE_PCT", "SL_DEFAULT_BPS", "LOG_LEVEL", "LOG_DIR", "PROMETHEUS_PORT",
	"BYBIT_API_KEY", "BYBIT_API_SECRET", "BYBIT_TESTNET", "BYBIT_DEMO", "BYBIT_CATEGORY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

type fakeExchange struct {
	mu       sync.Mutex
	placed   []executor.OrderRequest
	canceled []string
	candles  []types.OHLCV
	open     []types.OrderParams
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req executor.OrderRequest) (executor.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	return executor.OrderAck{OrderID: fmt.Sprintf("ex-%d", len(f.placed)), OrderLinkID: req.Params.OrderLinkID}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderLinkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderLinkID)
	return nil
}

func (f *fakeExchange) GetOpenOrders(ctx context.Context, symbol string) ([]types.OrderParams, error) {
	return f.open, nil
}

func (f *fakeExchange) ClosePosition(ctx context.Context, symbol string, positionSide types.OrderSide, qty string) error {
	return fmt.Errorf("unexpected market close")
}

func (f *fakeExchange) GetInstrument(ctx context.Context, symbol string) (bybit.Instrument, error) {
	return bybit.Instrument{Symbol: symbol, TickSize: 0.1, QtyStep: 0.01, MinOrderQty: 0.01}, nil
}

func (f *fakeExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	return f.candles, nil
}

// flatCandles have a constant true range of 2 around a close of 100
func flatCandles(n int) []types.OHLCV {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.OHLCV, n)
	for i := range out {
		out[i] = types.OHLCV{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1, Timestamp: start.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func run(t *testing.T, rc *RootConfig, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(rc)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--console-log", "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func writeOutcomes(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	var b strings.Builder
	for i := 10; i >= 1; i-- {
		fmt.Fprintf(&b, `{"kind":"outcome","symbol":"btcusdt","outcome":{"mae_bps":%d}}`+"\n", i*10)
	}
	b.WriteString(`{"kind":"signal","symbol":"ETHUSDT"}` + "\n")
	b.WriteString("not json\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestCheck_DryRunDefaults(t *testing.T) {
	clearEnv(t)

	out, err := run(t, &RootConfig{}, "check", "--kind", "place_tp,cancel,market_close", "--reduce-only", "--link-id", "B44-tp1-x", "--elapsed", "5s")
	require.NoError(t, err)

	assert.Contains(t, out, safety.ReasonDryRun)
	assert.Contains(t, out, safety.ReasonStartupGrace)
	assert.Contains(t, out, safety.ReasonManagerForbidden)
	assert.Contains(t, out, "GRACE")
}

func TestCheck_NormalPhaseLive(t *testing.T) {
	clearEnv(t)
	t.Setenv("TP_DRY_RUN", "false")

	out, err := run(t, &RootConfig{}, "check", "--kind", "place_sl,cancel", "--reduce-only", "--link-id", "B44-sl-x", "--elapsed", "1m")
	require.NoError(t, err)

	assert.Contains(t, out, "NORMAL")
	assert.Contains(t, out, "PLACE_SL")
	assert.Contains(t, out, safety.ReasonOK)
	assert.NotContains(t, out, safety.ReasonStartupGrace)
}

func TestCheck_UnknownKind(t *testing.T) {
	clearEnv(t)

	_, err := run(t, &RootConfig{}, "check", "--kind", "amend")
	assert.Error(t, err)
}

func TestLadder_PolicyOnly(t *testing.T) {
	clearEnv(t)

	out, err := run(t, &RootConfig{}, "ladder", "--class", "trend", "--vol-bps", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "LADDER POLICY BTCUSDT")
	assert.NotContains(t, out, "LADDER PLAN")
}

func TestLadder_PlanAndRatchet(t *testing.T) {
	clearEnv(t)

	out, err := run(t, &RootConfig{}, "ladder", "--class", "trend", "--vol-bps", "100",
		"--entry", "100", "--size", "1", "--atr", "2", "--mfe-bps", "50")
	require.NoError(t, err)

	assert.Contains(t, out, "LADDER PLAN BTCUSDT")
	assert.Contains(t, out, "@ 100.00")
	assert.Contains(t, out, "100.48")
	assert.Contains(t, out, "95.00")
	assert.Contains(t, out, "Ratchet threshold")
}

func TestLadder_InvalidSide(t *testing.T) {
	clearEnv(t)

	_, err := run(t, &RootConfig{}, "ladder", "--side", "flat", "--entry", "100", "--size", "1")
	assert.Error(t, err)
}

func TestLadder_LiveAndPlace(t *testing.T) {
	clearEnv(t)
	t.Setenv("TP_DRY_RUN", "false")
	t.Setenv("BYBIT_API_KEY", "key")
	t.Setenv("BYBIT_API_SECRET", "secret")

	ex := &fakeExchange{candles: flatCandles(30)}
	rc := &RootConfig{newClient: func(*config.Config) exchangeClient { return ex }}

	out, err := run(t, rc, "ladder", "--symbol", "btcusdt", "--class", "trend", "--live", "--entry", "100", "--size", "1", "--place")
	require.NoError(t, err)

	assert.Contains(t, out, "95.0")
	assert.Contains(t, out, "ACKED")
	require.Len(t, ex.placed, 6)
	for _, req := range ex.placed {
		assert.True(t, req.Params.ReduceOnly)
		assert.True(t, strings.HasPrefix(req.Params.OrderLinkID, "B44-"), req.Params.OrderLinkID)
	}
	sl := ex.placed[5]
	assert.Equal(t, "95.0", sl.Params.TriggerPrice)
	assert.Equal(t, "1.00", sl.Params.Qty)
}

func TestLadder_PlaceReconcilesOpenOrders(t *testing.T) {
	clearEnv(t)
	t.Setenv("TP_DRY_RUN", "false")
	t.Setenv("TP_STARTUP_GRACE_SEC", "0")
	t.Setenv("TP_CANCEL_NON_B44", "true")
	t.Setenv("BYBIT_API_KEY", "key")
	t.Setenv("BYBIT_API_SECRET", "secret")

	ex := &fakeExchange{
		candles: flatCandles(30),
		open: []types.OrderParams{
			{Symbol: "BTCUSDT", Side: types.OrderSideSell, Price: "100.7", Qty: "0.20", ReduceOnly: true, OrderLinkID: "B44-tp1-old"},
			{Symbol: "BTCUSDT", Side: types.OrderSideSell, Price: "101", Qty: "0.20", ReduceOnly: true, OrderLinkID: "manual-1"},
		},
	}
	rc := &RootConfig{newClient: func(*config.Config) exchangeClient { return ex }}

	out, err := run(t, rc, "ladder", "--live", "--entry", "100", "--size", "1", "--place", "--reconcile")
	require.NoError(t, err)

	assert.Contains(t, out, "1 managed, 1 non-managed")
	assert.Contains(t, out, "cancel manual-1: CANCEL: ok")
	assert.Equal(t, []string{"manual-1"}, ex.canceled)
	require.Len(t, ex.placed, 5)
	assert.Equal(t, "101.4", ex.placed[0].Params.Price)
	assert.Equal(t, "1.00", ex.placed[4].Params.Qty)
}

func TestLadder_PlaceInDryRunRejects(t *testing.T) {
	clearEnv(t)

	ex := &fakeExchange{}
	rc := &RootConfig{newClient: func(*config.Config) exchangeClient { return ex }}

	out, err := run(t, rc, "ladder", "--entry", "100", "--size", "1", "--atr", "2", "--place")
	require.NoError(t, err)
	assert.Contains(t, out, "REJECTED")
	assert.Empty(t, ex.placed)
}

func TestLadder_PlaceWithoutCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("TP_DRY_RUN", "false")

	rc := &RootConfig{newClient: func(*config.Config) exchangeClient { return &fakeExchange{} }}
	_, err := run(t, rc, "ladder", "--entry", "100", "--size", "1", "--place")
	assert.Error(t, err)
}

func TestCalibrate(t *testing.T) {
	clearEnv(t)
	path := writeOutcomes(t)

	out, err := run(t, &RootConfig{}, "calibrate", "--log", path)
	require.NoError(t, err)
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "70.00")
	assert.NotContains(t, out, "ETHUSDT")

	out, err = run(t, &RootConfig{}, "calibrate", "--log", path, "--symbol", "ethusdt")
	require.NoError(t, err)
	assert.Contains(t, out, "ETHUSDT")
	assert.Contains(t, out, "60.00")
	assert.Contains(t, out, "default")
}

func TestCalibrate_UnreadableLogFallsBack(t *testing.T) {
	clearEnv(t)

	out, err := run(t, &RootConfig{}, "calibrate", "--log", t.TempDir(), "--symbol", "BTCUSDT", "--default-bps", "45")
	require.NoError(t, err)
	assert.Contains(t, out, "45.00")
}

func TestConfig_JSONHidesCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("BYBIT_API_KEY", "supersecretkey")

	out, err := run(t, &RootConfig{}, "config", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"managed_tag": "B44"`)
	assert.NotContains(t, out, "supersecretkey")

	out, err = run(t, &RootConfig{}, "config", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "managed_tag: B44")
	assert.NotContains(t, out, "supersecretkey")

	out, err = run(t, &RootConfig{}, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "EFFECTIVE CONFIGURATION")
	assert.NotContains(t, out, "supersecretkey")
}

func TestConfigInit_RoundTrips(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tpsl.yaml")

	_, err := run(t, &RootConfig{}, "config", "init", "--output", path)
	require.NoError(t, err)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Safety, cfg.Safety)
}

func TestConfig_InvalidFileFails(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("safety:\n  managed_tag: \"\"\n"), 0644))

	_, err := run(t, &RootConfig{}, "config", "--config", path)
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	clearEnv(t)
	log := writeOutcomes(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")

	out, err := run(t, &RootConfig{}, "report", "--log", log, "--symbol", "BTCUSDT,ETHUSDT",
		"--entry", "100", "--size", "1", "--atr", "2", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Report written")

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	cal, err := fx.GetRows(reporting.CalibrationSheet)
	require.NoError(t, err)
	require.Len(t, cal, 3)
	assert.Equal(t, "BTCUSDT", cal[1][0])
	assert.Equal(t, "ETHUSDT", cal[2][0])
}

func TestReport_NoSymbols(t *testing.T) {
	clearEnv(t)

	_, err := run(t, &RootConfig{}, "report", "--log", filepath.Join(t.TempDir(), "none.jsonl"))
	assert.Error(t, err)
}

func TestServeMux(t *testing.T) {
	guard := safety.NewGuardRail(safety.DefaultSafetyConfig())
	srv := httptest.NewServer(newServeMux(monitoring.NewHealthChecker(guard, true)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"starting"`)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshOnce(t *testing.T) {
	clearEnv(t)
	rc := &RootConfig{cfg: config.Default()}

	require.NoError(t, refreshOnce(rc, &calibrateOptions{path: writeOutcomes(t), symbols: []string{"BTCUSDT"}}))
	assert.Error(t, refreshOnce(rc, &calibrateOptions{path: t.TempDir(), symbols: []string{"BTCUSDT"}}))
}

func TestVersion(t *testing.T) {
	out, err := run(t, &RootConfig{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tpsl-guard v"+ProjectVersion)
}

func TestDecimalsOf(t *testing.T) {
	assert.Equal(t, 2, decimalsOf(0.01))
	assert.Equal(t, 1, decimalsOf(0.5))
	assert.Equal(t, 0, decimalsOf(1))
}

func TestLadder_CandlesFile(t *testing.T) {
	clearEnv(t)

	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	for _, c := range flatCandles(20) {
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g,%g\n", c.Timestamp.Format("2006-01-02 15:04:05"), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))

	out, err := run(t, &RootConfig{}, "ladder", "--candles-file", path, "--size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "@ 100.00")
	assert.Contains(t, out, "95.00")

	_, err = run(t, &RootConfig{}, "ladder", "--candles-file", path, "--csv-format", "parquet", "--size", "1")
	assert.Error(t, err)
}

func TestCandles_FeedsLadder(t *testing.T) {
	clearEnv(t)
	ex := &fakeExchange{candles: flatCandles(30)}
	rc := &RootConfig{newClient: func(*config.Config) exchangeClient { return ex }}
	path := filepath.Join(t.TempDir(), "btc.csv")

	out, err := run(t, rc, "candles", "--symbol", "btcusdt", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 30 klines")

	out, err = run(t, &RootConfig{}, "ladder", "--candles-file", path, "--size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "95.00")
}

func TestCandles_Empty(t *testing.T) {
	clearEnv(t)
	rc := &RootConfig{newClient: func(*config.Config) exchangeClient { return &fakeExchange{} }}

	_, err := run(t, rc, "candles", "--output", filepath.Join(t.TempDir(), "x.csv"))
	assert.Error(t, err)
}
