package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/tpsl-guard/internal/calibration"
	"github.com/ducminhle1904/tpsl-guard/internal/config"
	"github.com/ducminhle1904/tpsl-guard/internal/executor"
	"github.com/ducminhle1904/tpsl-guard/internal/ladder"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
)

// DecisionRow is one guardrail evaluation shown by WriteDecisions
type DecisionRow struct {
	Kind        safety.MutationKind
	ReduceOnly  bool
	OrderLinkID string
	Phase       safety.Phase
	Decision    safety.Decision
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// WritePolicy prints the computed ladder policy for symbol
func WritePolicy(w io.Writer, symbol string, p ladder.Policy) {
	t := newTable(w, fmt.Sprintf("LADDER POLICY %s", strings.ToUpper(symbol)))

	offsets := make([]string, len(p.TPOffsetsBps))
	for i, o := range p.TPOffsetsBps {
		offsets[i] = fmt.Sprintf("%.2f", o)
	}

	t.AppendRows([]table.Row{
		{"Class", p.Class.String()},
		{"Shape", p.Shape},
		{"Base (bps)", fmt.Sprintf("%.2f", p.BaseBps)},
		{"TP offsets (bps)", strings.Join(offsets, ", ")},
		{"Stop loss", fmt.Sprintf("%s x%.2f", p.SL.Mode, p.SL.Multiplier)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()
}

// WritePlan prints the rung prices and quantities of a materialized plan
func WritePlan(w io.Writer, symbol string, plan ladder.Plan) {
	t := newTable(w, fmt.Sprintf("LADDER PLAN %s %s @ %s",
		strings.ToUpper(symbol), plan.PositionSide, plan.FormatPrice(plan.EntryPrice)))

	t.AppendHeader(table.Row{"Rung", "Side", "Offset (bps)", "Price", "Qty"})
	for _, r := range plan.Rungs {
		t.AppendRow(table.Row{
			fmt.Sprintf("TP%d", r.Index),
			string(plan.OrderSide),
			fmt.Sprintf("%.2f", r.OffsetBps),
			plan.FormatPrice(r.Price),
			plan.FormatQty(r.Qty),
		})
	}

	t.AppendSeparator()
	stop, stopQty := "none", ""
	if plan.HasStopLoss {
		stop = plan.FormatPrice(plan.StopLoss)
		stopQty = plan.StopLossQty()
	}
	t.AppendRows([]table.Row{
		{"SL", string(plan.OrderSide), "", stop, stopQty},
		{"Avg TP", "", "", plan.FormatPrice(plan.AvgTPPrice), ""},
		{"R:R", "", "", fmt.Sprintf("%.2f", plan.RewardRisk), ""},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 8, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
}

// WriteDecisions prints guardrail decisions, one row per evaluated mutation
func WriteDecisions(w io.Writer, rows []DecisionRow) {
	t := newTable(w, "GUARDRAIL DECISIONS")
	t.AppendHeader(table.Row{"Kind", "Reduce-only", "Order link id", "Phase", "Allowed", "Reason"})
	for _, r := range rows {
		linkID := r.OrderLinkID
		if linkID == "" {
			linkID = "-"
		}
		t.AppendRow(table.Row{
			r.Kind.String(),
			r.ReduceOnly,
			linkID,
			r.Phase.String(),
			r.Decision.Allowed,
			r.Decision.Reason,
		})
	}
	t.Render()
}

// WriteOrders prints executor order records
func WriteOrders(w io.Writer, records []executor.OrderRecord) {
	t := newTable(w, "ORDERS")
	t.AppendHeader(table.Row{"Order link id", "Kind", "Side", "Qty", "Price", "Trigger", "State", "Detail"})
	for _, r := range records {
		detail := r.Decision.Reason
		if r.Error != "" {
			detail = r.Error
		}
		t.AppendRow(table.Row{
			r.OrderLinkID,
			r.Kind.String(),
			string(r.Params.Side),
			r.Params.Qty,
			r.Params.Price,
			r.Params.TriggerPrice,
			string(r.State),
			detail,
		})
	}
	t.Render()
}

// WriteEstimates prints calibration results per symbol
func WriteEstimates(w io.Writer, estimates []calibration.Estimate) {
	t := newTable(w, "STOP-LOSS CALIBRATION")
	t.AppendHeader(table.Row{"Symbol", "Samples", "Skipped", "Percentile", "Estimate (bps)", "Source"})
	for _, e := range estimates {
		source := "history"
		if e.UsedDefault {
			source = "default"
		}
		t.AppendRow(table.Row{
			e.Symbol,
			e.Samples,
			e.Skipped,
			fmt.Sprintf("%.2f", e.Percentile),
			fmt.Sprintf("%.2f", e.Bps),
			source,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
}

// WriteConfig prints the effective configuration. Credentials are masked.
func WriteConfig(w io.Writer, cfg *config.Config) {
	t := newTable(w, "EFFECTIVE CONFIGURATION")

	t.AppendRows([]table.Row{
		{"Managed tag", cfg.Safety.ManagedTag},
		{"Grace period", cfg.Safety.GracePeriod().String()},
		{"Dry run", cfg.Safety.DryRun},
		{"Adopt existing", cfg.Safety.AdoptExistingOrders},
		{"Cancel foreign", cfg.Safety.CancelNonManagedOrders},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Outcome log", cfg.Calibration.OutcomePath},
		{"Percentile", fmt.Sprintf("%.2f", cfg.Calibration.Percentile)},
		{"Default SL (bps)", fmt.Sprintf("%.2f", cfg.Calibration.DefaultBps)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Environment", environment(cfg.Exchange)},
		{"Category", cfg.Exchange.Category},
		{"API key", mask(cfg.Exchange.APIKey)},
		{"Log level", cfg.Logging.Level},
		{"Log dir", cfg.Logging.Dir},
		{"Prometheus port", cfg.Monitoring.PrometheusPort},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 50, Align: text.AlignLeft},
	})
	t.Render()
}

func environment(ex config.ExchangeConfig) string {
	switch {
	case ex.Demo:
		return "demo"
	case ex.Testnet:
		return "testnet"
	default:
		return "mainnet"
	}
}

// mask keeps the last four characters of a secret
func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
