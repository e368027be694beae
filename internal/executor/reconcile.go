package executor

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/internal/ladder"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// AdoptRatio is the share of planned rungs that, once already resting under
// the managed tag, lets an existing ladder be adopted instead of re-placed
const AdoptRatio = 0.8

// CancelOutcome is the guardrail verdict on one foreign order cancel
type CancelOutcome struct {
	OrderLinkID string          `json:"orderLinkId"`
	Decision    safety.Decision `json:"decision"`
}

// ReconcileResult summarizes one reconciliation pass for a symbol
type ReconcileResult struct {
	Managed    int             `json:"managed"`
	NonManaged int             `json:"nonManaged"`
	Adopted    bool            `json:"adopted"`
	Cancels    []CancelOutcome `json:"cancels,omitempty"`
	// SkippedRungs are rung indexes whose price already rests under the managed tag
	SkippedRungs []int         `json:"skippedRungs,omitempty"`
	StopExists   bool          `json:"stopExists"`
	Records      []OrderRecord `json:"records,omitempty"`
}

// ReconcileLadder brings the open protective orders of symbol in line with
// plan. Only reduce-only orders on the exit side count. Foreign ones are
// cancelled through the guardrail when CancelNonManagedOrders is set. With
// AdoptExistingOrders, a managed ladder holding at least AdoptRatio of the
// planned rungs is left alone. Otherwise rungs whose price is already resting
// are skipped and the rest are placed, followed by the stop unless a managed
// stop is already open.
func (e *Executor) ReconcileLadder(ctx context.Context, symbol string, plan ladder.Plan, existing []types.OrderParams) (ReconcileResult, error) {
	cfg := e.guard.Config()

	var (
		res        ReconcileResult
		errs       error
		managedTPs []types.OrderParams
		foreign    []types.OrderParams
	)
	for _, o := range existing {
		if !o.ReduceOnly || o.Side != plan.OrderSide {
			continue
		}
		if !safety.HasManagedTag(o.OrderLinkID, cfg.ManagedTag) {
			foreign = append(foreign, o)
			continue
		}
		if o.TriggerPrice != "" {
			res.StopExists = true
			continue
		}
		managedTPs = append(managedTPs, o)
	}
	res.Managed = len(managedTPs)
	res.NonManaged = len(foreign)

	if cfg.CancelNonManagedOrders {
		for _, o := range foreign {
			d, err := e.Cancel(ctx, symbol, o.OrderLinkID)
			res.Cancels = append(res.Cancels, CancelOutcome{OrderLinkID: o.OrderLinkID, Decision: d})
			errs = multierr.Append(errs, err)
		}
	}

	if cfg.AdoptExistingOrders && len(plan.Rungs) > 0 &&
		float64(res.Managed) >= AdoptRatio*float64(len(plan.Rungs)) {
		res.Adopted = true
		e.logger.Info("existing ladder adopted",
			zap.String("symbol", symbol),
			zap.Int("managed", res.Managed),
			zap.Int("planned", len(plan.Rungs)))
		return res, errs
	}

	for _, rung := range plan.Rungs {
		if err := ctx.Err(); err != nil {
			return res, multierr.Append(errs, err)
		}
		if priceResting(managedTPs, rung.Price) {
			res.SkippedRungs = append(res.SkippedRungs, rung.Index)
			continue
		}
		rec, err := e.placeRung(ctx, symbol, plan, rung)
		res.Records = append(res.Records, rec)
		errs = multierr.Append(errs, err)
	}

	if plan.HasStopLoss && !res.StopExists {
		rec, err := e.placeStop(ctx, symbol, plan)
		res.Records = append(res.Records, rec)
		errs = multierr.Append(errs, err)
	}

	e.logger.Info("ladder reconciled",
		zap.String("symbol", symbol),
		zap.Int("managed", res.Managed),
		zap.Int("non_managed", res.NonManaged),
		zap.Int("cancels", len(res.Cancels)),
		zap.Int("skipped", len(res.SkippedRungs)),
		zap.Int("sent", len(res.Records)))
	return res, errs
}

// priceResting compares numerically so "100.5" matches "100.50"
func priceResting(orders []types.OrderParams, price decimal.Decimal) bool {
	for _, o := range orders {
		p, err := decimal.NewFromString(o.Price)
		if err == nil && p.Equal(price) {
			return true
		}
	}
	return false
}
