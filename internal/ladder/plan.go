package ladder

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

var bpsDivisor = decimal.NewFromInt(10000)

// PlanInput is what is needed to turn a policy into concrete order prices
type PlanInput struct {
	// PositionSide is the side of the open position; TP orders go the other way
	PositionSide types.OrderSide
	EntryPrice   float64
	Size         float64
	TickSize     float64
	LotSize      float64
	MinQty       float64
	// ATR in price units; zero or less leaves the plan without a stop
	ATR    float64
	Policy Policy
}

// Rung is one take-profit order of a plan
type Rung struct {
	Index     int
	OffsetBps float64
	Price     decimal.Decimal
	Qty       decimal.Decimal
}

// Plan is a materialized ladder ready to be sent through the executor
type Plan struct {
	PositionSide types.OrderSide
	OrderSide    types.OrderSide
	EntryPrice   decimal.Decimal
	// Size is the whole position; the stop covers all of it, including any
	// remainder the lot-rounded rungs leave over
	Size        decimal.Decimal
	Rungs       []Rung
	StopLoss    decimal.Decimal
	HasStopLoss bool
	AvgTPPrice  decimal.Decimal
	// RewardRisk is (avg TP distance) / (SL distance); zero without a stop
	RewardRisk float64

	pricePlaces int32
	qtyPlaces   int32
}

// FormatPrice renders a price with the tick size precision
func (p Plan) FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(p.pricePlaces)
}

// FormatQty renders a quantity with the lot size precision
func (p Plan) FormatQty(d decimal.Decimal) string {
	return d.StringFixed(p.qtyPlaces)
}

// StopLossQty renders the stop quantity: the full position size, never rounded
// below what is held
func (p Plan) StopLossQty() string {
	if exp := p.Size.Exponent(); exp < 0 && -exp > p.qtyPlaces {
		return p.Size.String()
	}
	return p.FormatQty(p.Size)
}

// BuildPlan converts the policy offsets into tick-aligned TP prices, splits
// the position evenly across rungs (dropping far rungs when the per-rung qty
// would fall under the exchange minimum) and derives the ATR stop.
func BuildPlan(in PlanInput) (Plan, error) {
	if err := validatePlanInput(in); err != nil {
		return Plan{}, err
	}

	entry := decimal.NewFromFloat(in.EntryPrice)
	tick := decimal.NewFromFloat(in.TickSize)
	lot := decimal.NewFromFloat(in.LotSize)
	size := decimal.NewFromFloat(in.Size)
	minQty := decimal.Max(decimal.NewFromFloat(in.MinQty), lot)

	long := in.PositionSide == types.OrderSideBuy

	rungs := len(in.Policy.TPOffsetsBps)
	qtyPer := quantize(size.Div(decimal.NewFromInt(int64(rungs))), lot, false)
	if qtyPer.LessThan(minQty) {
		maxRungs := int(size.Div(minQty).Floor().IntPart())
		if maxRungs < 1 {
			return Plan{}, riskerrors.NewValidationError("ladder", "BuildPlan",
				fmt.Sprintf("size %s is below the minimum order qty %s", size, minQty))
		}
		if maxRungs < rungs {
			rungs = maxRungs
		}
		qtyPer = quantize(size.Div(decimal.NewFromInt(int64(rungs))), lot, false)
	}

	plan := Plan{
		PositionSide: in.PositionSide,
		OrderSide:    in.PositionSide.Opposite(),
		EntryPrice:   entry,
		Size:         size,
		Rungs:        make([]Rung, 0, rungs),
		pricePlaces:  places(tick),
		qtyPlaces:    places(lot),
	}

	sum := decimal.Zero
	for i := 0; i < rungs; i++ {
		offset := in.Policy.TPOffsetsBps[i]
		// offsets come from float math; trim representation noise before snapping to tick
		move := entry.Mul(decimal.NewFromFloat(offset).Round(6)).Div(bpsDivisor)

		var price decimal.Decimal
		if long {
			price = quantize(entry.Add(move), tick, false)
		} else {
			price = quantize(entry.Sub(move), tick, true)
		}

		plan.Rungs = append(plan.Rungs, Rung{
			Index:     i + 1,
			OffsetBps: offset,
			Price:     price,
			Qty:       qtyPer,
		})
		sum = sum.Add(price)
	}
	plan.AvgTPPrice = sum.Div(decimal.NewFromInt(int64(rungs)))

	if in.ATR > 0 && in.Policy.SL.Multiplier > 0 {
		dist := decimal.NewFromFloat(in.ATR).Mul(decimal.NewFromFloat(in.Policy.SL.Multiplier))
		if long {
			plan.StopLoss = quantize(entry.Sub(dist), tick, false)
			// a stop wider than the entry price still protects, one tick above zero
			if !plan.StopLoss.IsPositive() {
				plan.StopLoss = tick
			}
		} else {
			plan.StopLoss = quantize(entry.Add(dist), tick, true)
		}
		plan.HasStopLoss = true
	}
	plan.RewardRisk = rewardRisk(plan)

	return plan, nil
}

// Prices returns the rung prices as floats, the form RatchetRemaining works on
func (p Plan) Prices() []float64 {
	out := make([]float64, len(p.Rungs))
	for i, r := range p.Rungs {
		out[i] = r.Price.InexactFloat64()
	}
	return out
}

func validatePlanInput(in PlanInput) error {
	for name, v := range map[string]float64{
		"entry price": in.EntryPrice,
		"size":        in.Size,
		"tick size":   in.TickSize,
		"lot size":    in.LotSize,
		"min qty":     in.MinQty,
		"ATR":         in.ATR,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return riskerrors.NewValidationError("ladder", "BuildPlan", fmt.Sprintf("%s must be finite, got %v", name, v))
		}
	}

	switch {
	case in.PositionSide != types.OrderSideBuy && in.PositionSide != types.OrderSideSell:
		return riskerrors.NewValidationError("ladder", "BuildPlan", fmt.Sprintf("invalid position side %q", in.PositionSide))
	case in.EntryPrice <= 0:
		return riskerrors.NewValidationError("ladder", "BuildPlan", "entry price must be positive")
	case in.Size <= 0:
		return riskerrors.NewValidationError("ladder", "BuildPlan", "size must be positive")
	case in.TickSize <= 0 || in.LotSize <= 0:
		return riskerrors.NewValidationError("ladder", "BuildPlan", "tick size and lot size must be positive")
	case len(in.Policy.TPOffsetsBps) == 0:
		return riskerrors.NewValidationError("ladder", "BuildPlan", "policy has no take-profit offsets")
	}
	return nil
}

func rewardRisk(p Plan) float64 {
	if !p.HasStopLoss {
		return 0
	}
	risk := p.EntryPrice.Sub(p.StopLoss).Abs()
	if !risk.IsPositive() {
		return 0
	}
	reward := p.AvgTPPrice.Sub(p.EntryPrice)
	if p.PositionSide == types.OrderSideSell {
		reward = reward.Neg()
	}
	if reward.IsNegative() {
		reward = decimal.Zero
	}
	return reward.Div(risk).InexactFloat64()
}

// quantize snaps v to a multiple of step, rounding up or down
func quantize(v, step decimal.Decimal, up bool) decimal.Decimal {
	n := v.Div(step)
	if up {
		n = n.Ceil()
	} else {
		n = n.Floor()
	}
	return n.Mul(step)
}

func places(step decimal.Decimal) int32 {
	if exp := step.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}
