package ladder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

func trendInput(side types.OrderSide) PlanInput {
	return PlanInput{
		PositionSide: side,
		EntryPrice:   100,
		Size:         1,
		TickSize:     0.01,
		LotSize:      0.001,
		MinQty:       0.001,
		ATR:          2,
		Policy:       Compute(TradeClassTrend, 100, 1),
	}
}

func rungPrices(p Plan) []string {
	out := make([]string, len(p.Rungs))
	for i, r := range p.Rungs {
		out[i] = p.FormatPrice(r.Price)
	}
	return out
}

func TestBuildPlan_Long(t *testing.T) {
	plan, err := BuildPlan(trendInput(types.OrderSideBuy))
	require.NoError(t, err)

	assert.Equal(t, types.OrderSideSell, plan.OrderSide)
	assert.Equal(t, []string{"100.48", "100.96", "101.44", "104.48", "105.60"}, rungPrices(plan))
	for _, r := range plan.Rungs {
		assert.Equal(t, "0.200", plan.FormatQty(r.Qty))
	}

	require.True(t, plan.HasStopLoss)
	assert.Equal(t, "95.00", plan.FormatPrice(plan.StopLoss))
	assert.Equal(t, "102.592", plan.AvgTPPrice.String())
	assert.InDelta(t, 0.5184, plan.RewardRisk, 1e-9)
}

func TestBuildPlan_Short(t *testing.T) {
	plan, err := BuildPlan(trendInput(types.OrderSideSell))
	require.NoError(t, err)

	assert.Equal(t, types.OrderSideBuy, plan.OrderSide)
	assert.Equal(t, []string{"99.52", "99.04", "98.56", "95.52", "94.40"}, rungPrices(plan))
	assert.Equal(t, "105.00", plan.FormatPrice(plan.StopLoss))
	assert.InDelta(t, 0.5184, plan.RewardRisk, 1e-9)
}

func TestBuildPlan_QuantizesAwayFromOvershoot(t *testing.T) {
	in := trendInput(types.OrderSideBuy)
	in.EntryPrice = 100.003
	in.Policy = Policy{TPOffsetsBps: []float64{10}, SL: StopLoss{Mode: StopModeATR, Multiplier: 1}}

	plan, err := BuildPlan(in)
	require.NoError(t, err)
	// 100.003 * 1.001 = 100.103003, floored to the tick for a long exit
	assert.Equal(t, "100.10", plan.FormatPrice(plan.Rungs[0].Price))

	in.PositionSide = types.OrderSideSell
	plan, err = BuildPlan(in)
	require.NoError(t, err)
	// 100.003 * 0.999 = 99.902997, ceiled for a short exit
	assert.Equal(t, "99.91", plan.FormatPrice(plan.Rungs[0].Price))
}

func TestBuildPlan_ShrinksRungsForSmallSize(t *testing.T) {
	in := trendInput(types.OrderSideBuy)
	in.Size = 0.003

	plan, err := BuildPlan(in)
	require.NoError(t, err)
	require.Len(t, plan.Rungs, 3)
	for _, r := range plan.Rungs {
		assert.Equal(t, "0.001", plan.FormatQty(r.Qty))
	}
}

func TestBuildPlan_NoStopWithoutATR(t *testing.T) {
	in := trendInput(types.OrderSideBuy)
	in.ATR = 0

	plan, err := BuildPlan(in)
	require.NoError(t, err)
	assert.False(t, plan.HasStopLoss)
	assert.Equal(t, 0.0, plan.RewardRisk)
}

func TestBuildPlan_StopCoversRoundedRemainder(t *testing.T) {
	in := trendInput(types.OrderSideBuy)
	in.LotSize = 0.3
	in.MinQty = 0.3

	plan, err := BuildPlan(in)
	require.NoError(t, err)
	require.Len(t, plan.Rungs, 3)
	for _, r := range plan.Rungs {
		assert.Equal(t, "0.3", plan.FormatQty(r.Qty))
	}
	assert.Equal(t, "1.0", plan.StopLossQty())
}

func TestBuildPlan_StopQtyKeepsSizePrecision(t *testing.T) {
	in := trendInput(types.OrderSideBuy)
	in.Size = 1.0005
	in.LotSize = 0.01
	in.MinQty = 0.01

	plan, err := BuildPlan(in)
	require.NoError(t, err)
	assert.Equal(t, "1.0005", plan.StopLossQty())
}

func TestBuildPlan_WideStopClampsToOneTick(t *testing.T) {
	in := trendInput(types.OrderSideBuy)
	in.EntryPrice = 10
	in.ATR = 5

	plan, err := BuildPlan(in)
	require.NoError(t, err)
	require.True(t, plan.HasStopLoss)
	assert.Equal(t, "0.01", plan.FormatPrice(plan.StopLoss))
	assert.Positive(t, plan.RewardRisk)
}

func TestBuildPlan_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PlanInput)
	}{
		{"bad side", func(in *PlanInput) { in.PositionSide = "Hold" }},
		{"zero entry", func(in *PlanInput) { in.EntryPrice = 0 }},
		{"zero size", func(in *PlanInput) { in.Size = 0 }},
		{"zero tick", func(in *PlanInput) { in.TickSize = 0 }},
		{"below min qty", func(in *PlanInput) { in.Size = 0.0005 }},
		{"empty policy", func(in *PlanInput) { in.Policy = Policy{} }},
		{"NaN entry", func(in *PlanInput) { in.EntryPrice = math.NaN() }},
		{"infinite size", func(in *PlanInput) { in.Size = math.Inf(1) }},
		{"NaN tick", func(in *PlanInput) { in.TickSize = math.NaN() }},
		{"infinite lot", func(in *PlanInput) { in.LotSize = math.Inf(1) }},
		{"NaN min qty", func(in *PlanInput) { in.MinQty = math.NaN() }},
		{"infinite ATR", func(in *PlanInput) { in.ATR = math.Inf(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := trendInput(types.OrderSideBuy)
			tt.mutate(&in)
			_, err := BuildPlan(in)
			require.Error(t, err)
			assert.Equal(t, riskerrors.ErrorCategoryValidation, riskerrors.CategoryOf(err))
		})
	}
}

func TestPlan_PricesFeedRatchet(t *testing.T) {
	plan, err := BuildPlan(trendInput(types.OrderSideBuy))
	require.NoError(t, err)

	prices := plan.Prices()
	assert.Equal(t, prices, RatchetRemaining(prices, 5))
	stretched := RatchetRemaining(prices, 30)
	assert.InDelta(t, 100.48*1.1, stretched[0], 1e-9)
}
