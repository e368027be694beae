package ladder

import (
	"math"
	"strings"
)

const (
	// RungCount is the number of take-profit rungs in every ladder
	RungCount = 5

	MinBaseBps = 8.0
	MaxBaseBps = 120.0

	// volatility-to-spacing ratio
	baseSpacingRatio = 0.8
)

// TradeClass is the strategic classification of the trade being protected
type TradeClass int

const (
	TradeClassOther TradeClass = iota
	TradeClassTrend
	TradeClassBreakout
)

// String returns the string representation of the trade class
func (c TradeClass) String() string {
	switch c {
	case TradeClassTrend:
		return "trend"
	case TradeClassBreakout:
		return "breakout"
	default:
		return "other"
	}
}

// ParseTradeClass maps a strategy label to a trade class. Unrecognized
// labels map to TradeClassOther.
func ParseTradeClass(label string) TradeClass {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "trend", "trendpullback", "trend_pullback":
		return TradeClassTrend
	case "breakout", "breakout_impulse":
		return TradeClassBreakout
	default:
		return TradeClassOther
	}
}

// StopLoss describes how the stop distance scales with volatility
type StopLoss struct {
	Mode       string  `json:"mode"`
	Multiplier float64 `json:"multiplier"`
}

const StopModeATR = "ATR"

// Policy is a computed take-profit ladder plus stop-loss rule
type Policy struct {
	Class        TradeClass `json:"class"`
	Shape        string     `json:"shape"`
	BaseBps      float64    `json:"base_bps"`
	TPOffsetsBps []float64  `json:"tp_offsets_bps"`
	SL           StopLoss   `json:"sl"`
}

type classProfile struct {
	shape     Shape
	baseScale float64
	slMult    float64
}

func profileFor(class TradeClass) classProfile {
	switch class {
	case TradeClassTrend:
		return classProfile{shape: BackloadShape(), baseScale: 1.0, slMult: 2.5}
	case TradeClassBreakout:
		return classProfile{shape: FrontloadShape(), baseScale: 0.9, slMult: 2.0}
	default:
		return classProfile{shape: LinearShape{}, baseScale: 0.7, slMult: 1.8}
	}
}

// BaseBps converts a volatility reading in bps to base rung spacing,
// clamped to [MinBaseBps, MaxBaseBps]. NaN readings fall to the floor.
func BaseBps(volatilityBps float64) float64 {
	if math.IsNaN(volatilityBps) {
		return MinBaseBps
	}
	return math.Max(MinBaseBps, math.Min(volatilityBps*baseSpacingRatio, MaxBaseBps))
}

// Compute returns the ladder policy for a trade. signalStrength is accepted
// for interface stability and does not change the result.
func Compute(class TradeClass, volatilityBps, signalStrength float64) Policy {
	profile := profileFor(class)
	base := BaseBps(volatilityBps)

	return Policy{
		Class:        class,
		Shape:        profile.shape.GetName(),
		BaseBps:      base,
		TPOffsetsBps: profile.shape.Offsets(base*profile.baseScale, RungCount),
		SL: StopLoss{
			Mode:       StopModeATR,
			Multiplier: profile.slMult,
		},
	}
}

// ComputeForLabel is Compute with the class parsed from a strategy label
func ComputeForLabel(label string, volatilityBps, signalStrength float64) Policy {
	return Compute(ParseTradeClass(label), volatilityBps, signalStrength)
}
