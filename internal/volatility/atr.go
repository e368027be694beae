package volatility

import (
	"errors"
	"math"

	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// DefaultATRPeriod is the Wilder period used for stop distances
const DefaultATRPeriod = 14

var ErrInsufficientData = errors.New("insufficient data points for ATR calculation")

// WilderATR computes the Average True Range with Wilder smoothing: a simple
// mean of the first period true ranges, then atr = (atr*(n-1) + tr) / n.
// Candles must be in chronological order; period+1 candles are required.
func WilderATR(candles []types.OHLCV, period int) (float64, error) {
	if period < 1 || len(candles) < period+1 {
		return 0, ErrInsufficientData
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1].Close))
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	n := float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*(n-1) + tr) / n
	}
	return atr, nil
}

// True Range = max(High-Low, |High-PrevClose|, |Low-PrevClose|)
func trueRange(c types.OHLCV, prevClose float64) float64 {
	hl := c.High - c.Low
	hc := math.Abs(c.High - prevClose)
	lc := math.Abs(c.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ToBps expresses a price-unit volatility relative to price in basis points
func ToBps(atr, price float64) float64 {
	if price <= 0 || atr <= 0 {
		return 0
	}
	return atr / price * 10000
}

// ATRBps is WilderATR expressed in bps of the last close
func ATRBps(candles []types.OHLCV, period int) (atr float64, bps float64, err error) {
	atr, err = WilderATR(candles, period)
	if err != nil {
		return 0, 0, err
	}
	return atr, ToBps(atr, candles[len(candles)-1].Close), nil
}
