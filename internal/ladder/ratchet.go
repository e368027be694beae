package ladder

import "math"

const (
	ratchetFloor   = 12.0
	ratchetStretch = 0.10
)

// RatchetThreshold returns the MFE (bps) at which remaining rungs are widened.
// It is derived from the first rung's price, so the comparison mixes units.
func RatchetThreshold(tpPrices []float64) float64 {
	first := ratchetFloor
	if len(tpPrices) > 0 {
		first = tpPrices[0]
	}
	return 2 * math.Min(ratchetFloor, first)
}

// RatchetRemaining stretches every remaining rung outward by 10% once MFE
// reaches the threshold. Below the threshold the prices come back unchanged.
// The input slice is never modified.
func RatchetRemaining(tpPrices []float64, mfeBps float64) []float64 {
	if tpPrices == nil {
		return nil
	}
	out := make([]float64, len(tpPrices))
	copy(out, tpPrices)

	if math.IsNaN(mfeBps) || mfeBps < RatchetThreshold(tpPrices) {
		return out
	}
	for i := range out {
		out[i] *= 1.0 + ratchetStretch
	}
	return out
}
