package calibration

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// LineResult is the outcome of parsing one line of the outcome log
type LineResult int

const (
	LineAccepted LineResult = iota
	LineSkipBlank
	LineSkipMalformed
	LineSkipKind
	LineSkipNonPositive
	LineSkipSymbol
)

// String returns the string representation of the line result
func (r LineResult) String() string {
	switch r {
	case LineAccepted:
		return "accepted"
	case LineSkipBlank:
		return "blank"
	case LineSkipMalformed:
		return "malformed"
	case LineSkipKind:
		return "wrong_kind"
	case LineSkipNonPositive:
		return "non_positive_mae"
	case LineSkipSymbol:
		return "other_symbol"
	default:
		return "unknown"
	}
}

const outcomeKind = "outcome"

// Sample is one usable MAE observation
type Sample struct {
	Symbol string
	MAEBps float64
}

type outcomeRow struct {
	Kind    string `json:"kind"`
	Symbol  string `json:"symbol"`
	Outcome *struct {
		MAEBps json.RawMessage `json:"mae_bps"`
	} `json:"outcome"`
}

// ParseLine decodes one JSONL row. Only rows of kind "outcome" with a
// strictly positive outcome.mae_bps are accepted; everything else reports
// why it was skipped instead of failing. The symbol is upper-cased.
func ParseLine(line []byte) (Sample, LineResult) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Sample{}, LineSkipBlank
	}

	var row outcomeRow
	if err := json.Unmarshal(line, &row); err != nil {
		return Sample{}, LineSkipMalformed
	}
	if row.Kind != outcomeKind {
		return Sample{}, LineSkipKind
	}

	mae := 0.0
	if row.Outcome != nil {
		v, ok := parseNumber(row.Outcome.MAEBps)
		if !ok {
			return Sample{}, LineSkipMalformed
		}
		mae = v
	}
	// NaN fails this comparison too
	if !(mae > 0) {
		return Sample{}, LineSkipNonPositive
	}

	return Sample{Symbol: strings.ToUpper(strings.TrimSpace(row.Symbol)), MAEBps: mae}, LineAccepted
}

// ParseLineFor is ParseLine restricted to one symbol, compared case-insensitively
func ParseLineFor(line []byte, symbol string) (Sample, LineResult) {
	s, res := ParseLine(line)
	if res != LineAccepted {
		return s, res
	}
	if s.Symbol != strings.ToUpper(strings.TrimSpace(symbol)) {
		return Sample{}, LineSkipSymbol
	}
	return s, LineAccepted
}

// parseNumber accepts a JSON number, a numeric string, or absence (0)
func parseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, true
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
