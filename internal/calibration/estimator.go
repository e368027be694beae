package calibration

import (
	"bufio"
	"errors"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
)

const (
	DefaultPercentile  = 0.7
	DefaultStopBps     = 60.0
	DefaultOutcomePath = "data/features/outcomes.jsonl"
)

// Estimator derives stop-loss distances from the MAE history in an
// append-only outcome log. It keeps no state between calls: every estimate
// re-reads the log, so concurrent appends by other processes are picked up
// and concurrent callers need no locking.
type Estimator struct {
	path   string
	logger *zap.Logger
}

// EstimatorOption configures an Estimator
type EstimatorOption func(*Estimator)

// WithLogger sets the logger used to report read failures
func WithLogger(logger *zap.Logger) EstimatorOption {
	return func(e *Estimator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEstimator creates an estimator over the outcome log at path
func NewEstimator(path string, opts ...EstimatorOption) *Estimator {
	if strings.TrimSpace(path) == "" {
		path = DefaultOutcomePath
	}
	e := &Estimator{
		path:   path,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Path returns the outcome log location
func (e *Estimator) Path() string {
	return e.path
}

// ReadStats counts lines by parse result
type ReadStats map[LineResult]int

// Skipped returns the number of lines that did not produce a sample
func (s ReadStats) Skipped() int {
	n := 0
	for res, c := range s {
		if res != LineAccepted {
			n += c
		}
	}
	return n
}

func (s ReadStats) labels() map[string]int {
	out := make(map[string]int, len(s))
	for res, c := range s {
		out[res.String()] = c
	}
	return out
}

// Samples returns the positive MAE samples (bps) recorded for symbol, in
// file order. A missing log yields no samples and no error.
func (e *Estimator) Samples(symbol string) ([]float64, ReadStats, error) {
	var xs []float64
	stats, err := e.scan(func(line []byte) LineResult {
		s, res := ParseLineFor(line, symbol)
		if res == LineAccepted {
			xs = append(xs, s.MAEBps)
		}
		return res
	})
	return xs, stats, err
}

// SamplesBySymbol groups every accepted sample by upper-cased symbol
func (e *Estimator) SamplesBySymbol() (map[string][]float64, ReadStats, error) {
	out := make(map[string][]float64)
	stats, err := e.scan(func(line []byte) LineResult {
		s, res := ParseLine(line)
		if res == LineAccepted {
			out[s.Symbol] = append(out[s.Symbol], s.MAEBps)
		}
		return res
	})
	return out, stats, err
}

func (e *Estimator) scan(visit func(line []byte) LineResult) (ReadStats, error) {
	stats := make(ReadStats)

	f, err := os.Open(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, nil
		}
		return stats, riskerrors.NewCalibrationError("calibration", "open", err).WithContext("path", e.path)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			stats[visit(line)]++
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return stats, riskerrors.NewCalibrationError("calibration", "read", readErr).WithContext("path", e.path)
		}
	}

	monitoring.RecordCalibrationLines(stats.labels())
	return stats, nil
}

// Estimate is the detailed result of a stop-loss calibration
type Estimate struct {
	Symbol      string  `json:"symbol"`
	Samples     int     `json:"samples"`
	Percentile  float64 `json:"percentile"`
	Index       int     `json:"index"`
	Bps         float64 `json:"bps"`
	UsedDefault bool    `json:"used_default"`
	Skipped     int     `json:"skipped"`
}

// Estimate computes the percentile MAE for symbol, falling back to
// defaultBps when the log has no usable samples.
func (e *Estimator) Estimate(symbol string, pct, defaultBps float64) (Estimate, error) {
	xs, stats, err := e.Samples(symbol)
	est := FromSamples(xs, pct, defaultBps)
	est.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	est.Skipped = stats.Skipped()
	return est, err
}

// StopLossEstimate returns the stop-loss distance in bps for symbol. It never
// fails: read errors are logged and the default is returned.
func (e *Estimator) StopLossEstimate(symbol string, pct, defaultBps float64) float64 {
	est, err := e.Estimate(symbol, pct, defaultBps)
	if err != nil {
		e.logger.Warn("calibration read failed, using default stop distance",
			zap.String("symbol", symbol),
			zap.String("path", e.path),
			zap.Float64("default_bps", defaultBps),
			zap.Error(err))
		return defaultBps
	}
	monitoring.UpdateCalibrationEstimate(est.Symbol, est.Bps)
	return est.Bps
}

// FromSamples applies the percentile rule to raw samples: sort ascending and
// pick xs[clamp(floor(pct*n)-1, 0, n-1)]. With no samples the result is
// defaultBps exactly. The input slice is not modified.
func FromSamples(samples []float64, pct, defaultBps float64) Estimate {
	if math.IsNaN(pct) {
		pct = DefaultPercentile
	}
	est := Estimate{Percentile: pct, Samples: len(samples)}
	if len(samples) == 0 {
		est.Bps = defaultBps
		est.UsedDefault = true
		return est
	}

	xs := make([]float64, len(samples))
	copy(xs, samples)
	sort.Float64s(xs)

	est.Index = PercentileIndex(pct, len(xs))
	est.Bps = xs[est.Index]
	return est
}

// PercentileIndex returns clamp(floor(pct*n)-1, 0, n-1); 0 when n < 1
func PercentileIndex(pct float64, n int) int {
	if n < 1 {
		return 0
	}
	raw := math.Floor(pct*float64(n)) - 1
	switch {
	case math.IsNaN(raw) || raw < 0:
		return 0
	case raw > float64(n-1):
		return n - 1
	}
	return int(raw)
}
