package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// CSVColumnMapping defines the column positions of an OHLCV CSV file
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	DateFormat   string // empty means unix milliseconds
}

// Predefined CSV formats
var (
	DefaultCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		DateFormat:   "2006-01-02 15:04:05",
	}

	// BybitKlineFormat matches kline exports: start ms, open, high, low, close, volume
	BybitKlineFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
	}
)

// CSVProvider loads candles from CSV files with a header row
type CSVProvider struct {
	format CSVColumnMapping
	logger *zap.Logger
}

// NewCSVProvider creates a CSV provider with the default format
func NewCSVProvider(logger *zap.Logger) *CSVProvider {
	return NewCSVProviderWithFormat(DefaultCSVFormat, logger)
}

// NewCSVProviderWithFormat creates a CSV provider with a custom format
func NewCSVProviderWithFormat(format CSVColumnMapping, logger *zap.Logger) *CSVProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVProvider{format: format, logger: logger}
}

// LoadData reads candles from filename. Rows that do not parse or fail the
// price sanity checks are logged and skipped.
func (p *CSVProvider) LoadData(filename string) ([]types.OHLCV, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return p.read(file, filename)
}

func (p *CSVProvider) read(r io.Reader, source string) ([]types.OHLCV, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	var data []types.OHLCV
	lineNum := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading CSV at line %d: %w", lineNum+1, err)
		}
		lineNum++

		candle, err := p.parseRecord(record)
		if err != nil {
			p.logger.Warn("skipping candle row",
				zap.String("source", source),
				zap.Int("line", lineNum),
				zap.Error(err))
			continue
		}
		data = append(data, candle)
	}
	return data, nil
}

func (p *CSVProvider) parseRecord(record []string) (types.OHLCV, error) {
	format := p.format
	if len(record) < format.MinColumns {
		return types.OHLCV{}, fmt.Errorf("insufficient columns (expected %d, got %d)", format.MinColumns, len(record))
	}

	timestamp, err := parseTimestamp(record[format.TimestampCol], format.DateFormat)
	if err != nil {
		return types.OHLCV{}, fmt.Errorf("invalid timestamp %q: %w", record[format.TimestampCol], err)
	}

	var values [5]float64
	cols := [5]int{format.OpenCol, format.HighCol, format.LowCol, format.CloseCol, format.VolumeCol}
	for i, col := range cols {
		v, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			return types.OHLCV{}, fmt.Errorf("invalid number %q in column %d", record[col], col)
		}
		values[i] = v
	}

	candle := types.OHLCV{
		Timestamp: timestamp,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}
	if err := validateCandle(candle); err != nil {
		return types.OHLCV{}, err
	}
	return candle, nil
}

func parseTimestamp(s, layout string) (time.Time, error) {
	if layout == "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(layout, s)
}

func validateCandle(c types.OHLCV) error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("prices must be positive")
	}
	if c.High < c.Open || c.High < c.Close || c.High < c.Low {
		return fmt.Errorf("high %.4f is lower than other prices", c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("low %.4f is higher than other prices", c.Low)
	}
	return nil
}

// ValidateData checks that data is non-empty and in chronological order
func ValidateData(data []types.OHLCV) error {
	if len(data) == 0 {
		return fmt.Errorf("no data provided")
	}
	for i := 1; i < len(data); i++ {
		if data[i].Timestamp.Before(data[i-1].Timestamp) {
			return fmt.Errorf("invalid timestamp sequence at index %d: timestamps must be in chronological order", i)
		}
	}
	return nil
}

// Tail returns the last n candles, or all of them when n <= 0
func Tail(data []types.OHLCV, n int) []types.OHLCV {
	if n <= 0 || n >= len(data) {
		return data
	}
	return data[len(data)-n:]
}
