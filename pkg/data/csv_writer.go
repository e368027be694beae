package data

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// WriteCSV saves candles in DefaultCSVFormat, timestamps in UTC
func WriteCSV(path string, candles []types.OHLCV) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		record := []string{
			c.Timestamp.UTC().Format(DefaultCSVFormat.DateFormat),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
