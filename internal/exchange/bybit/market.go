package bybit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// Instrument holds the trading constraints a ladder plan must respect
type Instrument struct {
	Symbol      string  `json:"symbol"`
	TickSize    float64 `json:"tickSize"`
	QtyStep     float64 `json:"qtyStep"`
	MinOrderQty float64 `json:"minOrderQty"`
}

type instrumentResult struct {
	List []struct {
		Symbol      string `json:"symbol"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			MinOrderQty   string `json:"minOrderQty"`
			QtyStep       string `json:"qtyStep"`
			BasePrecision string `json:"basePrecision"` // spot uses this instead of qtyStep
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

// GetInstrument fetches tick size, qty step and minimum qty for symbol
func (c *Client) GetInstrument(ctx context.Context, symbol string) (Instrument, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	var parsed instrumentResult
	err := withRetry(ctx, c.retry, "GetInstrument", func() error {
		result, err := c.send(ctx, opInstrumentInfo, params)
		if err != nil {
			return err
		}
		return decodeResult(result, &parsed)
	})
	if err != nil {
		return Instrument{}, err
	}
	return parseInstrument(parsed, symbol)
}

func parseInstrument(parsed instrumentResult, symbol string) (Instrument, error) {
	for _, item := range parsed.List {
		if item.Symbol != symbol {
			continue
		}
		step := item.LotSizeFilter.QtyStep
		if step == "" {
			step = item.LotSizeFilter.BasePrecision
		}
		inst := Instrument{
			Symbol:      item.Symbol,
			TickSize:    parseFloat64(item.PriceFilter.TickSize),
			QtyStep:     parseFloat64(step),
			MinOrderQty: parseFloat64(item.LotSizeFilter.MinOrderQty),
		}
		if inst.TickSize <= 0 || inst.QtyStep <= 0 {
			return Instrument{}, wrapError(fmt.Errorf("invalid instrument filters for %s", symbol), "GetInstrument")
		}
		return inst, nil
	}
	return Instrument{}, wrapError(fmt.Errorf("instrument %s not found", symbol), "GetInstrument")
}

// GetCandles fetches up to limit klines in chronological order. interval
// uses Bybit notation ("1", "5", "60", "D").
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}

	var parsed struct {
		List [][]string `json:"list"`
	}
	err := withRetry(ctx, c.retry, "GetCandles", func() error {
		result, err := c.send(ctx, opMarketKline, params)
		if err != nil {
			return err
		}
		return decodeResult(result, &parsed)
	})
	if err != nil {
		return nil, err
	}
	return parseKlines(parsed.List), nil
}

// parseKlines converts [start, open, high, low, close, volume, turnover]
// rows, which Bybit returns newest first, into oldest-first candles.
func parseKlines(rows [][]string) []types.OHLCV {
	candles := make([]types.OHLCV, 0, len(rows))
	for _, item := range rows {
		if len(item) < 6 {
			continue
		}
		candles = append(candles, types.OHLCV{
			Timestamp: time.UnixMilli(parseInt64(item[0])),
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
		})
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles
}

func parseFloat64(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt64(s string) int64 {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return i
}
