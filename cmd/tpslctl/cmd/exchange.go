package cmd

import (
	"context"

	"github.com/ducminhle1904/tpsl-guard/internal/config"
	"github.com/ducminhle1904/tpsl-guard/internal/exchange/bybit"
	"github.com/ducminhle1904/tpsl-guard/internal/executor"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// exchangeClient is what the commands need from an exchange: market data
// for live ladders, open orders for reconciliation and the order gateway
type exchangeClient interface {
	executor.Gateway
	GetInstrument(ctx context.Context, symbol string) (bybit.Instrument, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]types.OrderParams, error)
}

func newBybitClient(cfg *config.Config) exchangeClient {
	return bybit.NewClient(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
		Category:  cfg.Exchange.Category,
		Retry:     bybit.DefaultRetryConfig(),
	})
}

func (rc *RootConfig) exchange() exchangeClient {
	if rc.newClient == nil {
		return newBybitClient(rc.cfg)
	}
	return rc.newClient(rc.cfg)
}
