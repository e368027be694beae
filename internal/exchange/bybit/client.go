package bybit

import (
	"context"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// DemoURL is the Bybit demo trading (paper) endpoint
const DemoURL = "https://api-demo.bybit.com"

const DefaultCategory = "linear"

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool // Demo trading environment
	Category  string
	Retry     RetryConfig
}

type operation string

const (
	opPlaceOrder     operation = "PlaceOrder"
	opCancelOrder    operation = "CancelOrder"
	opInstrumentInfo operation = "GetInstrumentInfo"
	opMarketKline    operation = "GetMarketKline"
	opOpenOrders     operation = "GetOpenOrders"
)

// sendFunc performs one API call and returns the raw library response
type sendFunc func(ctx context.Context, op operation, params map[string]interface{}) (interface{}, error)

// Client is the Bybit v5 gateway for protective orders
type Client struct {
	httpClient *bybit_api.Client
	category   string
	env        string
	retry      RetryConfig
	send       sendFunc
}

// NewClient creates a new Bybit client
func NewClient(config Config) *Client {
	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(BaseURL(config)),
	)

	category := config.Category
	if category == "" {
		category = DefaultCategory
	}
	retry := config.Retry
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = DefaultRetryConfig()
	}

	c := &Client{
		httpClient: httpClient,
		category:   category,
		env:        Environment(config),
		retry:      retry,
	}
	c.send = c.sendHTTP
	return c
}

// BaseURL picks the REST endpoint; demo wins over testnet
func BaseURL(config Config) string {
	switch {
	case config.Demo:
		return DemoURL
	case config.Testnet:
		return bybit_api.TESTNET
	default:
		return bybit_api.MAINNET
	}
}

// Environment returns a string describing the target environment
func Environment(config Config) string {
	switch {
	case config.Demo:
		return "demo"
	case config.Testnet:
		return "testnet"
	default:
		return "mainnet"
	}
}

// GetEnvironment returns the environment the client talks to
func (c *Client) GetEnvironment() string {
	return c.env
}

// Category returns the product category used for every request
func (c *Client) Category() string {
	return c.category
}

func (c *Client) sendHTTP(ctx context.Context, op operation, params map[string]interface{}) (interface{}, error) {
	svc := c.httpClient.NewUtaBybitServiceWithParams(params)
	switch op {
	case opPlaceOrder:
		return svc.PlaceOrder(ctx)
	case opCancelOrder:
		return svc.CancelOrder(ctx)
	case opInstrumentInfo:
		return svc.GetInstrumentInfo(ctx)
	case opMarketKline:
		return svc.GetMarketKline(ctx)
	case opOpenOrders:
		return svc.GetOpenOrders(ctx)
	default:
		return nil, fmt.Errorf("unsupported operation %s", op)
	}
}
