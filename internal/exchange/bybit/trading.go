package bybit

import (
	"context"

	"github.com/ducminhle1904/tpsl-guard/internal/executor"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

var _ executor.Gateway = (*Client)(nil)

// PlaceOrderParams builds the v5 order/create body for a protective order.
// Take-profits are limit orders with their time in force (PostOnly); stops
// are conditional market orders triggered on the last price.
func PlaceOrderParams(category string, req executor.OrderRequest) map[string]interface{} {
	p := req.Params
	params := map[string]interface{}{
		"category":   category,
		"symbol":     p.Symbol,
		"side":       string(p.Side),
		"orderType":  string(p.OrderType),
		"qty":        p.Qty,
		"reduceOnly": p.ReduceOnly,
	}
	if p.OrderLinkID != "" {
		params["orderLinkId"] = p.OrderLinkID
	}

	if req.IsConditional() {
		params["triggerPrice"] = p.TriggerPrice
		params["triggerBy"] = "LastPrice"
		if req.TriggerDirection != executor.TriggerNone {
			params["triggerDirection"] = req.TriggerDirection
		}
	}
	if p.OrderType == types.OrderTypeLimit {
		params["price"] = p.Price
		tif := req.TimeInForce
		if tif == "" {
			tif = executor.TimeInForceGTC
		}
		params["timeInForce"] = tif
	}
	return params
}

// CancelOrderParams builds the v5 order/cancel body addressing an order by link id
func CancelOrderParams(category, symbol, orderLinkID string) map[string]interface{} {
	return map[string]interface{}{
		"category":    category,
		"symbol":      symbol,
		"orderLinkId": orderLinkID,
	}
}

// ClosePositionParams builds a reduce-only market order flattening qty of a
// position held on positionSide.
func ClosePositionParams(category, symbol string, positionSide types.OrderSide, qty string) map[string]interface{} {
	return map[string]interface{}{
		"category":   category,
		"symbol":     symbol,
		"side":       string(positionSide.Opposite()),
		"orderType":  string(types.OrderTypeMarket),
		"qty":        qty,
		"reduceOnly": true,
	}
}

// PlaceOrder sends one protective order
func (c *Client) PlaceOrder(ctx context.Context, req executor.OrderRequest) (executor.OrderAck, error) {
	result, err := c.send(ctx, opPlaceOrder, PlaceOrderParams(c.category, req))
	if err != nil {
		return executor.OrderAck{}, wrapError(err, "PlaceOrder")
	}

	var ack executor.OrderAck
	if err := decodeResult(result, &ack); err != nil {
		return executor.OrderAck{}, wrapError(err, "PlaceOrder").WithContext("orderLinkId", req.Params.OrderLinkID)
	}
	return ack, nil
}

// CancelOrder cancels an order by its link id
func (c *Client) CancelOrder(ctx context.Context, symbol, orderLinkID string) error {
	result, err := c.send(ctx, opCancelOrder, CancelOrderParams(c.category, symbol, orderLinkID))
	if err != nil {
		return wrapError(err, "CancelOrder")
	}
	if err := decodeResult(result, nil); err != nil {
		return wrapError(err, "CancelOrder").WithContext("orderLinkId", orderLinkID)
	}
	return nil
}

// ClosePosition sends a reduce-only market order against the position
func (c *Client) ClosePosition(ctx context.Context, symbol string, positionSide types.OrderSide, qty string) error {
	result, err := c.send(ctx, opPlaceOrder, ClosePositionParams(c.category, symbol, positionSide, qty))
	if err != nil {
		return wrapError(err, "ClosePosition")
	}
	if err := decodeResult(result, nil); err != nil {
		return wrapError(err, "ClosePosition")
	}
	return nil
}

type openOrdersResult struct {
	List []struct {
		Symbol       string `json:"symbol"`
		Side         string `json:"side"`
		OrderType    string `json:"orderType"`
		Price        string `json:"price"`
		Qty          string `json:"qty"`
		TriggerPrice string `json:"triggerPrice"`
		ReduceOnly   bool   `json:"reduceOnly"`
		OrderLinkID  string `json:"orderLinkId"`
	} `json:"list"`
}

// GetOpenOrders lists the resting orders of symbol, conditional ones included
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]types.OrderParams, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"limit":    50,
	}

	var parsed openOrdersResult
	err := withRetry(ctx, c.retry, "GetOpenOrders", func() error {
		result, err := c.send(ctx, opOpenOrders, params)
		if err != nil {
			return err
		}
		return decodeResult(result, &parsed)
	})
	if err != nil {
		return nil, err
	}
	return parseOpenOrders(parsed), nil
}

func parseOpenOrders(parsed openOrdersResult) []types.OrderParams {
	out := make([]types.OrderParams, 0, len(parsed.List))
	for _, o := range parsed.List {
		trigger := o.TriggerPrice
		// plain limit orders report a zero trigger
		if parseFloat64(trigger) == 0 {
			trigger = ""
		}
		out = append(out, types.OrderParams{
			Symbol:       o.Symbol,
			Side:         types.OrderSide(o.Side),
			OrderType:    types.OrderType(o.OrderType),
			Qty:          o.Qty,
			Price:        o.Price,
			TriggerPrice: trigger,
			ReduceOnly:   o.ReduceOnly,
			OrderLinkID:  o.OrderLinkID,
		})
	}
	return out
}
