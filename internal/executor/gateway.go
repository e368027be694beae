package executor

import (
	"context"

	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// Gateway abstracts the exchange calls the executor is allowed to make.
// Implementations perform no policy checks of their own; the executor has
// already consulted the guardrail before any method is called.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderLinkID string) error
	ClosePosition(ctx context.Context, symbol string, positionSide types.OrderSide, qty string) error
}

// Time in force values understood by the gateway
const (
	TimeInForceGTC      = "GTC"
	TimeInForcePostOnly = "PostOnly"
)

// Trigger directions for conditional orders
const (
	TriggerNone   = 0
	TriggerOnRise = 1
	TriggerOnFall = 2
)

// OrderRequest is a fully normalized order ready for the exchange
type OrderRequest struct {
	Params      types.OrderParams
	TimeInForce string
	// TriggerDirection is set for conditional (stop) orders only
	TriggerDirection int
}

// IsConditional reports whether the order waits for a trigger price
func (r OrderRequest) IsConditional() bool {
	return r.Params.TriggerPrice != ""
}

// OrderAck is the exchange acknowledgement of a placed order
type OrderAck struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}
