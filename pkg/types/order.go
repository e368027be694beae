package types

// OrderSide is the exchange side of an order or position
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// Opposite returns the side that reduces a position opened on s
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// OrderParams are the parameters of an outgoing protective order
type OrderParams struct {
	Symbol       string    `json:"symbol"`
	Side         OrderSide `json:"side"`
	OrderType    OrderType `json:"orderType"`
	Qty          string    `json:"qty"`
	Price        string    `json:"price,omitempty"`
	TriggerPrice string    `json:"triggerPrice,omitempty"`
	ReduceOnly   bool      `json:"reduceOnly"`
	OrderLinkID  string    `json:"orderLinkId,omitempty"`
}

// OrderState is the lifecycle state persisted by callers for each order
type OrderState string

const (
	OrderStateNew      OrderState = "NEW"
	OrderStateSent     OrderState = "SENT"
	OrderStateAcked    OrderState = "ACKED"
	OrderStatePartial  OrderState = "PARTIAL"
	OrderStateFilled   OrderState = "FILLED"
	OrderStateCanceled OrderState = "CANCELED"
	OrderStateRejected OrderState = "REJECTED"
	OrderStateError    OrderState = "ERROR"
)

// IsTerminal reports whether no further transition is expected
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCanceled, OrderStateRejected, OrderStateError:
		return true
	}
	return false
}
