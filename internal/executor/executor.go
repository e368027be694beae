package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
	"github.com/ducminhle1904/tpsl-guard/internal/ladder"
	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// OrderRecord tracks one protective order from decision to terminal state
type OrderRecord struct {
	OrderLinkID string              `json:"orderLinkId"`
	OrderID     string              `json:"orderId,omitempty"`
	Symbol      string              `json:"symbol"`
	Kind        safety.MutationKind `json:"kind"`
	Params      types.OrderParams   `json:"params"`
	State       types.OrderState    `json:"state"`
	Decision    safety.Decision     `json:"decision"`
	Error       string              `json:"error,omitempty"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the decision logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRateLimiter throttles gateway calls
func WithRateLimiter(rl *RateLimiter) Option {
	return func(e *Executor) { e.limiter = rl }
}

// WithCircuitBreaker stops gateway calls after repeated transport failures
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(e *Executor) { e.breaker = cb }
}

// WithIDSuffix replaces the random link id suffix generator
func WithIDSuffix(fn func() string) Option {
	return func(e *Executor) {
		if fn != nil {
			e.idSuffix = fn
		}
	}
}

// Executor sends protective orders through a Gateway. Every mutation is
// first normalized, then checked by the guardrail; denied mutations never
// reach the gateway and are recorded as REJECTED.
type Executor struct {
	guard    *safety.GuardRail
	gateway  Gateway
	logger   *zap.Logger
	limiter  *RateLimiter
	breaker  *CircuitBreaker
	idSuffix func() string

	mu      sync.RWMutex
	records map[string]*OrderRecord
	order   []string
}

// New creates an executor
func New(guard *safety.GuardRail, gateway Gateway, opts ...Option) *Executor {
	e := &Executor{
		guard:    guard,
		gateway:  gateway,
		logger:   zap.NewNop(),
		idSuffix: func() string { return uuid.NewString()[:8] },
		records:  make(map[string]*OrderRecord),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewLinkID builds a managed order link id such as "B44-tp1-1a2b3c4d"
func (e *Executor) NewLinkID(role string) string {
	return fmt.Sprintf("%s-%s-%s", e.guard.Config().ManagedTag, role, e.idSuffix())
}

// PlaceTakeProfit places a reduce-only PostOnly limit order
func (e *Executor) PlaceTakeProfit(ctx context.Context, params types.OrderParams) (OrderRecord, error) {
	params.OrderType = types.OrderTypeLimit
	return e.place(ctx, safety.MutationPlaceTP, OrderRequest{Params: params, TimeInForce: TimeInForcePostOnly})
}

// PlaceStopLoss places a conditional reduce-only market order. The trigger
// direction follows from the order side: a Sell stop protects a long and
// fires on a fall.
func (e *Executor) PlaceStopLoss(ctx context.Context, params types.OrderParams) (OrderRecord, error) {
	params.OrderType = types.OrderTypeMarket
	params.Price = ""
	dir := TriggerOnFall
	if params.Side == types.OrderSideBuy {
		dir = TriggerOnRise
	}
	return e.place(ctx, safety.MutationPlaceSL, OrderRequest{Params: params, TriggerDirection: dir})
}

func (e *Executor) place(ctx context.Context, kind safety.MutationKind, req OrderRequest) (OrderRecord, error) {
	if req.Params.OrderLinkID == "" {
		req.Params.OrderLinkID = e.NewLinkID(roleFor(kind))
	}
	req.Params = safety.EnsureReduceOnly(req.Params, e.guard.Config().ManagedTag)

	rec := e.track(req.Params.Symbol, kind, req.Params)
	decision := e.guard.Check(safety.OrderMutationRequest{
		Kind:        kind,
		ReduceOnly:  req.Params.ReduceOnly,
		OrderLinkID: req.Params.OrderLinkID,
	})
	e.logDecision(kind, req.Params.Symbol, req.Params.ReduceOnly, req.Params.OrderLinkID, decision)
	e.setDecision(rec.OrderLinkID, decision)

	if !decision.Allowed {
		return e.transition(rec.OrderLinkID, types.OrderStateRejected, nil), nil
	}

	e.transition(rec.OrderLinkID, types.OrderStateSent, nil)
	var ack OrderAck
	err := e.call(ctx, func() error {
		var callErr error
		ack, callErr = e.gateway.PlaceOrder(ctx, req)
		return callErr
	})
	if err != nil {
		riskErr := riskerrors.Categorize(err, "executor", "PlaceOrder").
			WithContext("orderLinkId", req.Params.OrderLinkID).
			WithContext("symbol", req.Params.Symbol)
		e.logger.Error("order placement failed",
			zap.String("kind", kind.String()),
			zap.String("order_link_id", req.Params.OrderLinkID),
			zap.String("category", string(riskErr.Category)),
			zap.Error(err))
		return e.transition(rec.OrderLinkID, types.OrderStateError, riskErr), riskErr
	}

	e.mu.Lock()
	if r, ok := e.records[rec.OrderLinkID]; ok {
		r.OrderID = ack.OrderID
	}
	e.mu.Unlock()
	return e.transition(rec.OrderLinkID, types.OrderStateAcked, nil), nil
}

// Cancel cancels an order by link id if the guardrail allows it. The
// returned decision is the guardrail verdict; err reports gateway failures.
func (e *Executor) Cancel(ctx context.Context, symbol, orderLinkID string) (safety.Decision, error) {
	decision := e.guard.AllowCancel(orderLinkID)
	e.logDecision(safety.MutationCancel, symbol, false, orderLinkID, decision)
	if !decision.Allowed {
		return decision, nil
	}

	err := e.call(ctx, func() error {
		return e.gateway.CancelOrder(ctx, symbol, orderLinkID)
	})
	if err != nil {
		riskErr := riskerrors.Categorize(err, "executor", "CancelOrder").WithContext("orderLinkId", orderLinkID)
		e.logger.Error("order cancel failed", zap.String("order_link_id", orderLinkID), zap.Error(err))
		return decision, riskErr
	}

	e.mu.RLock()
	_, tracked := e.records[orderLinkID]
	e.mu.RUnlock()
	if tracked {
		e.transition(orderLinkID, types.OrderStateCanceled, nil)
	}
	return decision, nil
}

// MarketClose asks to flatten a position at market. The guardrail currently
// forbids this for every configuration, so the gateway is only reached if
// that rule changes.
func (e *Executor) MarketClose(ctx context.Context, symbol string, positionSide types.OrderSide, qty string) (safety.Decision, error) {
	decision := e.guard.AllowMarketClose()
	e.logDecision(safety.MutationMarketClose, symbol, true, "", decision)
	if !decision.Allowed {
		return decision, nil
	}

	err := e.call(ctx, func() error {
		return e.gateway.ClosePosition(ctx, symbol, positionSide, qty)
	})
	if err != nil {
		return decision, riskerrors.Categorize(err, "executor", "ClosePosition")
	}
	return decision, nil
}

// PlaceLadder places every take-profit rung of plan and then its stop-loss
// for the whole position. It keeps going after a failed rung; the returned
// error combines all gateway failures, and rejected orders show up in the
// records only.
func (e *Executor) PlaceLadder(ctx context.Context, symbol string, plan ladder.Plan) ([]OrderRecord, error) {
	var (
		out  []OrderRecord
		errs error
	)

	for _, rung := range plan.Rungs {
		if err := ctx.Err(); err != nil {
			return out, multierr.Append(errs, err)
		}
		rec, err := e.placeRung(ctx, symbol, plan, rung)
		out = append(out, rec)
		errs = multierr.Append(errs, err)
	}

	if plan.HasStopLoss {
		rec, err := e.placeStop(ctx, symbol, plan)
		out = append(out, rec)
		errs = multierr.Append(errs, err)
	}

	return out, errs
}

func (e *Executor) placeRung(ctx context.Context, symbol string, plan ladder.Plan, rung ladder.Rung) (OrderRecord, error) {
	return e.PlaceTakeProfit(ctx, types.OrderParams{
		Symbol:      symbol,
		Side:        plan.OrderSide,
		Qty:         plan.FormatQty(rung.Qty),
		Price:       plan.FormatPrice(rung.Price),
		ReduceOnly:  true,
		OrderLinkID: e.NewLinkID(fmt.Sprintf("tp%d", rung.Index)),
	})
}

func (e *Executor) placeStop(ctx context.Context, symbol string, plan ladder.Plan) (OrderRecord, error) {
	return e.PlaceStopLoss(ctx, types.OrderParams{
		Symbol:       symbol,
		Side:         plan.OrderSide,
		Qty:          plan.StopLossQty(),
		TriggerPrice: plan.FormatPrice(plan.StopLoss),
		ReduceOnly:   true,
		OrderLinkID:  e.NewLinkID("sl"),
	})
}

// MarkState applies an exchange-reported state (fills, cancels) to a tracked order
func (e *Executor) MarkState(orderLinkID string, state types.OrderState) (OrderRecord, error) {
	e.mu.RLock()
	rec, ok := e.records[orderLinkID]
	var current types.OrderState
	if ok {
		current = rec.State
	}
	e.mu.RUnlock()

	if !ok {
		return OrderRecord{}, riskerrors.NewValidationError("executor", "MarkState",
			fmt.Sprintf("unknown orderLinkId %q", orderLinkID))
	}
	if current.IsTerminal() {
		return OrderRecord{}, riskerrors.NewValidationError("executor", "MarkState",
			fmt.Sprintf("order %s is already %s", orderLinkID, current))
	}
	return e.transition(orderLinkID, state, nil), nil
}

// Record returns the tracked order for a link id
func (e *Executor) Record(orderLinkID string) (OrderRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[orderLinkID]
	if !ok {
		return OrderRecord{}, false
	}
	return *rec, true
}

// Records returns every tracked order in submission order
func (e *Executor) Records() []OrderRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]OrderRecord, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.records[id])
	}
	return out
}

func (e *Executor) call(ctx context.Context, fn func() error) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if e.breaker == nil {
		return fn()
	}
	err := e.breaker.Call(fn, isTransportFailure)
	if errors.Is(err, ErrCircuitOpen) {
		return riskerrors.New(riskerrors.ErrorCategoryNetwork, "executor", "call", err.Error()).WithRetryable(true)
	}
	return err
}

// isTransportFailure reports whether err says the exchange is unreachable
// rather than that it refused one order.
func isTransportFailure(err error) bool {
	switch riskerrors.Categorize(err, "executor", "call").Category {
	case riskerrors.ErrorCategoryNetwork, riskerrors.ErrorCategoryTimeout, riskerrors.ErrorCategoryRateLimit:
		return true
	}
	return false
}

func (e *Executor) track(symbol string, kind safety.MutationKind, params types.OrderParams) OrderRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := &OrderRecord{
		OrderLinkID: params.OrderLinkID,
		Symbol:      symbol,
		Kind:        kind,
		Params:      params,
		State:       types.OrderStateNew,
		UpdatedAt:   time.Now(),
	}
	if _, exists := e.records[rec.OrderLinkID]; !exists {
		e.order = append(e.order, rec.OrderLinkID)
	}
	e.records[rec.OrderLinkID] = rec
	monitoring.RecordOrderTransition(string(types.OrderStateNew))
	return *rec
}

func (e *Executor) setDecision(orderLinkID string, d safety.Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.records[orderLinkID]; ok {
		r.Decision = d
	}
}

func (e *Executor) transition(orderLinkID string, state types.OrderState, err error) OrderRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[orderLinkID]
	if !ok {
		return OrderRecord{}
	}
	r.State = state
	r.UpdatedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
	monitoring.RecordOrderTransition(string(state))
	return *r
}

func (e *Executor) logDecision(kind safety.MutationKind, symbol string, reduceOnly bool, orderLinkID string, d safety.Decision) {
	monitoring.RecordDecision(kind.String(), d.Allowed)

	fields := []zap.Field{
		zap.String("kind", kind.String()),
		zap.String("symbol", symbol),
		zap.Bool("reduce_only", reduceOnly),
		zap.String("order_link_id", orderLinkID),
		zap.Bool("allowed", d.Allowed),
		zap.String("reason", d.Reason),
		zap.String("phase", e.guard.Phase().String()),
		zap.Stringer("decision", d),
	}
	if d.Allowed {
		e.logger.Info("guardrail decision", fields...)
		return
	}
	e.logger.Warn("guardrail decision", fields...)
}

func roleFor(kind safety.MutationKind) string {
	switch kind {
	case safety.MutationPlaceSL:
		return "sl"
	case safety.MutationPlaceTP:
		return "tp"
	default:
		return strings.ToLower(kind.String())
	}
}
