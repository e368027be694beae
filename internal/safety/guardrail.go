package safety

import (
	"strings"
	"time"
)

// Phase is the lifecycle phase of a guardrail
type Phase int

const (
	// PhaseGrace restricts mutations until live exchange state has been observed
	PhaseGrace Phase = iota
	PhaseNormal
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseGrace:
		return "GRACE"
	case PhaseNormal:
		return "NORMAL"
	default:
		return "UNKNOWN"
	}
}

// Clock supplies the current time. time.Now readings carry a monotonic
// component, so elapsed time is immune to wall-clock jumps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a GuardRail
type Option func(*GuardRail)

// WithClock replaces the system clock, mainly for tests
func WithClock(clock Clock) Option {
	return func(g *GuardRail) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// GuardRail is the single authority deciding whether an order mutation may
// reach the exchange. Its only state is the start instant captured in
// NewGuardRail, so one instance can be shared by concurrent callers.
type GuardRail struct {
	cfg   SafetyConfig
	clock Clock
	start time.Time
}

// NewGuardRail creates a guardrail and starts its grace window now.
// Out-of-range config values are replaced as in SafetyConfig.Sanitized.
func NewGuardRail(cfg SafetyConfig, opts ...Option) *GuardRail {
	g := &GuardRail{
		cfg:   cfg.Sanitized(),
		clock: systemClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.start = g.clock.Now()
	return g
}

// Config returns the policy this guardrail enforces
func (g *GuardRail) Config() SafetyConfig {
	return g.cfg
}

// Elapsed returns the time since construction
func (g *GuardRail) Elapsed() time.Duration {
	return g.clock.Now().Sub(g.start)
}

// Phase returns GRACE until the grace period has elapsed, NORMAL afterwards
func (g *GuardRail) Phase() Phase {
	if g.Elapsed() < g.cfg.GracePeriod() {
		return PhaseGrace
	}
	return PhaseNormal
}

// InGrace reports whether the guardrail is still in its startup window
func (g *GuardRail) InGrace() bool {
	return g.Phase() == PhaseGrace
}

// Check decides whether req may be sent to the exchange. It never panics and
// always returns a Decision with a reason.
func (g *GuardRail) Check(req OrderMutationRequest) Decision {
	switch req.Kind {
	case MutationPlaceTP, MutationPlaceSL:
		return g.checkPlacement(req.Kind, req.ReduceOnly, req.OrderLinkID)
	case MutationCancel:
		return g.AllowCancel(req.OrderLinkID)
	case MutationMarketClose:
		return g.AllowMarketClose()
	default:
		return deny(req.Kind, ReasonUnknownMutation)
	}
}

// AllowPlaceTP checks a take-profit placement
func (g *GuardRail) AllowPlaceTP(reduceOnly bool, orderLinkID string) Decision {
	return g.checkPlacement(MutationPlaceTP, reduceOnly, orderLinkID)
}

// AllowPlaceSL checks a stop-loss placement
func (g *GuardRail) AllowPlaceSL(reduceOnly bool, orderLinkID string) Decision {
	return g.checkPlacement(MutationPlaceSL, reduceOnly, orderLinkID)
}

func (g *GuardRail) checkPlacement(kind MutationKind, reduceOnly bool, orderLinkID string) Decision {
	// protective orders must never add exposure
	if !reduceOnly {
		return deny(kind, ReasonNotReduceOnly)
	}
	if g.cfg.DryRun {
		return deny(kind, ReasonDryRun)
	}
	if g.InGrace() && !HasManagedTag(orderLinkID, g.cfg.ManagedTag) {
		return deny(kind, ReasonGraceUntagged)
	}
	return allow(kind)
}

// AllowCancel checks an order cancellation
func (g *GuardRail) AllowCancel(orderLinkID string) Decision {
	if g.InGrace() {
		return deny(MutationCancel, ReasonStartupGrace)
	}
	if orderLinkID == "" {
		return deny(MutationCancel, ReasonMissingOrderLinkID)
	}
	if !HasManagedTag(orderLinkID, g.cfg.ManagedTag) && !g.cfg.CancelNonManagedOrders {
		return deny(MutationCancel, ReasonNonManagedOrder)
	}
	return allow(MutationCancel)
}

// AllowMarketClose always denies. Market closes are disabled at this layer
// regardless of configuration.
func (g *GuardRail) AllowMarketClose() Decision {
	return deny(MutationMarketClose, ReasonManagerForbidden)
}

// HasManagedTag reports whether orderLinkID carries tag. The check is plain
// substring containment, matching the ids already live on the exchange.
func HasManagedTag(orderLinkID, tag string) bool {
	if orderLinkID == "" || tag == "" {
		return false
	}
	return strings.Contains(orderLinkID, tag)
}
