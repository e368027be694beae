package safety

import (
	"fmt"
	"strings"
)

// MutationKind is the kind of exchange-mutating call being authorized
type MutationKind int

const (
	MutationPlaceTP MutationKind = iota
	MutationPlaceSL
	MutationCancel
	MutationMarketClose
)

// String returns the string representation of the mutation kind
func (k MutationKind) String() string {
	switch k {
	case MutationPlaceTP:
		return "PLACE_TP"
	case MutationPlaceSL:
		return "PLACE_SL"
	case MutationCancel:
		return "CANCEL"
	case MutationMarketClose:
		return "MARKET_CLOSE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the kind by name in JSON and YAML
func (k MutationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseMutationKind maps "place_tp", "PLACE-SL", "cancel" or "market_close"
// to a kind
func ParseMutationKind(s string) (MutationKind, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "PLACE_TP", "TP":
		return MutationPlaceTP, nil
	case "PLACE_SL", "SL":
		return MutationPlaceSL, nil
	case "CANCEL":
		return MutationCancel, nil
	case "MARKET_CLOSE", "CLOSE":
		return MutationMarketClose, nil
	}
	return 0, fmt.Errorf("unknown mutation kind %q", s)
}

// OrderMutationRequest describes one order mutation awaiting a decision.
// An empty OrderLinkID means the order carries no client id.
type OrderMutationRequest struct {
	Kind        MutationKind
	ReduceOnly  bool
	OrderLinkID string
}

// Decision is the result of a guardrail check. Reason is always set, "ok" on
// allow; Kind names the mutation that was checked.
type Decision struct {
	Kind    MutationKind `json:"kind"`
	Allowed bool         `json:"allowed"`
	Reason  string       `json:"reason"`
}

const ReasonOK = "ok"

// Deny reasons
const (
	ReasonNotReduceOnly      = "not reduce-only"
	ReasonDryRun             = "blocked: DRY_RUN"
	ReasonGraceUntagged      = "blocked in GRACE without managed tag"
	ReasonStartupGrace       = "blocked: startup GRACE"
	ReasonMissingOrderLinkID = "missing orderLinkId"
	ReasonNonManagedOrder    = "non-managed order"
	ReasonManagerForbidden   = "manager forbidden"
	ReasonUnknownMutation    = "unknown mutation kind"
)

func allow(kind MutationKind) Decision {
	return Decision{Kind: kind, Allowed: true, Reason: ReasonOK}
}

func deny(kind MutationKind, reason string) Decision {
	return Decision{Kind: kind, Allowed: false, Reason: reason}
}

// String renders the decision for audit lines as "<kind>: <reason>"
func (d Decision) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Reason)
}
