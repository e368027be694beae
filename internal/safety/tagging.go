package safety

import (
	"fmt"

	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

// EnsureReduceOnly returns a copy of params forced to reduce-only, with the
// managed tag prefixed to the order link id ("<tag>-<id>" or "<tag>-auto")
// unless the id already contains it. It makes an order compliant with the
// tagging convention; it does not bypass any guardrail check.
func EnsureReduceOnly(params types.OrderParams, tag string) types.OrderParams {
	out := params
	out.ReduceOnly = true
	if tag != "" && !HasManagedTag(out.OrderLinkID, tag) {
		id := out.OrderLinkID
		if id == "" {
			id = "auto"
		}
		out.OrderLinkID = fmt.Sprintf("%s-%s", tag, id)
	}
	return out
}
