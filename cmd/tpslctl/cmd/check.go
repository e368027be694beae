package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ducminhle1904/tpsl-guard/internal/monitoring"
	"github.com/ducminhle1904/tpsl-guard/internal/safety"
	"github.com/ducminhle1904/tpsl-guard/pkg/reporting"
)

// offsetClock reports a fixed instant that can be moved after the guardrail
// has captured its start
type offsetClock struct {
	now time.Time
}

func (c *offsetClock) Now() time.Time { return c.now }

type checkOptions struct {
	kinds      []string
	reduceOnly bool
	linkID     string
	elapsed    time.Duration
}

func newCheckCmd(rc *RootConfig) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate order mutations against the guardrail",
		Long: `Evaluate one or more order mutations against the configured guardrail as
if the process had been running for --elapsed.

Examples:
  tpslctl check --kind place_tp --reduce-only --link-id B44-tp1-abc --elapsed 5s
  tpslctl check --kind cancel --link-id foreign-1 --elapsed 1m
  tpslctl check --kind place_tp,place_sl,cancel,market_close --reduce-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rc, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.kinds, "kind", "k", []string{"place_tp", "place_sl", "cancel", "market_close"}, "mutation kinds to evaluate")
	cmd.Flags().BoolVar(&opts.reduceOnly, "reduce-only", false, "order is reduce-only")
	cmd.Flags().StringVar(&opts.linkID, "link-id", "", "order link id (empty means none)")
	cmd.Flags().DurationVar(&opts.elapsed, "elapsed", 0, "time since process start")
	return cmd
}

func runCheck(rc *RootConfig, opts *checkOptions) error {
	kinds := make([]safety.MutationKind, 0, len(opts.kinds))
	for _, k := range opts.kinds {
		kind, err := safety.ParseMutationKind(k)
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	clock := &offsetClock{now: time.Now()}
	guard := safety.NewGuardRail(rc.Config().SafetyConfig(), safety.WithClock(clock))
	clock.now = clock.now.Add(opts.elapsed)

	log := rc.Logger()
	rows := make([]reporting.DecisionRow, 0, len(kinds))
	for _, kind := range kinds {
		d := guard.Check(safety.OrderMutationRequest{
			Kind:        kind,
			ReduceOnly:  opts.reduceOnly,
			OrderLinkID: opts.linkID,
		})
		monitoring.RecordDecision(kind.String(), d.Allowed)
		log.Debug("guardrail check",
			zap.String("kind", kind.String()),
			zap.Bool("reduce_only", opts.reduceOnly),
			zap.String("order_link_id", opts.linkID),
			zap.Bool("allowed", d.Allowed),
			zap.String("reason", d.Reason),
			zap.String("phase", guard.Phase().String()))

		rows = append(rows, reporting.DecisionRow{
			Kind:        kind,
			ReduceOnly:  opts.reduceOnly,
			OrderLinkID: opts.linkID,
			Phase:       guard.Phase(),
			Decision:    d,
		})
	}

	reporting.WriteDecisions(rc.out, rows)
	return nil
}
