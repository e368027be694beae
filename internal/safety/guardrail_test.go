package safety

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/tpsl-guard/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func liveConfig() SafetyConfig {
	cfg := DefaultSafetyConfig()
	cfg.DryRun = false
	return cfg
}

func allConfigs() []SafetyConfig {
	var out []SafetyConfig
	for _, adopt := range []bool{false, true} {
		for _, cancelForeign := range []bool{false, true} {
			for _, dry := range []bool{false, true} {
				for _, grace := range []int{0, 20} {
					out = append(out, SafetyConfig{
						AdoptExistingOrders:    adopt,
						CancelNonManagedOrders: cancelForeign,
						DryRun:                 dry,
						GracePeriodSeconds:     grace,
						ManagedTag:             "B44",
					})
				}
			}
		}
	}
	return out
}

var sampleLinkIDs = []string{"", "B44-tp1", "other-123", "xB44x"}

func TestPhase_GraceThenNormal(t *testing.T) {
	clock := newFakeClock()
	g := NewGuardRail(liveConfig(), WithClock(clock))

	assert.Equal(t, PhaseGrace, g.Phase())
	assert.True(t, g.InGrace())

	clock.Advance(19*time.Second + 999*time.Millisecond)
	assert.Equal(t, PhaseGrace, g.Phase())

	clock.Advance(time.Millisecond)
	assert.Equal(t, PhaseNormal, g.Phase())
	assert.Equal(t, "NORMAL", g.Phase().String())

	clock.Advance(time.Hour)
	assert.Equal(t, PhaseNormal, g.Phase())
}

func TestPhase_ZeroGraceStartsNormal(t *testing.T) {
	cfg := liveConfig()
	cfg.GracePeriodSeconds = 0
	g := NewGuardRail(cfg, WithClock(newFakeClock()))
	assert.Equal(t, PhaseNormal, g.Phase())
}

func TestPlacement_NotReduceOnlyAlwaysDenied(t *testing.T) {
	for _, cfg := range allConfigs() {
		for _, kind := range []MutationKind{MutationPlaceTP, MutationPlaceSL} {
			for _, id := range sampleLinkIDs {
				clock := newFakeClock()
				g := NewGuardRail(cfg, WithClock(clock))
				for _, elapsed := range []time.Duration{0, 5 * time.Second, time.Minute} {
					clock.Advance(elapsed)
					d := g.Check(OrderMutationRequest{Kind: kind, ReduceOnly: false, OrderLinkID: id})
					assert.False(t, d.Allowed)
					assert.Equal(t, ReasonNotReduceOnly, d.Reason)
				}
			}
		}
	}
}

func TestPlacement_DryRunAlwaysDenied(t *testing.T) {
	cfg := liveConfig()
	cfg.DryRun = true
	clock := newFakeClock()
	g := NewGuardRail(cfg, WithClock(clock))
	clock.Advance(time.Minute)

	for _, kind := range []MutationKind{MutationPlaceTP, MutationPlaceSL} {
		d := g.Check(OrderMutationRequest{Kind: kind, ReduceOnly: true, OrderLinkID: "B44-tp1"})
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonDryRun, d.Reason)
	}
}

func TestPlacement_GraceRequiresManagedTag(t *testing.T) {
	g := NewGuardRail(liveConfig(), WithClock(newFakeClock()))

	tests := []struct {
		name    string
		linkID  string
		allowed bool
	}{
		{"missing id", "", false},
		{"foreign id", "other-123", false},
		{"tagged id", "B44-tp1", true},
		{"tag in the middle", "sub-B44-x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := g.AllowPlaceTP(true, tt.linkID)
			sl := g.AllowPlaceSL(true, tt.linkID)
			assert.Equal(t, tt.allowed, tp.Allowed)
			assert.Equal(t, tt.allowed, sl.Allowed)
			if !tt.allowed {
				assert.Equal(t, ReasonGraceUntagged, tp.Reason)
			} else {
				assert.Equal(t, ReasonOK, tp.Reason)
			}
		})
	}
}

func TestPlacement_NormalAllowsUntagged(t *testing.T) {
	clock := newFakeClock()
	g := NewGuardRail(liveConfig(), WithClock(clock))
	clock.Advance(21 * time.Second)

	d := g.Check(OrderMutationRequest{Kind: MutationPlaceSL, ReduceOnly: true})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonOK, d.Reason)
}

func TestCancel_DeniedThroughoutGrace(t *testing.T) {
	for _, cfg := range allConfigs() {
		if cfg.GracePeriodSeconds == 0 {
			continue
		}
		g := NewGuardRail(cfg, WithClock(newFakeClock()))
		for _, id := range sampleLinkIDs {
			d := g.Check(OrderMutationRequest{Kind: MutationCancel, ReduceOnly: true, OrderLinkID: id})
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonStartupGrace, d.Reason)
		}
	}
}

func TestCancel_Rules(t *testing.T) {
	tests := []struct {
		name          string
		cancelForeign bool
		linkID        string
		allowed       bool
		reason        string
	}{
		{"anonymous order", true, "", false, ReasonMissingOrderLinkID},
		{"foreign order refused", false, "manual-77", false, ReasonNonManagedOrder},
		{"foreign order allowed by config", true, "manual-77", true, ReasonOK},
		{"managed order", false, "B44-tp3", true, ReasonOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := liveConfig()
			cfg.CancelNonManagedOrders = tt.cancelForeign
			clock := newFakeClock()
			g := NewGuardRail(cfg, WithClock(clock))
			clock.Advance(30 * time.Second)

			d := g.AllowCancel(tt.linkID)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestMarketClose_NeverAllowed(t *testing.T) {
	for _, cfg := range allConfigs() {
		clock := newFakeClock()
		g := NewGuardRail(cfg, WithClock(clock))
		for _, elapsed := range []time.Duration{0, time.Minute} {
			clock.Advance(elapsed)
			for _, ro := range []bool{false, true} {
				for _, id := range sampleLinkIDs {
					d := g.Check(OrderMutationRequest{Kind: MutationMarketClose, ReduceOnly: ro, OrderLinkID: id})
					require.False(t, d.Allowed)
					assert.Equal(t, ReasonManagerForbidden, d.Reason)
				}
			}
		}
	}
}

func TestCheck_UnknownKindDenied(t *testing.T) {
	g := NewGuardRail(liveConfig(), WithClock(newFakeClock()))
	d := g.Check(OrderMutationRequest{Kind: MutationKind(42), ReduceOnly: true, OrderLinkID: "B44-x"})
	assert.False(t, d.Allowed)
	assert.Equal(t, "UNKNOWN", MutationKind(42).String())
}

func TestGraceScenario_SameRequestBeforeAndAfter(t *testing.T) {
	cfg := liveConfig()
	cfg.GracePeriodSeconds = 20
	clock := newFakeClock()
	g := NewGuardRail(cfg, WithClock(clock))
	req := OrderMutationRequest{Kind: MutationPlaceTP, ReduceOnly: true, OrderLinkID: "other-123"}

	clock.Advance(5 * time.Second)
	early := g.Check(req)
	assert.False(t, early.Allowed)
	assert.Contains(t, early.Reason, "GRACE")

	clock.Advance(16 * time.Second)
	late := g.Check(req)
	assert.True(t, late.Allowed)
	assert.Equal(t, ReasonOK, late.Reason)
}

func TestGuardRail_ConcurrentChecks(t *testing.T) {
	clock := newFakeClock()
	g := NewGuardRail(liveConfig(), WithClock(clock))
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d := g.Check(OrderMutationRequest{Kind: MutationPlaceTP, ReduceOnly: true, OrderLinkID: "B44-tp"})
				assert.True(t, d.Allowed)
			}
		}()
	}
	wg.Wait()
}

func TestEnsureReduceOnly(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		wantID string
	}{
		{"empty id gets auto", "", "B44-auto"},
		{"foreign id gets prefixed", "abc", "B44-abc"},
		{"tagged id untouched", "B44-tp2-xyz", "B44-tp2-xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := types.OrderParams{Symbol: "BTCUSDT", OrderLinkID: tt.in, ReduceOnly: false}
			out := EnsureReduceOnly(in, "B44")

			assert.True(t, out.ReduceOnly)
			assert.Equal(t, tt.wantID, out.OrderLinkID)
			assert.False(t, in.ReduceOnly, "input must not be mutated")
			assert.Equal(t, tt.in, in.OrderLinkID)
		})
	}
}

func TestEnsureReduceOnly_OutputPassesGrace(t *testing.T) {
	g := NewGuardRail(liveConfig(), WithClock(newFakeClock()))
	params := EnsureReduceOnly(types.OrderParams{OrderLinkID: "manual"}, g.Config().ManagedTag)

	d := g.AllowPlaceTP(params.ReduceOnly, params.OrderLinkID)
	assert.True(t, d.Allowed)
}

func TestSafetyConfig_ValidateAndSanitize(t *testing.T) {
	assert.NoError(t, DefaultSafetyConfig().Validate())

	bad := SafetyConfig{GracePeriodSeconds: -3, ManagedTag: "  "}
	assert.Error(t, bad.Validate())

	fixed := bad.Sanitized()
	assert.NoError(t, fixed.Validate())
	assert.Equal(t, DefaultGracePeriodSeconds, fixed.GracePeriodSeconds)
	assert.Equal(t, DefaultManagedTag, fixed.ManagedTag)
	assert.Equal(t, 20*time.Second, fixed.GracePeriod())

	zero := SafetyConfig{GracePeriodSeconds: 0, ManagedTag: "B44"}.Sanitized()
	assert.Equal(t, 0, zero.GracePeriodSeconds)
}

func TestNewGuardRail_NegativeGraceKeepsDefaultWindow(t *testing.T) {
	cfg := liveConfig()
	cfg.GracePeriodSeconds = -5
	clock := newFakeClock()
	g := NewGuardRail(cfg, WithClock(clock))

	clock.Advance(19 * time.Second)
	assert.Equal(t, PhaseGrace, g.Phase())
	assert.False(t, g.AllowCancel("B44-tp1-x").Allowed)

	clock.Advance(time.Second)
	assert.Equal(t, PhaseNormal, g.Phase())
}

func TestDecisionString(t *testing.T) {
	g := NewGuardRail(liveConfig(), WithClock(newFakeClock()))

	assert.Equal(t, "MARKET_CLOSE: manager forbidden", g.AllowMarketClose().String())
	assert.Equal(t, "PLACE_SL: blocked in GRACE without managed tag", g.AllowPlaceSL(true, "manual").String())
	assert.Equal(t, "PLACE_TP: ok", g.AllowPlaceTP(true, "B44-tp1-x").String())
	assert.Equal(t, "CANCEL: blocked: startup GRACE", g.Check(OrderMutationRequest{Kind: MutationCancel}).String())

	raw, err := json.Marshal(g.AllowMarketClose())
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"MARKET_CLOSE","allowed":false,"reason":"manager forbidden"}`, string(raw))
}

func TestParseMutationKind(t *testing.T) {
	cases := map[string]MutationKind{
		"place_tp":     MutationPlaceTP,
		"PLACE-SL":     MutationPlaceSL,
		" cancel ":     MutationCancel,
		"market_close": MutationMarketClose,
		"close":        MutationMarketClose,
	}
	for in, want := range cases {
		got, err := ParseMutationKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMutationKind("amend")
	assert.Error(t, err)
}
