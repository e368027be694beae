package safety

import (
	"fmt"
	"strings"
	"time"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
)

const (
	DefaultManagedTag         = "B44"
	DefaultGracePeriodSeconds = 20
)

// SafetyConfig holds the policy parameters of a running guardrail. It is built
// once at process start and passed by value; nothing mutates it afterwards.
type SafetyConfig struct {
	AdoptExistingOrders    bool   `yaml:"adopt_existing_orders" json:"adopt_existing_orders"`
	CancelNonManagedOrders bool   `yaml:"cancel_non_managed_orders" json:"cancel_non_managed_orders"`
	DryRun                 bool   `yaml:"dry_run" json:"dry_run"`
	GracePeriodSeconds     int    `yaml:"grace_period_seconds" json:"grace_period_seconds"`
	ManagedTag             string `yaml:"managed_tag" json:"managed_tag"`
}

// DefaultSafetyConfig mirrors the conservative production defaults: adopt
// existing orders, never cancel foreign ones, dry-run on, 20s grace.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		AdoptExistingOrders:    true,
		CancelNonManagedOrders: false,
		DryRun:                 true,
		GracePeriodSeconds:     DefaultGracePeriodSeconds,
		ManagedTag:             DefaultManagedTag,
	}
}

// GracePeriod returns the startup window as a duration. Negative values count as zero.
func (c SafetyConfig) GracePeriod() time.Duration {
	if c.GracePeriodSeconds <= 0 {
		return 0
	}
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate checks the invariants a guardrail relies on
func (c SafetyConfig) Validate() error {
	if c.GracePeriodSeconds < 0 {
		return riskerrors.NewConfigurationError("safety", "Validate",
			fmt.Sprintf("grace_period_seconds must be >= 0, got: %d", c.GracePeriodSeconds))
	}
	if strings.TrimSpace(c.ManagedTag) == "" {
		return riskerrors.NewConfigurationError("safety", "Validate", "managed_tag must not be empty")
	}
	return nil
}

// Sanitized returns a copy with out-of-range values replaced by safe defaults
func (c SafetyConfig) Sanitized() SafetyConfig {
	out := c
	if out.GracePeriodSeconds < 0 {
		out.GracePeriodSeconds = DefaultGracePeriodSeconds
	}
	out.ManagedTag = strings.TrimSpace(out.ManagedTag)
	if out.ManagedTag == "" {
		out.ManagedTag = DefaultManagedTag
	}
	return out
}
