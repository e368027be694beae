package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_NilStaysNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorCategoryOrder, "executor", "place"))
}

func TestRiskError_UnwrapAndFormat(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(cause, ErrorCategoryExchange, "bybit", "PlaceOrder")

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "[EXCHANGE:bybit] PlaceOrder")
	assert.False(t, err.IsRetryable())
	assert.False(t, err.IsFatal())
}

func TestConfigurationErrorIsFatal(t *testing.T) {
	err := NewConfigurationError("config", "Validate", "managed tag must not be empty")
	assert.True(t, err.IsFatal())
	assert.Equal(t, ErrorCategoryConfiguration, CategoryOf(err))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorCategory
	}{
		{"context deadline exceeded", ErrorCategoryTimeout},
		{"dial tcp: connection refused", ErrorCategoryNetwork},
		{"429 too many requests", ErrorCategoryRateLimit},
		{"API error: order not exists (code: 110001)", ErrorCategoryExchange},
		{"qty must be positive", ErrorCategoryValidation},
		{"something else", ErrorCategoryOrder},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := Categorize(fmt.Errorf("%s", tt.msg), "executor", "cancel")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Category)
		})
	}
}

func TestCategorize_KeepsExistingCategory(t *testing.T) {
	inner := NewValidationError("ladder", "BuildPlan", "entry price must be positive")
	wrapped := fmt.Errorf("plan: %w", inner)

	got := Categorize(wrapped, "executor", "PlaceLadder")
	assert.Same(t, inner, got)
	assert.Equal(t, ErrorCategoryValidation, CategoryOf(wrapped))
	assert.Equal(t, ErrorCategory(""), CategoryOf(fmt.Errorf("plain")))
}
