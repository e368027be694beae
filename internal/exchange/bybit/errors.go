package bybit

import (
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	riskerrors "github.com/ducminhle1904/tpsl-guard/internal/errors"
)

// APIError is a non-zero retCode returned by Bybit
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// Common Bybit error codes
const (
	ErrCodeInvalidAPIKey     = 10003
	ErrCodeInvalidSignature  = 10004
	ErrCodeInvalidTimestamp  = 10005
	ErrCodeRateLimitExceeded = 10006
	ErrCodeOrderNotFound     = 110001
	ErrCodeReduceOnlyExceed  = 110017
	ErrCodeDuplicateLinkID   = 110072
)

// Category maps the code onto the error categories used by callers
func (e *APIError) Category() riskerrors.ErrorCategory {
	switch e.Code {
	case ErrCodeRateLimitExceeded:
		return riskerrors.ErrorCategoryRateLimit
	case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature:
		return riskerrors.ErrorCategoryConfiguration
	case ErrCodeInvalidTimestamp:
		return riskerrors.ErrorCategoryTimeout
	default:
		return riskerrors.ErrorCategoryExchange
	}
}

// wrapError attaches a category to err; API errors are categorized by code,
// transport errors by message.
func wrapError(err error, operation string) *riskerrors.RiskError {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*APIError); ok {
		return riskerrors.Wrap(apiErr, apiErr.Category(), "bybit", operation).WithContext("code", apiErr.Code)
	}
	return riskerrors.Categorize(err, "bybit", operation)
}

// decodeResult checks the retCode of a library response and unmarshals its
// result into out (skipped when out is nil).
func decodeResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok || serverResp == nil {
		return fmt.Errorf("invalid response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}
	if out == nil {
		return nil
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}
