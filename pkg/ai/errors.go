package ai

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingCredential is returned when the selected provider has no API key.
var ErrMissingCredential = errors.New("api key is required")

// ProviderError is a transport or provider-side failure.
// Code carries the HTTP status when one is known and 0 otherwise.
type ProviderError struct {
	Code    int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("provider error: %s", e.Message)
	}
	return fmt.Sprintf("provider error (%d): %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the provider rejected the call for quota or rate reasons.
func (e *ProviderError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// Outcome is the tagged result of one completion call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

// Classify maps the error of a completion call onto an Outcome.
// Only a *ProviderError with code 429 counts as rate limited.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.RateLimited() {
		return OutcomeRateLimited
	}
	return OutcomeFailure
}

// StatusCode returns the provider status carried by err, or 0.
func StatusCode(err error) int {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return 0
}
