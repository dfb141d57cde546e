package genai

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alexei18/PromtII/internal/keypool"
	"github.com/alexei18/PromtII/pkg/llm"
)

// failureKind drives what happens to the key that produced an error.
type failureKind int

const (
	// failureUnknown errors propagate to the caller untouched.
	failureUnknown failureKind = iota
	// failureRetryable is a provider-side hiccup; retry without demoting.
	failureRetryable
	// failureSuspend takes the key out of rotation.
	failureSuspend
	// failureGeo permanently excludes the key for this deployment region.
	failureGeo
)

type classification struct {
	kind   failureKind
	reason string
}

// classifyProviderError maps an LLM call failure to a key-pool action.
// Message text is checked before status codes because providers reuse 403
// for both billing suspensions and regional blocks.
func classifyProviderError(err error) classification {
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		return classification{kind: failureUnknown}
	}

	message := strings.ToLower(apiErr.Message)

	switch {
	case strings.Contains(message, "consumer_suspended"), strings.Contains(message, "suspended"):
		return classification{kind: failureSuspend, reason: keypool.ReasonSuspended}
	case strings.Contains(message, "location is not supported"):
		return classification{kind: failureGeo}
	case strings.Contains(message, "overloaded"):
		return classification{kind: failureRetryable}
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return classification{kind: failureSuspend, reason: keypool.ReasonInvalid}
	case http.StatusTooManyRequests:
		return classification{kind: failureSuspend, reason: keypool.ReasonRateLimited}
	case http.StatusForbidden:
		return classification{kind: failureGeo}
	}

	if apiErr.StatusCode >= 500 {
		return classification{kind: failureRetryable}
	}

	return classification{kind: failureUnknown}
}
