package routing

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies provider failures
type ErrorKind int

const (
	KindHard ErrorKind = iota
	KindRateLimited
	KindForbidden
	KindTimeout
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindForbidden:
		return "forbidden"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "hard"
	}
}

var (
	ErrRateLimited = errors.New("routing provider rate limited")
	ErrForbidden   = errors.New("routing provider denied the request")
	ErrTimeout     = errors.New("routing provider timed out")
	ErrUnavailable = errors.New("routing provider unavailable")
	ErrHard        = errors.New("routing provider failed")
)

// ProviderError is returned by every Provider implementation in this package
type ProviderError struct {
	Kind       ErrorKind
	Op         string // "directions" or "distancematrix"
	StatusCode int    // HTTP status, 0 if the request never completed
	Status     string // Provider status field, e.g. OVER_QUERY_LIMIT
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Status != "" {
		msg += " " + e.Status
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets callers match a ProviderError against the kind sentinels
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrHard:
		return e.Kind == KindHard
	}
	return false
}

// Transient reports whether a degraded fallback should replace this failure
func (e *ProviderError) Transient() bool {
	return e.Kind != KindHard
}

// IsTransient reports whether err is a provider failure that warrants fallback
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// classifyHTTPStatus maps a non-2xx HTTP status to an error kind
func classifyHTTPStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindRateLimited
	case code == 401 || code == 403:
		return KindForbidden
	case code == 408 || code == 504:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	default:
		return KindHard
	}
}

// classifyAPIStatus maps a Google Maps "status" field to an error kind
func classifyAPIStatus(status string) ErrorKind {
	switch status {
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return KindRateLimited
	case "REQUEST_DENIED":
		return KindForbidden
	case "UNKNOWN_ERROR":
		return KindUnavailable
	default:
		return KindHard
	}
}

// classifyTransportError maps a failed HTTP round trip to an error kind.
// Cancellation by the caller is a hard failure: nobody is waiting for a fallback.
func classifyTransportError(ctx context.Context, err error) ErrorKind {
	if ctx.Err() == context.Canceled {
		return KindHard
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindUnavailable
	}
	return KindHard
}
