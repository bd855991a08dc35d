package entity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures coming from upstreams and infrastructure.
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindRateLimited
	KindValidation
	KindApplication
	KindCacheBackend
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindValidation:
		return "validation"
	case KindApplication:
		return "upstream_application"
	case KindCacheBackend:
		return "cache_backend"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidAddress        = errors.New("invalid wallet address")
	ErrUnsupportedChain      = errors.New("unsupported chain")
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// UpstreamError carries a failure together with its classification.
// Retryable is decided once by the constructor and never recomputed.
type UpstreamError struct {
	Provider   ProviderName
	Kind       ErrorKind
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		if e.StatusCode != 0 {
			return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
		}
		return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewTransportError wraps a network or timeout failure.
func NewTransportError(provider ProviderName, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Provider: provider, Kind: KindTransport, StatusCode: statusCode, Retryable: true, Err: err}
}

// NewRateLimitedError reports throttling, either by HTTP 429 or by payload.
func NewRateLimitedError(provider ProviderName, statusCode int, message string) *UpstreamError {
	return &UpstreamError{Provider: provider, Kind: KindRateLimited, StatusCode: statusCode, Message: message, Retryable: true}
}

// NewValidationError reports malformed input. It is never retried.
func NewValidationError(provider ProviderName, message string, err error) *UpstreamError {
	return &UpstreamError{Provider: provider, Kind: KindValidation, Message: message, Err: err}
}

// NewApplicationError reports an upstream that answered but signalled failure.
func NewApplicationError(provider ProviderName, statusCode int, message string) *UpstreamError {
	return &UpstreamError{Provider: provider, Kind: KindApplication, StatusCode: statusCode, Message: message}
}

// NewCacheBackendError wraps a cache backend failure.
func NewCacheBackendError(err error) *UpstreamError {
	return &UpstreamError{Kind: KindCacheBackend, Err: err}
}

// Exhausted converts the last error of a retry loop into a terminal application error.
func Exhausted(err error, attempts int) error {
	var ue *UpstreamError
	provider := ProviderName("")
	status := 0
	if errors.As(err, &ue) {
		provider = ue.Provider
		status = ue.StatusCode
	}
	return &UpstreamError{
		Provider:   provider,
		Kind:       KindApplication,
		StatusCode: status,
		Message:    fmt.Sprintf("retries exhausted after %d attempts", attempts),
		Err:        err,
	}
}

// IsRetryable reports whether err was classified as retryable where it was created.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}

// KindOf returns the classification of err, or 0 when err is not an UpstreamError.
// Bare ErrInvalidAddress and ErrUnsupportedChain count as validation failures.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrUnsupportedChain) {
		return KindValidation
	}
	return 0
}
