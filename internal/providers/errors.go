package providers

import "strings"

// ErrorClass buckets a provider failure so callers can decide between
// retrying, falling back for one call, or demoting the provider for the
// rest of the process.
type ErrorClass string

const (
	ErrorAuth      ErrorClass = "auth"
	ErrorQuota     ErrorClass = "quota"
	ErrorRateLimit ErrorClass = "rate_limit"
	ErrorContext   ErrorClass = "context_length"
	ErrorTransient ErrorClass = "transient"
	ErrorPermanent ErrorClass = "permanent"
)

// ClassifyError inspects a provider error message. Provider SDKs and raw
// HTTP responses do not share an error vocabulary, so substring matching on
// the known phrasings is the practical option.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "status 401"),
		strings.Contains(msg, "status 403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "permission denied"):
		return ErrorAuth
	case strings.Contains(msg, "insufficient_quota"),
		strings.Contains(msg, "quota exceeded"),
		strings.Contains(msg, "billing"):
		return ErrorQuota
	case strings.Contains(msg, "status 429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return ErrorRateLimit
	case strings.Contains(msg, "context length"),
		strings.Contains(msg, "maximum context"),
		strings.Contains(msg, "too many tokens"):
		return ErrorContext
	case strings.Contains(msg, "status 400"),
		strings.Contains(msg, "status 404"),
		strings.Contains(msg, "model not found"):
		return ErrorPermanent
	default:
		// Timeouts, connection resets, 5xx. Worth retrying.
		return ErrorTransient
	}
}

// Demotes reports whether a failure class should disable the remote
// provider for the remainder of the process. Auth and quota failures will
// not heal on retry; transient and rate-limit failures might.
func Demotes(class ErrorClass) bool {
	switch class {
	case ErrorAuth, ErrorQuota, ErrorPermanent:
		return true
	default:
		return false
	}
}
