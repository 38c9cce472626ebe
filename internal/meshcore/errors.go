// Package meshcore holds error kinds and retry policy shared across the
// mesh core's components.
package meshcore

import "fmt"

// Kind enumerates the core's error taxonomy. Components return a *Error
// wrapping one of these kinds so callers can branch on failure mode without
// depending on concrete error types from every package.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotStarted
	KindAlreadyStarted
	KindInvalidConfiguration
	KindPeerNotFound
	KindNoRelayAvailable
	KindNoRelaysAvailable
	KindTimeout
	KindConnectionFailed
	KindSendFailed
	KindHolePunchFailed
	KindHolePunchImpossible
	KindDecryptFailed
	KindSignatureInvalid
	KindMalformedEndpoint
	KindInvalidPort
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotStarted:
		return "not_started"
	case KindAlreadyStarted:
		return "already_started"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindPeerNotFound:
		return "peer_not_found"
	case KindNoRelayAvailable:
		return "no_relay_available"
	case KindNoRelaysAvailable:
		return "no_relays_available"
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection_failed"
	case KindSendFailed:
		return "send_failed"
	case KindHolePunchFailed:
		return "hole_punch_failed"
	case KindHolePunchImpossible:
		return "hole_punch_impossible"
	case KindDecryptFailed:
		return "decrypt_failed"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindMalformedEndpoint:
		return "malformed_endpoint"
	case KindInvalidPort:
		return "invalid_port"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is the core's error type: a kind, the component/operation that
// raised it, and an optional wrapped cause.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Operation, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Component, e.Operation, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// ShouldRetry reports whether the error's kind is worth retrying per
// spec.md §7: timeouts, connection failures, and send failures retry;
// configuration errors and hole-punch impossibility do not.
func (e *Error) ShouldRetry() bool {
	switch e.Kind {
	case KindTimeout, KindConnectionFailed, KindSendFailed:
		return true
	default:
		return false
	}
}

// New builds an *Error for the given kind/component/operation.
func New(kind Kind, component, operation string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Err: cause}
}

// AsError extracts a *Error from err, if present.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
