package gateway

import "errors"

// ErrGatewayUnavailable marks transient bridge failures (network errors,
// unexpected status codes). Callers may retry.
var ErrGatewayUnavailable = errors.New("gateway unavailable")

// ErrSessionConflict is returned by CreateSession when the bridge already has
// an instance under that name. The caller decides whether to tear it down.
var ErrSessionConflict = errors.New("session already exists")

// SendError is a terminal per-recipient failure. Reason carries the bridge's
// response text verbatim so it can be persisted in the message log.
type SendError struct {
	Reason string
}

func (e *SendError) Error() string {
	return "send failed: " + e.Reason
}
