package capabilities

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a capability failure independently of the provider.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindRateLimit         Kind = "rate_limit"
	KindMalformedResponse Kind = "malformed_response"
	KindUpstream          Kind = "upstream"
	KindUnavailable       Kind = "unavailable"
)

// CapabilityError is the only error shape ports return.
type CapabilityError struct {
	Kind    Kind
	Port    string
	Message string
	Err     error
}

func (e *CapabilityError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("capability %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("capability %s %s: %s", e.Port, e.Kind, e.Message)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsKind reports whether err is a CapabilityError of kind k.
func IsKind(err error, k Kind) bool {
	var ce *CapabilityError
	return errors.As(err, &ce) && ce.Kind == k
}

// Wrap normalizes any error from an adapter into a *CapabilityError tagged with
// port. Errors that are already capability errors keep their kind.
func Wrap(port string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		if ce.Port == "" {
			cp := *ce
			cp.Port = port
			return &cp
		}
		return ce
	}
	kind := KindUpstream
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindUnavailable
	}
	return &CapabilityError{Kind: kind, Port: port, Message: err.Error(), Err: err}
}

// FromStatus maps an HTTP status from a provider to a kind.
func FromStatus(port string, status int, body string) *CapabilityError {
	kind := KindUpstream
	switch {
	case status == 429:
		kind = KindRateLimit
	case status == 408 || status == 504:
		kind = KindTimeout
	case status == 503:
		kind = KindUnavailable
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return &CapabilityError{Kind: kind, Port: port, Message: fmt.Sprintf("status %d: %s", status, body)}
}

// Unconfigured is returned by ports that have no backing provider.
func Unconfigured(port string) *CapabilityError {
	return &CapabilityError{Kind: KindUnavailable, Port: port, Message: "no provider configured"}
}
