// Package verify provides the carrier operating-authority verification
// gateway contract and its HTTP client.
package verify

import (
	"context"
	"errors"
)

// ErrGatewayUnavailable is returned when the verification service cannot
// be reached after the client's retry budget is exhausted. Callers treat
// it as a failed verification for the call; it is never fatal.
var ErrGatewayUnavailable = errors.New("verify: gateway unavailable")

// CarrierInfo is the verified-carrier snapshot returned by the gateway.
type CarrierInfo struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	AuthorityType string `json:"authority_type"`
}

// Result is the outcome of an authority lookup.
type Result struct {
	Verified bool         `json:"verified"`
	Carrier  *CarrierInfo `json:"carrier,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// Gateway is the verification service contract consumed by the
// conversation manager.
type Gateway interface {
	// Verify looks up an operating-authority identifier. Transport
	// failures surface as ErrGatewayUnavailable; a negative lookup is a
	// normal Result with Verified=false.
	Verify(ctx context.Context, authorityID string) (*Result, error)
}
