// Package notify delivers call-outcome notifications to chat platforms
// (Slack, Discord). Delivery is best effort: the call flow never fails
// because a notifier is down.
package notify

import (
	"context"
	"fmt"

	"github.com/loadline/loadline/internal/rate"
)

// Event is a terminal call outcome formatted for brokers.
type Event struct {
	CallID      string
	Outcome     string // booked, no-match, verification-failed, negotiation-failed, abandoned
	CarrierName string
	LoadID      string
	FinalRate   rate.Cents // set only for booked outcomes
	Rounds      int
}

// Notifier is the interface platform-specific implementations satisfy.
type Notifier interface {
	// Connect establishes a connection or validates credentials.
	Connect(ctx context.Context) error

	// Send delivers one outcome event.
	Send(ctx context.Context, ev Event) error

	// Close shuts down the notifier.
	Close() error
}

// Format renders an event as a one-line broker notification. Shared by
// the platform implementations so both channels read identically.
func Format(ev Event) string {
	switch ev.Outcome {
	case "booked":
		return fmt.Sprintf("Booked: %s covered %s at $%s (%d round(s), call %s)",
			ev.CarrierName, ev.LoadID, ev.FinalRate, ev.Rounds, ev.CallID)
	case "negotiation-failed":
		return fmt.Sprintf("No deal: %s walked on %s after %d round(s) (call %s)",
			ev.CarrierName, ev.LoadID, ev.Rounds, ev.CallID)
	case "no-match":
		return fmt.Sprintf("No match for %s (call %s)", ev.CarrierName, ev.CallID)
	case "verification-failed":
		return fmt.Sprintf("Verification failed (call %s)", ev.CallID)
	default:
		return fmt.Sprintf("Call %s ended: %s", ev.CallID, ev.Outcome)
	}
}
