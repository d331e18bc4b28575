package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/loadline/loadline/internal/rate"
)

func TestFormat_Booked(t *testing.T) {
	got := Format(Event{
		CallID: "call-1", Outcome: "booked", CarrierName: "Knight Trucking",
		LoadID: "LD-3", FinalRate: rate.FromDollars(900), Rounds: 2,
	})
	for _, want := range []string{"Knight Trucking", "LD-3", "900.00", "2 round"} {
		if !strings.Contains(got, want) {
			t.Errorf("Format() = %q, missing %q", got, want)
		}
	}
}

func TestFormat_OtherOutcomes(t *testing.T) {
	for _, outcome := range []string{"no-match", "verification-failed", "negotiation-failed", "abandoned"} {
		got := Format(Event{CallID: "call-9", Outcome: outcome, CarrierName: "X", LoadID: "LD-1"})
		if !strings.Contains(got, "call-9") {
			t.Errorf("Format(%s) = %q, missing call ID", outcome, got)
		}
	}
}

func TestMock(t *testing.T) {
	m := NewMock()
	if err := m.Send(context.Background(), Event{CallID: "c"}); err == nil {
		t.Error("send before connect should fail")
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Send(context.Background(), Event{CallID: "c"}); err != nil {
		t.Fatal(err)
	}
	if len(m.Sent()) != 1 {
		t.Errorf("sent = %d, want 1", len(m.Sent()))
	}
}
