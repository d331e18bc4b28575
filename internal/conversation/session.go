package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/loadline/loadline/internal/matching"
	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/negotiation"
	"github.com/loadline/loadline/internal/verify"
)

// session holds the state of one live call.
//
// Two locks with distinct roles: eventMu serializes caller events
// (verify, search, select, offer, reject) for the whole duration of the
// event including gateway and database I/O. mu guards the mutable fields
// and is never held across I/O, so a forced end-call can always reach
// the session while another event is blocked on the network. Events that
// perform I/O re-check the state under mu afterwards and discard their
// result if the call ended in the meantime.
type session struct {
	eventMu sync.Mutex
	mu      sync.Mutex

	callID       string
	state        State
	authorityID  string
	carrier      *verify.CarrierInfo
	verifyReason string

	lastSearch  matching.Request
	candidates  []models.Load
	selected    *models.Load
	negotiation *negotiation.Record

	outcome    string
	finalState State
	startedAt  time.Time
	endedAt    time.Time

	// ctx is cancelled by the forced end-call event so that in-flight
	// gateway calls unblock immediately.
	ctx    context.Context
	cancel context.CancelFunc
}

// Snapshot is a read-only copy of a call's observable state.
type Snapshot struct {
	CallID       string
	State        State
	AuthorityID  string
	Carrier      *verify.CarrierInfo
	VerifyReason string
	Candidates   []models.Load
	Selected     *models.Load
	Negotiation  *negotiation.Record
	Outcome      string
	StartedAt    time.Time
	EndedAt      time.Time
}

// snapshotLocked copies the session's observable state. Caller holds mu.
func (s *session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		CallID:       s.callID,
		State:        s.state,
		AuthorityID:  s.authorityID,
		VerifyReason: s.verifyReason,
		Outcome:      s.outcome,
		StartedAt:    s.startedAt,
		EndedAt:      s.endedAt,
	}
	if s.carrier != nil {
		c := *s.carrier
		snap.Carrier = &c
	}
	if len(s.candidates) > 0 {
		snap.Candidates = make([]models.Load, len(s.candidates))
		copy(snap.Candidates, s.candidates)
	}
	if s.selected != nil {
		sel := *s.selected
		snap.Selected = &sel
	}
	if s.negotiation != nil {
		n := *s.negotiation
		n.Offers = make([]negotiation.Offer, len(s.negotiation.Offers))
		copy(n.Offers, s.negotiation.Offers)
		snap.Negotiation = &n
	}
	return snap
}

// hasCandidate reports whether loadID is in the accumulated candidate
// list. Caller holds mu.
func (s *session) hasCandidate(loadID string) (*models.Load, bool) {
	for i := range s.candidates {
		if s.candidates[i].LoadID == loadID {
			return &s.candidates[i], true
		}
	}
	return nil, false
}

// mergeCandidates appends loads not already in the candidate list. The
// list is append-only so selections made against an earlier search stay
// valid after a re-search.
func (s *session) mergeCandidates(loads []models.Load) {
	for _, l := range loads {
		if _, ok := s.hasCandidate(l.LoadID); !ok {
			s.candidates = append(s.candidates, l)
		}
	}
}
