// Package conversation drives the call state machine for inbound carrier
// sales calls: verification, load search, selection, negotiation, and
// booking. The Manager owns all live sessions; every state transition
// goes through it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/loadline/loadline/internal/matching"
	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/negotiation"
	"github.com/loadline/loadline/internal/notify"
	"github.com/loadline/loadline/internal/rate"
	"github.com/loadline/loadline/internal/records"
	"github.com/loadline/loadline/internal/verify"
)

var (
	// ErrUnknownCall is returned for events against a call ID the
	// manager has never seen.
	ErrUnknownCall = errors.New("conversation: unknown call")

	// ErrDuplicateCall is returned when Begin is given a call ID that
	// already has a session.
	ErrDuplicateCall = errors.New("conversation: duplicate call")

	// ErrInvalidSelection is returned when a carrier selects a load that
	// was never presented during this call. The call stays in MATCHED.
	ErrInvalidSelection = errors.New("conversation: invalid selection")
)

const (
	defaultGatewayTimeout = 10 * time.Second
	defaultSearchTimeout  = 5 * time.Second
	notifyTimeout         = 10 * time.Second
)

// Manager runs the call state machine. Events for the same call are
// serialized; events for different calls run concurrently. Safe for
// concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	gateway   verify.Gateway
	matcher   *matching.Matcher
	engine    *negotiation.Engine
	sink      records.Sink
	notifiers []notify.Notifier

	gatewayTimeout time.Duration
	searchTimeout  time.Duration
}

// Opts configures a Manager. Gateway, Matcher, Engine, and Sink are
// required; Notifiers are optional and best effort.
type Opts struct {
	Gateway   verify.Gateway
	Matcher   *matching.Matcher
	Engine    *negotiation.Engine
	Sink      records.Sink
	Notifiers []notify.Notifier

	GatewayTimeout time.Duration
	SearchTimeout  time.Duration
}

// NewManager creates a Manager after validating its dependencies.
func NewManager(opts Opts) (*Manager, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("conversation: gateway is required")
	}
	if opts.Matcher == nil {
		return nil, fmt.Errorf("conversation: matcher is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("conversation: negotiation engine is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("conversation: record sink is required")
	}
	if opts.GatewayTimeout == 0 {
		opts.GatewayTimeout = defaultGatewayTimeout
	}
	if opts.SearchTimeout == 0 {
		opts.SearchTimeout = defaultSearchTimeout
	}
	return &Manager{
		sessions:       make(map[string]*session),
		gateway:        opts.Gateway,
		matcher:        opts.Matcher,
		engine:         opts.Engine,
		sink:           opts.Sink,
		notifiers:      opts.Notifiers,
		gatewayTimeout: opts.GatewayTimeout,
		searchTimeout:  opts.SearchTimeout,
	}, nil
}

// Begin creates a session for a new inbound call and moves it to
// VERIFYING, ready for the carrier's authority number.
func (m *Manager) Begin(callID string) (*Snapshot, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return nil, fmt.Errorf("conversation: call ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[callID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCall, callID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		callID:    callID,
		state:     StateStarted,
		startedAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.state = StateVerifying
	m.sessions[callID] = s
	return s.snapshotLocked(), nil
}

// Snapshot returns the current observable state of a call. Sessions are
// kept after they end so terminal calls stay queryable.
func (m *Manager) Snapshot(callID string) (*Snapshot, error) {
	s, err := m.get(callID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Verify checks the carrier's operating authority against the gateway.
// A positive result moves the call to VERIFIED; a negative result or an
// unreachable gateway fails verification and ends the call. The gateway
// round trip runs outside the session's state lock so a forced End can
// cut it short; when that happens the result is discarded and the ended
// snapshot is returned.
func (m *Manager) Verify(ctx context.Context, callID, authorityID string) (*Snapshot, error) {
	authorityID = strings.TrimSpace(authorityID)
	if authorityID == "" {
		return nil, fmt.Errorf("conversation: authority ID is required")
	}
	s, err := m.get(callID)
	if err != nil {
		return nil, err
	}
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if !canTransition(s.state, StateVerified) {
		defer s.mu.Unlock()
		return nil, transitionError(s.state, "verify")
	}
	s.authorityID = authorityID
	s.mu.Unlock()

	vctx, cancel := context.WithTimeout(s.ctx, m.gatewayTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	res, gerr := m.gateway.Verify(vctx, authorityID)

	s.mu.Lock()
	if s.state != StateVerifying {
		// Forced end won the race; the gateway result no longer matters.
		defer s.mu.Unlock()
		return s.snapshotLocked(), nil
	}
	if gerr != nil {
		s.verifyReason = "verification service unavailable"
		if !errors.Is(gerr, verify.ErrGatewayUnavailable) {
			s.verifyReason = gerr.Error()
		}
		rec := m.finalizeLocked(s, StateVerificationFailed, OutcomeVerificationFailed)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		m.emit(rec)
		return snap, nil
	}
	if !res.Verified {
		s.verifyReason = res.Reason
		rec := m.finalizeLocked(s, StateVerificationFailed, OutcomeVerificationFailed)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		m.emit(rec)
		return snap, nil
	}

	s.carrier = res.Carrier
	s.state = StateVerified
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// Search runs a load search for the carrier's stated preferences. Valid
// from VERIFIED, and from MATCHED to let a carrier refine preferences;
// results accumulate, so earlier candidates stay selectable. An empty
// result on a call with no accumulated candidates ends the call with a
// no-match outcome. A search that times out or hits a storage error is
// treated as returning no loads.
func (m *Manager) Search(ctx context.Context, callID string, req matching.Request) (*Snapshot, error) {
	s, err := m.get(callID)
	if err != nil {
		return nil, err
	}
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	req, err = matching.Validate(req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !canTransition(s.state, StateSearching) {
		defer s.mu.Unlock()
		return nil, transitionError(s.state, "search")
	}
	s.state = StateSearching
	s.lastSearch = req
	s.mu.Unlock()

	sctx, cancel := context.WithTimeout(s.ctx, m.searchTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	loads, serr := m.matcher.Search(sctx, req)

	s.mu.Lock()
	if s.state != StateSearching {
		defer s.mu.Unlock()
		return s.snapshotLocked(), nil
	}
	if serr != nil {
		log.Printf("conversation: search for call %s failed, treating as no results: %v", s.callID, serr)
		loads = nil
	}
	s.mergeCandidates(loads)
	if len(s.candidates) == 0 {
		rec := m.finalizeLocked(s, StateNoMatch, OutcomeNoMatch)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		m.emit(rec)
		return snap, nil
	}
	s.state = StateMatched
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// SelectLoad opens a negotiation on one of the presented loads at its
// listed rate. Selecting a load that was never presented is rejected and
// the call stays in MATCHED.
func (m *Manager) SelectLoad(callID, loadID string) (*Snapshot, error) {
	s, err := m.get(callID)
	if err != nil {
		return nil, err
	}
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, StateNegotiating) {
		return nil, transitionError(s.state, "select")
	}
	load, ok := s.hasCandidate(loadID)
	if !ok {
		return nil, fmt.Errorf("%w: load %q was not presented during this call", ErrInvalidSelection, loadID)
	}
	rec, err := negotiation.NewRecord(load.LoadID, load.TotalRateCents)
	if err != nil {
		return nil, err
	}
	selected := *load
	s.selected = &selected
	s.negotiation = rec
	s.state = StateNegotiating
	return s.snapshotLocked(), nil
}

// Offer evaluates one carrier offer against the negotiation policy. An
// acceptable offer books the load and ends the call; a counter keeps the
// negotiation open; exhausting the round limit fails it. Invalid offers
// return an error and change nothing.
func (m *Manager) Offer(callID string, amount rate.Cents) (*negotiation.Decision, *Snapshot, error) {
	s, err := m.get(callID)
	if err != nil {
		return nil, nil, err
	}
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if !canTransition(s.state, StateBooked) {
		defer s.mu.Unlock()
		return nil, nil, transitionError(s.state, "offer")
	}
	dec, err := m.engine.Evaluate(s.negotiation, amount)
	if err != nil {
		defer s.mu.Unlock()
		return nil, nil, err
	}

	switch dec.Outcome {
	case negotiation.OutcomeAccept:
		rec := m.finalizeLocked(s, StateBooked, OutcomeBooked)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		m.emit(rec)
		return dec, snap, nil
	case negotiation.OutcomeRoundLimit:
		rec := m.finalizeLocked(s, StateNegotiationFailed, OutcomeNegotiationFailed)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		m.emit(rec)
		return dec, snap, nil
	default:
		defer s.mu.Unlock()
		return dec, s.snapshotLocked(), nil
	}
}

// RejectCounter records that the carrier walked away from the current
// counter-offer, failing the negotiation and ending the call.
func (m *Manager) RejectCounter(callID string) (*Snapshot, error) {
	s, err := m.get(callID)
	if err != nil {
		return nil, err
	}
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if !canTransition(s.state, StateNegotiationFailed) {
		defer s.mu.Unlock()
		return nil, transitionError(s.state, "reject")
	}
	if err := m.engine.Reject(s.negotiation); err != nil {
		defer s.mu.Unlock()
		return nil, err
	}
	rec := m.finalizeLocked(s, StateNegotiationFailed, OutcomeNegotiationFailed)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	m.emit(rec)
	return snap, nil
}

// End forces the call to its terminal state from wherever it is. It
// deliberately skips the event lock so it can land while another event
// is blocked on gateway or storage I/O; that event's result is then
// discarded. Ending an already-ended call is an invalid transition.
func (m *Manager) End(callID string) (*Snapshot, error) {
	s, err := m.get(callID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if terminal(s.state) {
		defer s.mu.Unlock()
		return nil, transitionError(s.state, "end")
	}
	outcome := outcomeForForcedEnd(s.state)
	rec := m.finalizeLocked(s, s.state, outcome)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	m.emit(rec)
	return snap, nil
}

// get looks up a session by call ID.
func (m *Manager) get(callID string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCall, callID)
	}
	return s, nil
}

// finalizeLocked moves the session through its pre-terminal state into
// ENDED, builds the immutable call record, and detaches the negotiation.
// Caller holds s.mu and is responsible for emitting the returned record
// after releasing it.
func (m *Manager) finalizeLocked(s *session, finalState State, outcome string) *models.CallRecord {
	now := time.Now().UTC()
	s.state = finalState
	s.finalState = finalState
	s.outcome = outcome
	s.endedAt = now

	rec := buildRecord(s, now)

	s.state = StateEnded
	s.negotiation = nil
	s.cancel()
	return rec
}

// emit persists the terminal call record and fans the outcome out to the
// configured notifiers. Persistence failures are logged, not returned:
// the call is already over and the state machine must not regress.
func (m *Manager) emit(rec *models.CallRecord) {
	if err := m.sink.Append(rec); err != nil {
		log.Printf("conversation: record append for call %s failed: %v", rec.CallID, err)
	}

	ev := notify.Event{
		CallID:      rec.CallID,
		Outcome:     rec.Outcome,
		CarrierName: rec.CarrierName,
		LoadID:      rec.SelectedLoadID,
		FinalRate:   rec.FinalRateCents,
		Rounds:      rec.NegotiationRounds,
	}
	for _, n := range m.notifiers {
		go func(n notify.Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := n.Send(ctx, ev); err != nil {
				log.Printf("conversation: notify for call %s failed: %v", rec.CallID, err)
			}
		}(n)
	}
}

func transitionError(from State, event string) error {
	return fmt.Errorf("%w: %s not valid in state %s", ErrInvalidTransition, event, from)
}
