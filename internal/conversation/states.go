package conversation

import "errors"

// State is the phase of one inbound call.
type State string

// Call states. VERIFICATION_FAILED, NO_MATCH, NEGOTIATION_FAILED, and
// BOOKED are pre-terminal funnels into ENDED; ENDED is terminal.
const (
	StateStarted            State = "STARTED"
	StateVerifying          State = "VERIFYING"
	StateVerified           State = "VERIFIED"
	StateSearching          State = "SEARCHING"
	StateMatched            State = "MATCHED"
	StateNoMatch            State = "NO_MATCH"
	StateNegotiating        State = "NEGOTIATING"
	StateBooked             State = "BOOKED"
	StateVerificationFailed State = "VERIFICATION_FAILED"
	StateNegotiationFailed  State = "NEGOTIATION_FAILED"
	StateEnded              State = "ENDED"
)

// Call outcomes, set exactly once on the terminal transition.
const (
	OutcomeBooked             = "booked"
	OutcomeNoMatch            = "no-match"
	OutcomeVerificationFailed = "verification-failed"
	OutcomeNegotiationFailed  = "negotiation-failed"
	OutcomeAbandoned          = "abandoned"
)

// ErrInvalidTransition is returned when an event is not valid for the
// call's current state. The state is left unchanged; events are never
// silently ignored.
var ErrInvalidTransition = errors.New("conversation: invalid transition")

// validTransitions maps each state to its valid next states. The special
// case "any non-terminal → ENDED" (forced end-call) is handled in
// canTransition.
var validTransitions = map[State][]State{
	StateStarted:            {StateVerifying},
	StateVerifying:          {StateVerified, StateVerificationFailed},
	StateVerified:           {StateSearching},
	StateSearching:          {StateMatched, StateNoMatch},
	StateMatched:            {StateNegotiating, StateSearching},
	StateNegotiating:        {StateBooked, StateNegotiationFailed},
	StateBooked:             {StateEnded},
	StateNoMatch:            {StateEnded},
	StateVerificationFailed: {StateEnded},
	StateNegotiationFailed:  {StateEnded},
}

// canTransition checks whether a state transition is allowed.
func canTransition(from, to State) bool {
	if to == StateEnded {
		return from != StateEnded
	}
	for _, v := range validTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// terminal reports whether a state is the terminal ENDED state.
func terminal(s State) bool {
	return s == StateEnded
}

// outcomeForForcedEnd derives the call outcome when an end-call event
// forces termination. Pre-terminal funnels keep their natural outcome;
// everything else was cut short by the caller.
func outcomeForForcedEnd(from State) string {
	switch from {
	case StateBooked:
		return OutcomeBooked
	case StateNoMatch:
		return OutcomeNoMatch
	case StateVerificationFailed:
		return OutcomeVerificationFailed
	case StateNegotiationFailed:
		return OutcomeNegotiationFailed
	default:
		return OutcomeAbandoned
	}
}
