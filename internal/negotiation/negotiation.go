// Package negotiation implements the bounded counter-offer policy for a
// selected load.
package negotiation

import (
	"errors"
	"fmt"

	"github.com/loadline/loadline/internal/config"
	"github.com/loadline/loadline/internal/rate"
)

// Errors returned by Evaluate and Reject. State is never mutated when an
// error is returned.
var (
	ErrInvalidOffer      = errors.New("negotiation: invalid offer")
	ErrNegotiationClosed = errors.New("negotiation: already closed")
)

// Negotiation record statuses.
const (
	StatusOpen               = "open"
	StatusAccepted           = "accepted"
	StatusRejected           = "rejected"
	StatusRoundLimitExceeded = "round_limit_exceeded"
)

// Offer actors.
const (
	ActorCarrier = "carrier"
	ActorSystem  = "system"
)

// Decision outcomes.
const (
	OutcomeAccept     = "accept"
	OutcomeCounter    = "counter"
	OutcomeRoundLimit = "round_limit"
)

// Offer is one entry in a negotiation's audit trail.
type Offer struct {
	Actor  string     `json:"actor"`
	Amount rate.Cents `json:"amount"`
	Round  int        `json:"round"`
}

// Record is one negotiation over one load within one call. ListedRate is
// copied at negotiation start and never refreshed from the catalog.
type Record struct {
	LoadID     string
	ListedRate rate.Cents
	Round      int
	Offers     []Offer
	Status     string
	FinalRate  rate.Cents // set only when Status == accepted
}

// NewRecord opens a negotiation for a load at its listed rate.
func NewRecord(loadID string, listedRate rate.Cents) (*Record, error) {
	if loadID == "" {
		return nil, fmt.Errorf("negotiation: load ID is required")
	}
	if listedRate <= 0 {
		return nil, fmt.Errorf("negotiation: listed rate must be positive, got %s", listedRate)
	}
	return &Record{
		LoadID:     loadID,
		ListedRate: listedRate,
		Round:      1,
		Status:     StatusOpen,
	}, nil
}

// Closed reports whether the negotiation has reached a terminal status.
func (r *Record) Closed() bool {
	return r.Status != StatusOpen
}

// Decision is the engine's verdict for one carrier offer.
type Decision struct {
	Outcome string
	Counter rate.Cents // set only when Outcome == counter
	Final   rate.Cents // set only when Outcome == accept
	Round   int        // round the decision was made in
}

// Engine evaluates carrier offers against a validated policy. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	maxRounds      int
	minAcceptRatio float64
	targetRatio    float64
	concessionStep float64
}

// NewEngine creates an Engine from negotiation configuration. The
// configuration must already satisfy config validation; NewEngine
// re-checks the bounds so the engine is safe to construct directly in
// tests.
func NewEngine(cfg config.NegotiationConfig) (*Engine, error) {
	if cfg.MaxRounds < 1 {
		return nil, fmt.Errorf("negotiation: max rounds must be at least 1, got %d", cfg.MaxRounds)
	}
	if cfg.MinAcceptableRatio <= 0 || cfg.MinAcceptableRatio > 1 {
		return nil, fmt.Errorf("negotiation: min acceptable ratio must be in (0, 1], got %v", cfg.MinAcceptableRatio)
	}
	if cfg.TargetRatio < cfg.MinAcceptableRatio || cfg.TargetRatio > 1 {
		return nil, fmt.Errorf("negotiation: target ratio must be in [min ratio, 1], got %v", cfg.TargetRatio)
	}
	if cfg.ConcessionStep <= 0 {
		return nil, fmt.Errorf("negotiation: concession step must be positive, got %v", cfg.ConcessionStep)
	}
	return &Engine{
		maxRounds:      cfg.MaxRounds,
		minAcceptRatio: cfg.MinAcceptableRatio,
		targetRatio:    cfg.TargetRatio,
		concessionStep: cfg.ConcessionStep,
	}, nil
}

// Floor returns the acceptance floor for a listed rate: the minimum the
// engine accepts without further negotiation.
func (e *Engine) Floor(listed rate.Cents) rate.Cents {
	return listed.Mul(e.minAcceptRatio)
}

// MaxRounds returns the configured round limit.
func (e *Engine) MaxRounds() int {
	return e.maxRounds
}

// Evaluate processes one carrier offer against the record:
// at or above the acceptance floor the offer is accepted immediately;
// below it, the engine counters until the round limit is reached. The
// counter starts from targetRatio × listed and concedes by
// concessionStep × listed per round, clamped at the floor, so the
// counter sequence never increases.
func (e *Engine) Evaluate(rec *Record, offer rate.Cents) (*Decision, error) {
	if rec == nil {
		return nil, fmt.Errorf("negotiation: record is required")
	}
	if rec.Closed() {
		return nil, fmt.Errorf("%w: status %s", ErrNegotiationClosed, rec.Status)
	}
	if offer <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOffer, offer)
	}

	round := rec.Round
	floor := e.Floor(rec.ListedRate)

	if offer >= floor {
		rec.Offers = append(rec.Offers, Offer{Actor: ActorCarrier, Amount: offer, Round: round})
		rec.Status = StatusAccepted
		rec.FinalRate = offer
		return &Decision{Outcome: OutcomeAccept, Final: offer, Round: round}, nil
	}

	if round >= e.maxRounds {
		rec.Offers = append(rec.Offers, Offer{Actor: ActorCarrier, Amount: offer, Round: round})
		rec.Status = StatusRoundLimitExceeded
		return &Decision{Outcome: OutcomeRoundLimit, Round: round}, nil
	}

	ratio := e.targetRatio - e.concessionStep*float64(round-1)
	counter := rec.ListedRate.Mul(ratio)
	if counter < floor {
		counter = floor
	}

	rec.Offers = append(rec.Offers,
		Offer{Actor: ActorCarrier, Amount: offer, Round: round},
		Offer{Actor: ActorSystem, Amount: counter, Round: round},
	)
	rec.Round = round + 1
	return &Decision{Outcome: OutcomeCounter, Counter: counter, Round: round}, nil
}

// Reject closes the negotiation after the carrier explicitly declines a
// system counter.
func (e *Engine) Reject(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("negotiation: record is required")
	}
	if rec.Closed() {
		return fmt.Errorf("%w: status %s", ErrNegotiationClosed, rec.Status)
	}
	rec.Status = StatusRejected
	return nil
}
