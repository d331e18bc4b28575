package conversation

import (
	"encoding/json"
	"time"

	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/negotiation"
)

// buildRecord assembles the immutable call record at the terminal
// transition. Caller holds s.mu; the session's negotiation, if any, is
// still attached.
func buildRecord(s *session, endedAt time.Time) *models.CallRecord {
	rec := &models.CallRecord{
		CallID:      s.callID,
		AuthorityID: s.authorityID,

		FinalState: string(s.finalState),
		Outcome:    s.outcome,

		EquipmentType:    s.lastSearch.EquipmentType,
		OriginCity:       s.lastSearch.OriginCity,
		OriginState:      s.lastSearch.OriginState,
		DestinationCity:  s.lastSearch.DestinationCity,
		DestinationState: s.lastSearch.DestinationState,

		StartedAt: s.startedAt,
		EndedAt:   endedAt,
	}
	if s.carrier != nil {
		rec.CarrierName = s.carrier.Name
		rec.CarrierStatus = s.carrier.Status
		rec.AuthorityType = s.carrier.AuthorityType
	}
	if len(s.candidates) > 0 {
		ids := make([]string, len(s.candidates))
		for i, l := range s.candidates {
			ids[i] = l.LoadID
		}
		rec.CandidateLoadIDs = marshalJSON(ids)
	}
	if n := s.negotiation; n != nil {
		rec.SelectedLoadID = n.LoadID
		rec.ListedRateCents = n.ListedRate
		rec.FinalRateCents = n.FinalRate
		rec.NegotiationStatus = n.Status
		rec.NegotiationRounds = carrierOfferCount(n)
		rec.Offers = marshalJSON(n.Offers)
	}

	rec.Sentiment = deriveSentiment(rec.Outcome)
	rec.RateSensitivity = deriveRateSensitivity(rec.NegotiationRounds)
	rec.NegotiationAggressiveness = deriveAggressiveness(s.negotiation)
	return rec
}

// marshalJSON renders audit fields for storage. The inputs are plain
// slices of strings and structs, which cannot fail to marshal.
func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// carrierOfferCount is the number of offers the carrier made, which is
// the number of negotiation rounds actually played.
func carrierOfferCount(n *negotiation.Record) int {
	count := 0
	for _, o := range n.Offers {
		if o.Actor == negotiation.ActorCarrier {
			count++
		}
	}
	return count
}

// deriveSentiment classifies the call for the dashboard: a booking is
// positive, a caller hang-up is neutral, every failure path is negative.
func deriveSentiment(outcome string) string {
	switch outcome {
	case OutcomeBooked:
		return "positive"
	case OutcomeAbandoned:
		return "neutral"
	default:
		return "negative"
	}
}

// deriveRateSensitivity classifies how hard the carrier pushed on price
// by how many rounds the negotiation ran.
func deriveRateSensitivity(rounds int) string {
	switch {
	case rounds == 0:
		return "unknown"
	case rounds == 1:
		return "low"
	case rounds == 2:
		return "medium"
	default:
		return "high"
	}
}

// deriveAggressiveness classifies the carrier's opening position by how
// far below the listed rate their first offer landed.
func deriveAggressiveness(n *negotiation.Record) string {
	if n == nil || n.ListedRate <= 0 {
		return "unknown"
	}
	var first int64 = -1
	for _, o := range n.Offers {
		if o.Actor == negotiation.ActorCarrier {
			first = int64(o.Amount)
			break
		}
	}
	if first < 0 {
		return "unknown"
	}
	gapPct := float64(int64(n.ListedRate)-first) / float64(n.ListedRate) * 100
	switch {
	case gapPct > 15:
		return "aggressive"
	case gapPct > 5:
		return "moderate"
	default:
		return "conservative"
	}
}
