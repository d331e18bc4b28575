package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/loadline/loadline/internal/config"
	"github.com/loadline/loadline/internal/db"
	"github.com/loadline/loadline/internal/matching"
	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/negotiation"
	"github.com/loadline/loadline/internal/notify"
	"github.com/loadline/loadline/internal/rate"
	"github.com/loadline/loadline/internal/records"
	"github.com/loadline/loadline/internal/verify"
)

type fixture struct {
	mgr      *Manager
	gateway  *verify.Mock
	sink     *records.MemorySink
	notifier *notify.Mock
}

func newFixture(t *testing.T, loads []models.Load) *fixture {
	t.Helper()

	gdb, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for i := range loads {
		if err := gdb.Create(&loads[i]).Error; err != nil {
			t.Fatalf("create load %s: %v", loads[i].LoadID, err)
		}
	}

	matcher, err := matching.New(matching.Opts{DB: gdb})
	if err != nil {
		t.Fatalf("matching.New: %v", err)
	}
	engine, err := negotiation.NewEngine(config.NegotiationConfig{
		MaxRounds:          3,
		MinAcceptableRatio: 0.90,
		TargetRatio:        0.97,
		ConcessionStep:     0.03,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	gw := verify.NewMock()
	gw.SetResult("MC100", &verify.Result{
		Verified: true,
		Carrier:  &verify.CarrierInfo{Name: "Lone Star Freight", Status: "active", AuthorityType: "common"},
	})
	sink := records.NewMemorySink()
	notifier := notify.NewMock()
	if err := notifier.Connect(context.Background()); err != nil {
		t.Fatalf("notifier.Connect: %v", err)
	}

	mgr, err := NewManager(Opts{
		Gateway:   gw,
		Matcher:   matcher,
		Engine:    engine,
		Sink:      sink,
		Notifiers: []notify.Notifier{notifier},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &fixture{mgr: mgr, gateway: gw, sink: sink, notifier: notifier}
}

func testLoads() []models.Load {
	pickup := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	return []models.Load{
		{
			LoadID:           "LD-1001",
			OriginCity:       "Dallas",
			OriginState:      "TX",
			DestinationCity:  "Atlanta",
			DestinationState: "GA",
			PickupDate:       pickup,
			DeliveryDate:     pickup.Add(48 * time.Hour),
			EquipmentType:    "Dry Van",
			Weight:           42000,
			Miles:            925,
			RatePerMileCents: 108,
			TotalRateCents:   rate.Cents(100000),
			IsActive:         true,
		},
		{
			LoadID:           "LD-1002",
			OriginCity:       "Houston",
			OriginState:      "TX",
			DestinationCity:  "Memphis",
			DestinationState: "TN",
			PickupDate:       pickup.Add(24 * time.Hour),
			DeliveryDate:     pickup.Add(72 * time.Hour),
			EquipmentType:    "Dry Van",
			Weight:           38000,
			Miles:            570,
			RatePerMileCents: 149,
			TotalRateCents:   rate.Cents(85000),
			IsActive:         true,
		},
	}
}

func dallasVanSearch() matching.Request {
	return matching.Request{OriginCity: "Dallas", OriginState: "TX", EquipmentType: "van"}
}

// toMatched walks a call through verification and search to MATCHED.
func toMatched(t *testing.T, f *fixture, callID string) {
	t.Helper()
	if _, err := f.mgr.Begin(callID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.mgr.Verify(context.Background(), callID, "MC100"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	snap, err := f.mgr.Search(context.Background(), callID, dallasVanSearch())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if snap.State != StateMatched {
		t.Fatalf("state after search = %s, want MATCHED", snap.State)
	}
}

// toNegotiating additionally selects the top candidate.
func toNegotiating(t *testing.T, f *fixture, callID string) {
	t.Helper()
	toMatched(t, f, callID)
	snap, err := f.mgr.SelectLoad(callID, "LD-1001")
	if err != nil {
		t.Fatalf("SelectLoad: %v", err)
	}
	if snap.State != StateNegotiating {
		t.Fatalf("state after select = %s, want NEGOTIATING", snap.State)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBeginStartsVerifying(t *testing.T) {
	f := newFixture(t, nil)

	snap, err := f.mgr.Begin("call-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if snap.State != StateVerifying {
		t.Errorf("state = %s, want VERIFYING", snap.State)
	}
	if snap.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}

	if _, err := f.mgr.Begin("call-1"); !errors.Is(err, ErrDuplicateCall) {
		t.Errorf("duplicate Begin error = %v, want ErrDuplicateCall", err)
	}
	if _, err := f.mgr.Begin("  "); err == nil {
		t.Error("expected error for blank call ID")
	}
}

func TestEventsOnUnknownCall(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.mgr.Verify(context.Background(), "nope", "MC100"); !errors.Is(err, ErrUnknownCall) {
		t.Errorf("Verify error = %v, want ErrUnknownCall", err)
	}
	if _, err := f.mgr.End("nope"); !errors.Is(err, ErrUnknownCall) {
		t.Errorf("End error = %v, want ErrUnknownCall", err)
	}
	if _, err := f.mgr.Snapshot("nope"); !errors.Is(err, ErrUnknownCall) {
		t.Errorf("Snapshot error = %v, want ErrUnknownCall", err)
	}
}

func TestVerifyPositive(t *testing.T) {
	f := newFixture(t, nil)
	f.mgr.Begin("call-1")

	snap, err := f.mgr.Verify(context.Background(), "call-1", "MC100")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if snap.State != StateVerified {
		t.Errorf("state = %s, want VERIFIED", snap.State)
	}
	if snap.Carrier == nil || snap.Carrier.Name != "Lone Star Freight" {
		t.Errorf("carrier = %+v, want Lone Star Freight", snap.Carrier)
	}
	if len(f.sink.Records()) != 0 {
		t.Error("no record should exist before the call ends")
	}
}

func TestVerifyNegativeEndsCall(t *testing.T) {
	f := newFixture(t, nil)
	f.mgr.Begin("call-1")

	snap, err := f.mgr.Verify(context.Background(), "call-1", "MC404")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if snap.State != StateEnded {
		t.Errorf("state = %s, want ENDED", snap.State)
	}
	if snap.Outcome != OutcomeVerificationFailed {
		t.Errorf("outcome = %q, want %q", snap.Outcome, OutcomeVerificationFailed)
	}
	if snap.VerifyReason == "" {
		t.Error("verification failure should carry a reason")
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].FinalState != string(StateVerificationFailed) {
		t.Errorf("FinalState = %q, want VERIFICATION_FAILED", recs[0].FinalState)
	}
	if recs[0].AuthorityID != "MC404" {
		t.Errorf("AuthorityID = %q, want MC404", recs[0].AuthorityID)
	}
}

func TestVerifyGatewayUnavailableFailsVerification(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.Err = verify.ErrGatewayUnavailable
	f.mgr.Begin("call-1")

	snap, err := f.mgr.Verify(context.Background(), "call-1", "MC100")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if snap.State != StateEnded || snap.Outcome != OutcomeVerificationFailed {
		t.Errorf("state=%s outcome=%q, want ENDED/verification-failed", snap.State, snap.Outcome)
	}
	if snap.VerifyReason != "verification service unavailable" {
		t.Errorf("reason = %q, want service-unavailable wording", snap.VerifyReason)
	}
}

func TestSearchRanksAndAccumulates(t *testing.T) {
	f := newFixture(t, testLoads())
	f.mgr.Begin("call-1")
	f.mgr.Verify(context.Background(), "call-1", "MC100")

	snap, err := f.mgr.Search(context.Background(), "call-1", dallasVanSearch())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if snap.State != StateMatched {
		t.Fatalf("state = %s, want MATCHED", snap.State)
	}
	if len(snap.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(snap.Candidates))
	}
	if snap.Candidates[0].LoadID != "LD-1001" {
		t.Errorf("top candidate = %s, want exact-city LD-1001", snap.Candidates[0].LoadID)
	}

	// A refinement that matches nothing keeps the call in MATCHED with
	// the earlier candidates still selectable.
	snap, err = f.mgr.Search(context.Background(), "call-1", matching.Request{
		OriginState: "MT", EquipmentType: "Dry Van",
	})
	if err != nil {
		t.Fatalf("re-search: %v", err)
	}
	if snap.State != StateMatched {
		t.Errorf("state after empty re-search = %s, want MATCHED", snap.State)
	}
	if len(snap.Candidates) != 2 {
		t.Errorf("candidates after empty re-search = %d, want 2", len(snap.Candidates))
	}
}

func TestSearchNoResultsEndsCall(t *testing.T) {
	f := newFixture(t, testLoads())
	f.mgr.Begin("call-1")
	f.mgr.Verify(context.Background(), "call-1", "MC100")

	snap, err := f.mgr.Search(context.Background(), "call-1", matching.Request{
		OriginState: "TX", EquipmentType: "flatbed",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if snap.State != StateEnded || snap.Outcome != OutcomeNoMatch {
		t.Errorf("state=%s outcome=%q, want ENDED/no-match", snap.State, snap.Outcome)
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].EquipmentType != "Flatbed" {
		t.Errorf("recorded equipment = %q, want normalized Flatbed", recs[0].EquipmentType)
	}
}

func TestSearchInvalidInputKeepsState(t *testing.T) {
	f := newFixture(t, testLoads())
	f.mgr.Begin("call-1")
	f.mgr.Verify(context.Background(), "call-1", "MC100")

	_, err := f.mgr.Search(context.Background(), "call-1", matching.Request{
		OriginState: "TX", EquipmentType: "hovercraft",
	})
	if !errors.Is(err, matching.ErrInvalidEquipment) {
		t.Fatalf("error = %v, want ErrInvalidEquipment", err)
	}
	snap, _ := f.mgr.Snapshot("call-1")
	if snap.State != StateVerified {
		t.Errorf("state = %s, want VERIFIED unchanged", snap.State)
	}
}

func TestSelectLoadOpensNegotiationAtListedRate(t *testing.T) {
	f := newFixture(t, testLoads())
	toMatched(t, f, "call-1")

	snap, err := f.mgr.SelectLoad("call-1", "LD-1001")
	if err != nil {
		t.Fatalf("SelectLoad: %v", err)
	}
	if snap.State != StateNegotiating {
		t.Errorf("state = %s, want NEGOTIATING", snap.State)
	}
	if snap.Negotiation == nil {
		t.Fatal("negotiation not attached")
	}
	if snap.Negotiation.ListedRate != rate.Cents(100000) {
		t.Errorf("listed rate = %s, want 100000 cents", snap.Negotiation.ListedRate)
	}
	if snap.Negotiation.Round != 1 {
		t.Errorf("round = %d, want 1", snap.Negotiation.Round)
	}
}

func TestSelectUnknownLoadRejected(t *testing.T) {
	f := newFixture(t, testLoads())
	toMatched(t, f, "call-1")

	_, err := f.mgr.SelectLoad("call-1", "LD-9999")
	if !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("error = %v, want ErrInvalidSelection", err)
	}
	snap, _ := f.mgr.Snapshot("call-1")
	if snap.State != StateMatched {
		t.Errorf("state = %s, want MATCHED unchanged", snap.State)
	}
	if snap.Negotiation != nil {
		t.Error("no negotiation should be open after a rejected selection")
	}
}

func TestOfferCounterThenAcceptBooksLoad(t *testing.T) {
	f := newFixture(t, testLoads())
	toNegotiating(t, f, "call-1")

	// Listed $1000.00, floor $900.00: a first offer of $850.00 draws the
	// round-1 counter at 97% of listed.
	dec, snap, err := f.mgr.Offer("call-1", rate.Cents(85000))
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if dec.Outcome != negotiation.OutcomeCounter {
		t.Fatalf("outcome = %q, want counter", dec.Outcome)
	}
	if dec.Counter != rate.Cents(97000) {
		t.Errorf("counter = %s, want 97000 cents", dec.Counter)
	}
	if snap.State != StateNegotiating {
		t.Errorf("state = %s, want NEGOTIATING", snap.State)
	}
	if snap.Negotiation.Round != 2 {
		t.Errorf("round = %d, want 2", snap.Negotiation.Round)
	}

	// Meeting the floor on round 2 books at the offered amount.
	dec, snap, err = f.mgr.Offer("call-1", rate.Cents(90000))
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if dec.Outcome != negotiation.OutcomeAccept {
		t.Fatalf("outcome = %q, want accept", dec.Outcome)
	}
	if snap.State != StateEnded || snap.Outcome != OutcomeBooked {
		t.Errorf("state=%s outcome=%q, want ENDED/booked", snap.State, snap.Outcome)
	}
	if snap.Negotiation != nil {
		t.Error("negotiation must detach once the call leaves NEGOTIATING")
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.FinalRateCents != rate.Cents(90000) {
		t.Errorf("final rate = %s, want 90000 cents", rec.FinalRateCents)
	}
	if rec.NegotiationRounds != 2 {
		t.Errorf("rounds = %d, want 2", rec.NegotiationRounds)
	}
	if rec.NegotiationStatus != negotiation.StatusAccepted {
		t.Errorf("status = %q, want accepted", rec.NegotiationStatus)
	}
	if rec.Sentiment != "positive" || rec.RateSensitivity != "medium" {
		t.Errorf("analytics = %q/%q, want positive/medium", rec.Sentiment, rec.RateSensitivity)
	}
	if rec.NegotiationAggressiveness != "moderate" {
		t.Errorf("aggressiveness = %q, want moderate for a 15%% opening gap", rec.NegotiationAggressiveness)
	}

	var offers []negotiation.Offer
	if err := json.Unmarshal([]byte(rec.Offers), &offers); err != nil {
		t.Fatalf("offers JSON: %v", err)
	}
	if len(offers) != 3 {
		t.Errorf("audit trail entries = %d, want 3 (offer, counter, offer)", len(offers))
	}

	waitFor(t, "notifier delivery", func() bool { return len(f.notifier.Sent()) == 1 })
	ev := f.notifier.Sent()[0]
	if ev.Outcome != OutcomeBooked || ev.LoadID != "LD-1001" || ev.FinalRate != rate.Cents(90000) {
		t.Errorf("notify event = %+v", ev)
	}
}

func TestOfferRoundLimitFailsNegotiation(t *testing.T) {
	f := newFixture(t, testLoads())
	toNegotiating(t, f, "call-1")

	for _, amount := range []rate.Cents{80000, 81000} {
		dec, _, err := f.mgr.Offer("call-1", amount)
		if err != nil {
			t.Fatalf("Offer(%s): %v", amount, err)
		}
		if dec.Outcome != negotiation.OutcomeCounter {
			t.Fatalf("Offer(%s) outcome = %q, want counter", amount, dec.Outcome)
		}
	}

	dec, snap, err := f.mgr.Offer("call-1", rate.Cents(82000))
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if dec.Outcome != negotiation.OutcomeRoundLimit {
		t.Fatalf("outcome = %q, want round_limit", dec.Outcome)
	}
	if snap.State != StateEnded || snap.Outcome != OutcomeNegotiationFailed {
		t.Errorf("state=%s outcome=%q, want ENDED/negotiation-failed", snap.State, snap.Outcome)
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].NegotiationStatus != negotiation.StatusRoundLimitExceeded {
		t.Errorf("status = %q, want round_limit_exceeded", recs[0].NegotiationStatus)
	}
	if recs[0].RateSensitivity != "high" {
		t.Errorf("rate sensitivity = %q, want high after 3 rounds", recs[0].RateSensitivity)
	}
	if recs[0].NegotiationAggressiveness != "aggressive" {
		t.Errorf("aggressiveness = %q, want aggressive for a 20%% opening gap", recs[0].NegotiationAggressiveness)
	}
}

func TestInvalidOfferChangesNothing(t *testing.T) {
	f := newFixture(t, testLoads())
	toNegotiating(t, f, "call-1")

	_, _, err := f.mgr.Offer("call-1", 0)
	if !errors.Is(err, negotiation.ErrInvalidOffer) {
		t.Fatalf("error = %v, want ErrInvalidOffer", err)
	}
	snap, _ := f.mgr.Snapshot("call-1")
	if snap.State != StateNegotiating {
		t.Errorf("state = %s, want NEGOTIATING unchanged", snap.State)
	}
	if snap.Negotiation.Round != 1 || len(snap.Negotiation.Offers) != 0 {
		t.Errorf("negotiation mutated by invalid offer: %+v", snap.Negotiation)
	}
}

func TestRejectCounterFailsNegotiation(t *testing.T) {
	f := newFixture(t, testLoads())
	toNegotiating(t, f, "call-1")

	if _, _, err := f.mgr.Offer("call-1", rate.Cents(85000)); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	snap, err := f.mgr.RejectCounter("call-1")
	if err != nil {
		t.Fatalf("RejectCounter: %v", err)
	}
	if snap.State != StateEnded || snap.Outcome != OutcomeNegotiationFailed {
		t.Errorf("state=%s outcome=%q, want ENDED/negotiation-failed", snap.State, snap.Outcome)
	}
	recs := f.sink.Records()
	if len(recs) != 1 || recs[0].NegotiationStatus != negotiation.StatusRejected {
		t.Errorf("records = %+v, want one rejected record", recs)
	}
}

func TestForcedEndDerivesAbandoned(t *testing.T) {
	f := newFixture(t, testLoads())
	toNegotiating(t, f, "call-1")

	snap, err := f.mgr.End("call-1")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if snap.State != StateEnded || snap.Outcome != OutcomeAbandoned {
		t.Errorf("state=%s outcome=%q, want ENDED/abandoned", snap.State, snap.Outcome)
	}
	if snap.Negotiation != nil {
		t.Error("negotiation must detach on forced end")
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].FinalState != string(StateNegotiating) {
		t.Errorf("FinalState = %q, want NEGOTIATING", recs[0].FinalState)
	}
	if recs[0].NegotiationStatus != negotiation.StatusOpen {
		t.Errorf("status = %q, want open (cut off mid-negotiation)", recs[0].NegotiationStatus)
	}

	if _, err := f.mgr.End("call-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second End error = %v, want ErrInvalidTransition", err)
	}
}

func TestForcedEndDuringVerificationDiscardsResult(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.Block = make(chan struct{})
	f.mgr.Begin("call-1")

	done := make(chan *Snapshot, 1)
	go func() {
		snap, err := f.mgr.Verify(context.Background(), "call-1", "MC100")
		if err != nil {
			t.Errorf("Verify: %v", err)
		}
		done <- snap
	}()

	waitFor(t, "gateway call in flight", func() bool { return len(f.gateway.Calls()) == 1 })

	snap, err := f.mgr.End("call-1")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if snap.Outcome != OutcomeAbandoned {
		t.Errorf("outcome = %q, want abandoned", snap.Outcome)
	}

	close(f.gateway.Block)
	vsnap := <-done
	if vsnap.State != StateEnded {
		t.Errorf("verify returned state %s, want ENDED (result discarded)", vsnap.State)
	}

	recs := f.sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want exactly 1", len(recs))
	}
	if recs[0].FinalState != string(StateVerifying) || recs[0].Outcome != OutcomeAbandoned {
		t.Errorf("record = %s/%s, want VERIFYING/abandoned", recs[0].FinalState, recs[0].Outcome)
	}
	if recs[0].CarrierName != "" {
		t.Error("discarded verification must not leak carrier details into the record")
	}
}

func TestOutOfOrderEventsRejected(t *testing.T) {
	f := newFixture(t, testLoads())
	f.mgr.Begin("call-1")

	if _, err := f.mgr.Search(context.Background(), "call-1", dallasVanSearch()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Search before verify error = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.mgr.SelectLoad("call-1", "LD-1001"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SelectLoad before search error = %v, want ErrInvalidTransition", err)
	}
	if _, _, err := f.mgr.Offer("call-1", 90000); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Offer before negotiation error = %v, want ErrInvalidTransition", err)
	}
	snap, _ := f.mgr.Snapshot("call-1")
	if snap.State != StateVerifying {
		t.Errorf("state = %s, want VERIFYING unchanged", snap.State)
	}
}

// TestRandomEventSequences drives many calls through random event
// sequences and checks the structural invariants after every event: a
// negotiation is attached exactly while the call is NEGOTIATING, and a
// terminal call has exactly one record.
func TestRandomEventSequences(t *testing.T) {
	f := newFixture(t, testLoads())
	rng := rand.New(rand.NewSource(7))

	authorities := []string{"MC100", "MC404"}
	loadIDs := []string{"LD-1001", "LD-1002", "LD-9999"}
	amounts := []rate.Cents{0, 50000, 85000, 92000, 97000}

	for call := 0; call < 40; call++ {
		callID := fmt.Sprintf("fuzz-%d", call)
		if _, err := f.mgr.Begin(callID); err != nil {
			t.Fatalf("Begin %s: %v", callID, err)
		}
		before := len(f.sink.Records())

		for step := 0; step < 12; step++ {
			switch rng.Intn(6) {
			case 0:
				f.mgr.Verify(context.Background(), callID, authorities[rng.Intn(len(authorities))])
			case 1:
				f.mgr.Search(context.Background(), callID, dallasVanSearch())
			case 2:
				f.mgr.SelectLoad(callID, loadIDs[rng.Intn(len(loadIDs))])
			case 3:
				f.mgr.Offer(callID, amounts[rng.Intn(len(amounts))])
			case 4:
				f.mgr.RejectCounter(callID)
			case 5:
				f.mgr.End(callID)
			}

			snap, err := f.mgr.Snapshot(callID)
			if err != nil {
				t.Fatalf("Snapshot %s: %v", callID, err)
			}
			negotiating := snap.State == StateNegotiating
			if negotiating != (snap.Negotiation != nil) {
				t.Fatalf("call %s: state %s with negotiation=%v", callID, snap.State, snap.Negotiation != nil)
			}
			if terminal(snap.State) {
				break
			}
		}

		snap, _ := f.mgr.Snapshot(callID)
		if !terminal(snap.State) {
			if _, err := f.mgr.End(callID); err != nil {
				t.Fatalf("final End %s: %v", callID, err)
			}
		}
		if got := len(f.sink.Records()) - before; got != 1 {
			t.Fatalf("call %s produced %d records, want exactly 1", callID, got)
		}
	}
}
