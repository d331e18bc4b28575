package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loadline/loadline/internal/config"
	"github.com/loadline/loadline/internal/conversation"
	"github.com/loadline/loadline/internal/db"
	"github.com/loadline/loadline/internal/matching"
	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/negotiation"
	"github.com/loadline/loadline/internal/rate"
	"github.com/loadline/loadline/internal/records"
	"github.com/loadline/loadline/internal/verify"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	gdb, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	pickup := time.Now().UTC().Add(48 * time.Hour)
	load := models.Load{
		LoadID:           "LD-2001",
		OriginCity:       "Dallas",
		OriginState:      "TX",
		DestinationCity:  "Atlanta",
		DestinationState: "GA",
		PickupDate:       pickup,
		DeliveryDate:     pickup.Add(48 * time.Hour),
		EquipmentType:    "Dry Van",
		Miles:            925,
		RatePerMileCents: 108,
		TotalRateCents:   rate.Cents(100000),
		IsActive:         true,
	}
	if err := gdb.Create(&load).Error; err != nil {
		t.Fatalf("create load: %v", err)
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

	mgr, err := conversation.NewManager(conversation.Opts{
		Gateway: gw,
		Matcher: matcher,
		Engine:  engine,
		Sink:    records.NewMemorySink(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return NewRouter(mgr)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, parsed
}

func TestHappyPathBooking(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/calls", map[string]string{"call_id": "call-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("begin status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if body["state"] != "VERIFYING" {
		t.Errorf("state = %v, want VERIFYING", body["state"])
	}

	w, body = doJSON(t, router, http.MethodPost, "/api/calls/call-1/verify", map[string]string{"authority_id": "MC100"})
	if w.Code != http.StatusOK || body["state"] != "VERIFIED" {
		t.Fatalf("verify = %d %v, want 200 VERIFIED", w.Code, body["state"])
	}
	carrier, _ := body["carrier"].(map[string]any)
	if carrier == nil || carrier["name"] != "Lone Star Freight" {
		t.Errorf("carrier = %v", body["carrier"])
	}

	w, body = doJSON(t, router, http.MethodPost, "/api/calls/call-1/search", map[string]string{
		"origin_city": "Dallas", "origin_state": "TX", "equipment_type": "van",
	})
	if w.Code != http.StatusOK || body["state"] != "MATCHED" {
		t.Fatalf("search = %d %v, want 200 MATCHED", w.Code, body["state"])
	}
	candidates, _ := body["candidates"].([]any)
	if len(candidates) != 1 {
		t.Fatalf("candidates = %v, want 1", body["candidates"])
	}

	w, body = doJSON(t, router, http.MethodPost, "/api/calls/call-1/select", map[string]string{"load_id": "LD-2001"})
	if w.Code != http.StatusOK || body["state"] != "NEGOTIATING" {
		t.Fatalf("select = %d %v, want 200 NEGOTIATING", w.Code, body["state"])
	}
	neg, _ := body["negotiation"].(map[string]any)
	if neg == nil || neg["listed_rate"] != "1000.00" {
		t.Errorf("negotiation = %v, want listed_rate 1000.00", body["negotiation"])
	}

	w, body = doJSON(t, router, http.MethodPost, "/api/calls/call-1/offer", map[string]string{"amount": "850.00"})
	if w.Code != http.StatusOK {
		t.Fatalf("offer status = %d: %s", w.Code, w.Body.String())
	}
	decision, _ := body["decision"].(map[string]any)
	if decision == nil || decision["outcome"] != "counter" || decision["counter"] != "970.00" {
		t.Fatalf("decision = %v, want counter at 970.00", body["decision"])
	}

	w, body = doJSON(t, router, http.MethodPost, "/api/calls/call-1/offer", map[string]string{"amount": "900.00"})
	if w.Code != http.StatusOK {
		t.Fatalf("offer status = %d: %s", w.Code, w.Body.String())
	}
	decision, _ = body["decision"].(map[string]any)
	if decision == nil || decision["outcome"] != "accept" || decision["final"] != "900.00" {
		t.Fatalf("decision = %v, want accept at 900.00", body["decision"])
	}
	call, _ := body["call"].(map[string]any)
	if call == nil || call["state"] != "ENDED" || call["outcome"] != "booked" {
		t.Errorf("call = %v, want ENDED/booked", body["call"])
	}

	w, body = doJSON(t, router, http.MethodGet, "/api/calls/call-1", nil)
	if w.Code != http.StatusOK || body["outcome"] != "booked" {
		t.Errorf("get call = %d %v, want 200 booked", w.Code, body["outcome"])
	}
}

func TestBeginGeneratesCallID(t *testing.T) {
	router := newTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/calls", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	id, _ := body["call_id"].(string)
	if id == "" {
		t.Fatal("call_id not generated")
	}

	w, _ = doJSON(t, router, http.MethodGet, "/api/calls/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("generated call not queryable: %d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/calls", map[string]string{"call_id": "call-1"})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown call", http.MethodGet, "/api/calls/ghost", nil, http.StatusNotFound},
		{"duplicate begin", http.MethodPost, "/api/calls", map[string]string{"call_id": "call-1"}, http.StatusConflict},
		{"search before verify", http.MethodPost, "/api/calls/call-1/search",
			map[string]string{"origin_state": "TX", "equipment_type": "van"}, http.StatusConflict},
		{"offer before negotiation", http.MethodPost, "/api/calls/call-1/offer",
			map[string]string{"amount": "900.00"}, http.StatusConflict},
		{"missing authority", http.MethodPost, "/api/calls/call-1/verify",
			map[string]string{}, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/api/calls/call-1/offer",
			map[string]string{"amount": "a lot"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := doJSON(t, router, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%v)", w.Code, tt.want, body)
			}
			if tt.want >= 400 {
				if msg, _ := body["error"].(string); msg == "" {
					t.Error("error body missing message")
				}
			}
		})
	}
}

func TestBadInputKeepsCallUsable(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/calls", map[string]string{"call_id": "call-1"})
	doJSON(t, router, http.MethodPost, "/api/calls/call-1/verify", map[string]string{"authority_id": "MC100"})

	w, _ := doJSON(t, router, http.MethodPost, "/api/calls/call-1/search", map[string]string{
		"origin_state": "TX", "equipment_type": "hovercraft",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid equipment status = %d, want 400", w.Code)
	}

	w, body := doJSON(t, router, http.MethodPost, "/api/calls/call-1/search", map[string]string{
		"origin_city": "Dallas", "origin_state": "TX", "equipment_type": "van",
	})
	if w.Code != http.StatusOK || body["state"] != "MATCHED" {
		t.Errorf("retry search = %d %v, want 200 MATCHED", w.Code, body["state"])
	}

	w, _ = doJSON(t, router, http.MethodPost, "/api/calls/call-1/select", map[string]string{"load_id": "LD-9999"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid selection status = %d, want 400", w.Code)
	}
	w, body = doJSON(t, router, http.MethodGet, "/api/calls/call-1", nil)
	if body["state"] != "MATCHED" {
		t.Errorf("state after invalid selection = %v, want MATCHED", body["state"])
	}
}

func TestForcedEnd(t *testing.T) {
	router := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/calls", map[string]string{"call_id": "call-1"})

	w, body := doJSON(t, router, http.MethodPost, "/api/calls/call-1/end", nil)
	if w.Code != http.StatusOK || body["outcome"] != "abandoned" {
		t.Fatalf("end = %d %v, want 200 abandoned", w.Code, body["outcome"])
	}

	w, _ = doJSON(t, router, http.MethodPost, "/api/calls/call-1/end", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second end status = %d, want 409", w.Code)
	}
}
