package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loadline/loadline/internal/conversation"
	"github.com/loadline/loadline/internal/matching"
	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/negotiation"
	"github.com/loadline/loadline/internal/rate"
	"github.com/loadline/loadline/internal/verify"
)

type beginRequest struct {
	CallID string `json:"call_id"`
}

type verifyRequest struct {
	AuthorityID string `json:"authority_id"`
}

type searchRequest struct {
	OriginCity       string `json:"origin_city"`
	OriginState      string `json:"origin_state"`
	DestinationCity  string `json:"destination_city"`
	DestinationState string `json:"destination_state"`
	EquipmentType    string `json:"equipment_type"`
}

type selectRequest struct {
	LoadID string `json:"load_id"`
}

type offerRequest struct {
	Amount string `json:"amount"` // dollars, e.g. "850.00"
}

// callView is the wire representation of a call snapshot. Money fields
// render as two-decimal dollar strings.
type callView struct {
	CallID       string           `json:"call_id"`
	State        string           `json:"state"`
	Outcome      string           `json:"outcome,omitempty"`
	AuthorityID  string           `json:"authority_id,omitempty"`
	Carrier      *carrierView     `json:"carrier,omitempty"`
	VerifyReason string           `json:"verify_reason,omitempty"`
	Candidates   []loadView       `json:"candidates,omitempty"`
	Negotiation  *negotiationView `json:"negotiation,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
}

type carrierView struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	AuthorityType string `json:"authority_type"`
}

type loadView struct {
	LoadID           string    `json:"load_id"`
	OriginCity       string    `json:"origin_city"`
	OriginState      string    `json:"origin_state"`
	DestinationCity  string    `json:"destination_city"`
	DestinationState string    `json:"destination_state"`
	PickupDate       time.Time `json:"pickup_date"`
	DeliveryDate     time.Time `json:"delivery_date"`
	EquipmentType    string    `json:"equipment_type"`
	Weight           float64   `json:"weight,omitempty"`
	Miles            float64   `json:"miles"`
	RatePerMile      string    `json:"rate_per_mile"`
	TotalRate        string    `json:"total_rate"`
	Commodity        string    `json:"commodity,omitempty"`
}

type negotiationView struct {
	LoadID     string `json:"load_id"`
	ListedRate string `json:"listed_rate"`
	Round      int    `json:"round"`
	Status     string `json:"status"`
}

type decisionView struct {
	Outcome string `json:"outcome"`
	Counter string `json:"counter,omitempty"`
	Final   string `json:"final,omitempty"`
	Round   int    `json:"round"`
}

func viewSnapshot(snap *conversation.Snapshot) callView {
	v := callView{
		CallID:       snap.CallID,
		State:        string(snap.State),
		Outcome:      snap.Outcome,
		AuthorityID:  snap.AuthorityID,
		VerifyReason: snap.VerifyReason,
		StartedAt:    snap.StartedAt,
	}
	if snap.Carrier != nil {
		v.Carrier = &carrierView{
			Name:          snap.Carrier.Name,
			Status:        snap.Carrier.Status,
			AuthorityType: snap.Carrier.AuthorityType,
		}
	}
	for _, l := range snap.Candidates {
		v.Candidates = append(v.Candidates, viewLoad(l))
	}
	if snap.Negotiation != nil {
		v.Negotiation = &negotiationView{
			LoadID:     snap.Negotiation.LoadID,
			ListedRate: snap.Negotiation.ListedRate.String(),
			Round:      snap.Negotiation.Round,
			Status:     snap.Negotiation.Status,
		}
	}
	if !snap.EndedAt.IsZero() {
		ended := snap.EndedAt
		v.EndedAt = &ended
	}
	return v
}

func viewLoad(l models.Load) loadView {
	return loadView{
		LoadID:           l.LoadID,
		OriginCity:       l.OriginCity,
		OriginState:      l.OriginState,
		DestinationCity:  l.DestinationCity,
		DestinationState: l.DestinationState,
		PickupDate:       l.PickupDate,
		DeliveryDate:     l.DeliveryDate,
		EquipmentType:    l.EquipmentType,
		Weight:           l.Weight,
		Miles:            l.Miles,
		RatePerMile:      l.RatePerMileCents.String(),
		TotalRate:        l.TotalRateCents.String(),
		Commodity:        l.Commodity,
	}
}

func viewDecision(dec *negotiation.Decision) decisionView {
	v := decisionView{Outcome: dec.Outcome, Round: dec.Round}
	if dec.Outcome == negotiation.OutcomeCounter {
		v.Counter = dec.Counter.String()
	}
	if dec.Outcome == negotiation.OutcomeAccept {
		v.Final = dec.Final.String()
	}
	return v
}

func handleBegin(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req beginRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}
		if req.CallID == "" {
			req.CallID = uuid.NewString()
		}
		snap, err := mgr.Begin(req.CallID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, viewSnapshot(snap))
	}
}

func handleGetCall(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := mgr.Snapshot(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewSnapshot(snap))
	}
}

func handleVerify(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.AuthorityID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "authority_id is required"})
			return
		}
		snap, err := mgr.Verify(c.Request.Context(), c.Param("id"), req.AuthorityID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewSnapshot(snap))
	}
}

func handleSearch(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		snap, err := mgr.Search(c.Request.Context(), c.Param("id"), matching.Request{
			OriginCity:       req.OriginCity,
			OriginState:      req.OriginState,
			DestinationCity:  req.DestinationCity,
			DestinationState: req.DestinationState,
			EquipmentType:    req.EquipmentType,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewSnapshot(snap))
	}
}

func handleSelect(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req selectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.LoadID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "load_id is required"})
			return
		}
		snap, err := mgr.SelectLoad(c.Param("id"), req.LoadID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewSnapshot(snap))
	}
}

func handleOffer(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req offerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		amount, err := rate.ParseAmount(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		dec, snap, err := mgr.Offer(c.Param("id"), amount)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"decision": viewDecision(dec),
			"call":     viewSnapshot(snap),
		})
	}
}

func handleReject(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := mgr.RejectCounter(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewSnapshot(snap))
	}
}

func handleEnd(mgr *conversation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := mgr.End(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewSnapshot(snap))
	}
}

// writeError maps domain errors onto HTTP statuses: unknown calls are
// 404, sequencing violations 409, bad input 400, and a dead verification
// gateway 502.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conversation.ErrUnknownCall):
		status = http.StatusNotFound
	case errors.Is(err, conversation.ErrDuplicateCall),
		errors.Is(err, conversation.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, conversation.ErrInvalidSelection),
		errors.Is(err, negotiation.ErrInvalidOffer),
		errors.Is(err, negotiation.ErrNegotiationClosed),
		errors.Is(err, matching.ErrInvalidEquipment),
		errors.Is(err, matching.ErrInvalidLocation):
		status = http.StatusBadRequest
	case errors.Is(err, verify.ErrGatewayUnavailable):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
