package models

import (
	"time"

	"github.com/loadline/loadline/internal/rate"
)

// CallRecord is the immutable summary of one inbound carrier call. It is
// written exactly once, when the call reaches a terminal state, and never
// updated afterward.
type CallRecord struct {
	CallID        string `gorm:"primaryKey;size:64"`
	AuthorityID   string `gorm:"size:16;index"`
	CarrierName   string `gorm:"size:128"`
	CarrierStatus string `gorm:"size:32"`
	AuthorityType string `gorm:"size:32"`

	FinalState string `gorm:"size:24;not null"`
	Outcome    string `gorm:"size:24;not null;index"` // booked, no-match, verification-failed, negotiation-failed, abandoned

	EquipmentType    string `gorm:"size:32"`
	OriginCity       string `gorm:"size:64"`
	OriginState      string `gorm:"size:2"`
	DestinationCity  string `gorm:"size:64"`
	DestinationState string `gorm:"size:2"`

	CandidateLoadIDs string `gorm:"type:json"` // JSON array of load IDs surfaced this call
	SelectedLoadID   string `gorm:"size:32"`
	ListedRateCents  rate.Cents
	FinalRateCents   rate.Cents

	NegotiationRounds int
	NegotiationStatus string `gorm:"size:24"`
	Offers            string `gorm:"type:json"` // JSON audit trail of (actor, amount, round)

	// Derived analytics for the dashboard.
	Sentiment                 string `gorm:"size:16"`
	RateSensitivity           string `gorm:"size:16"`
	NegotiationAggressiveness string `gorm:"size:16"`

	StartedAt time.Time `gorm:"index"`
	EndedAt   time.Time
	CreatedAt time.Time
}
