package models

import (
	"time"

	"github.com/loadline/loadline/internal/rate"
)

// Load is a shippable freight load in the catalog. Loads are read-only
// reference data for the call flow; only the catalog expiry job flips
// IsActive.
type Load struct {
	LoadID              string `gorm:"primaryKey;size:32"`
	OriginCity          string `gorm:"size:64;not null;index:idx_origin"`
	OriginState         string `gorm:"size:2;not null;index:idx_origin"`
	DestinationCity     string `gorm:"size:64;not null"`
	DestinationState    string `gorm:"size:2;not null"`
	PickupDate          time.Time
	DeliveryDate        time.Time
	EquipmentType       string     `gorm:"size:32;not null;index"`
	Weight              float64    // pounds
	Miles               float64    `gorm:"not null"`
	RatePerMileCents    rate.Cents `gorm:"not null"`
	TotalRateCents      rate.Cents `gorm:"not null"`
	Commodity           string     `gorm:"size:128"`
	SpecialRequirements string     `gorm:"size:256"`
	BrokerName          string     `gorm:"size:128"`
	BrokerMC            string     `gorm:"size:16"`
	IsActive            bool       `gorm:"default:true;index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
