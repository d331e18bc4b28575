package db

import (
	"fmt"
	"os"
	"time"

	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/rate"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Load{},
		&models.CallRecord{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedLoad is one load entry in a YAML seed file. Pickup and delivery are
// expressed as day offsets from seed time so reseeding always yields
// bookable loads.
type SeedLoad struct {
	LoadID              string  `yaml:"load_id"`
	OriginCity          string  `yaml:"origin_city"`
	OriginState         string  `yaml:"origin_state"`
	DestinationCity     string  `yaml:"destination_city"`
	DestinationState    string  `yaml:"destination_state"`
	PickupInDays        int     `yaml:"pickup_in_days"`
	TransitDays         int     `yaml:"transit_days"`
	EquipmentType       string  `yaml:"equipment_type"`
	Weight              float64 `yaml:"weight"`
	Miles               float64 `yaml:"miles"`
	RatePerMile         float64 `yaml:"rate_per_mile"`
	TotalRate           float64 `yaml:"total_rate"`
	Commodity           string  `yaml:"commodity"`
	SpecialRequirements string  `yaml:"special_requirements"`
	BrokerName          string  `yaml:"broker_name"`
	BrokerMC            string  `yaml:"broker_mc"`
}

// SeedFile is the top-level structure of a YAML load seed file.
type SeedFile struct {
	Loads []SeedLoad `yaml:"loads"`
}

// LoadSeedFile reads and parses a YAML load seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("db: read seed file %s: %w", path, err)
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("db: parse seed file %s: %w", path, err)
	}
	if len(sf.Loads) == 0 {
		return nil, fmt.Errorf("db: seed file %s contains no loads", path)
	}
	return &sf, nil
}

// SeedLoads upserts Load rows from a seed file. Existing rows with the
// same load_id are refreshed; reseeding is idempotent.
func SeedLoads(db *gorm.DB, sf *SeedFile, now time.Time) error {
	for _, sl := range sf.Loads {
		if sl.LoadID == "" {
			return fmt.Errorf("db: seed load missing load_id")
		}
		pickup := now.AddDate(0, 0, sl.PickupInDays)
		load := models.Load{
			LoadID:              sl.LoadID,
			OriginCity:          sl.OriginCity,
			OriginState:         sl.OriginState,
			DestinationCity:     sl.DestinationCity,
			DestinationState:    sl.DestinationState,
			PickupDate:          pickup,
			DeliveryDate:        pickup.AddDate(0, 0, sl.TransitDays),
			EquipmentType:       sl.EquipmentType,
			Weight:              sl.Weight,
			Miles:               sl.Miles,
			RatePerMileCents:    rate.FromDollars(sl.RatePerMile),
			TotalRateCents:      rate.FromDollars(sl.TotalRate),
			Commodity:           sl.Commodity,
			SpecialRequirements: sl.SpecialRequirements,
			BrokerName:          sl.BrokerName,
			BrokerMC:            sl.BrokerMC,
			IsActive:            true,
		}

		result := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "load_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"origin_city", "origin_state", "destination_city", "destination_state",
				"pickup_date", "delivery_date", "equipment_type", "weight", "miles",
				"rate_per_mile_cents", "total_rate_cents", "commodity",
				"special_requirements", "broker_name", "broker_mc", "is_active",
			}),
		}).Create(&load)
		if result.Error != nil {
			return fmt.Errorf("db: seed load %q: %w", sl.LoadID, result.Error)
		}
	}
	return nil
}
