// Package catalog provides read-only queries over the load catalog.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/loadline/loadline/internal/models"
	"gorm.io/gorm"
)

// Filters narrows a catalog query. Zero-valued fields are ignored.
type Filters struct {
	EquipmentType string
	OriginState   string
	ActiveOnly    bool
	Limit         int
}

// Query returns loads matching the filters, fully materialized. The
// catalog is never mutated here; callers bound the query with ctx.
func Query(ctx context.Context, db *gorm.DB, f Filters) ([]models.Load, error) {
	q := db.WithContext(ctx).Model(&models.Load{})

	if f.EquipmentType != "" {
		q = q.Where("equipment_type = ?", f.EquipmentType)
	}
	if f.OriginState != "" {
		q = q.Where("origin_state = ?", f.OriginState)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var loads []models.Load
	if err := q.Order("load_id ASC").Find(&loads).Error; err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	return loads, nil
}

// Get retrieves a single load by ID.
func Get(ctx context.Context, db *gorm.DB, loadID string) (*models.Load, error) {
	var load models.Load
	if err := db.WithContext(ctx).Where("load_id = ?", loadID).First(&load).Error; err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", loadID, err)
	}
	return &load, nil
}

// ExpireStale deactivates loads whose pickup window has passed. Returns
// the number of loads deactivated. This is the only catalog mutation in
// the system and runs from the serve cron, never from a call.
func ExpireStale(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Model(&models.Load{}).
		Where("is_active = ? AND pickup_date < ?", true, now).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("catalog: expire stale: %w", result.Error)
	}
	return result.RowsAffected, nil
}
