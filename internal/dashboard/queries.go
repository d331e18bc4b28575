package dashboard

import (
	"time"

	"github.com/loadline/loadline/internal/models"
	"github.com/loadline/loadline/internal/rate"
	"gorm.io/gorm"
)

// OutcomeCount holds the number of calls that ended with one outcome.
type OutcomeCount struct {
	Outcome string
	Count   int64
}

// OutcomeSummary returns call counts grouped by outcome, busiest first.
func OutcomeSummary(db *gorm.DB) ([]OutcomeCount, error) {
	var rows []OutcomeCount
	if err := db.Model(&models.CallRecord{}).
		Select("outcome, count(*) as count").
		Group("outcome").
		Order("count DESC, outcome ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DayCount holds call volume for one day.
type DayCount struct {
	Day    string
	Booked int64
	Total  int64
}

// BookingsByDay returns per-day call and booking counts for the trailing
// window, oldest day first.
func BookingsByDay(db *gorm.DB, days int) ([]DayCount, error) {
	if days <= 0 {
		days = 14
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var rows []DayCount
	if err := db.Model(&models.CallRecord{}).
		Select("date(started_at) as day, sum(case when outcome = 'booked' then 1 else 0 end) as booked, count(*) as total").
		Where("started_at >= ?", cutoff).
		Group("date(started_at)").
		Order("day ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// BookingStats aggregates the won side of the funnel.
type BookingStats struct {
	Booked       int64
	AvgRounds    float64
	RevenueCents rate.Cents
}

// BookedSummary returns booking count, average rounds to close, and
// total booked revenue.
func BookedSummary(db *gorm.DB) (BookingStats, error) {
	var row struct {
		Booked  int64
		Rounds  float64
		Revenue int64
	}
	if err := db.Model(&models.CallRecord{}).
		Select("count(*) as booked, coalesce(avg(negotiation_rounds), 0) as rounds, coalesce(sum(final_rate_cents), 0) as revenue").
		Where("outcome = ?", "booked").
		Find(&row).Error; err != nil {
		return BookingStats{}, err
	}
	return BookingStats{
		Booked:       row.Booked,
		AvgRounds:    row.Rounds,
		RevenueCents: rate.Cents(row.Revenue),
	}, nil
}

// LaneCount holds booking volume for one origin/destination state pair.
type LaneCount struct {
	OriginState      string
	DestinationState string
	Count            int64
}

// TopLanes returns the most-requested lanes among calls that reached a
// selection.
func TopLanes(db *gorm.DB, limit int) ([]LaneCount, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []LaneCount
	if err := db.Model(&models.CallRecord{}).
		Select("origin_state, destination_state, count(*) as count").
		Where("selected_load_id != ''").
		Group("origin_state, destination_state").
		Order("count DESC, origin_state ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentCalls returns the most recently ended calls.
func RecentCalls(db *gorm.DB, limit int) ([]models.CallRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []models.CallRecord
	if err := db.Order("ended_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// CallDetail returns one call record by ID.
func CallDetail(db *gorm.DB, callID string) (*models.CallRecord, error) {
	var rec models.CallRecord
	if err := db.First(&rec, "call_id = ?", callID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ActiveLoadCount returns the number of bookable loads in the catalog.
func ActiveLoadCount(db *gorm.DB) (int64, error) {
	var n int64
	if err := db.Model(&models.Load{}).Where("is_active = ?", true).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
