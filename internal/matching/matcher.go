// Package matching ranks catalog loads against a carrier's stated
// preferences, with hub-city fallback when no exact city match exists.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/loadline/loadline/internal/catalog"
	"github.com/loadline/loadline/internal/models"
	"gorm.io/gorm"
)

// Request holds a carrier's search preferences. OriginState and
// EquipmentType are required; the destination is optional and, when
// given, needs at least a state.
type Request struct {
	OriginCity       string
	OriginState      string
	DestinationCity  string
	DestinationState string
	EquipmentType    string
}

// Matcher searches the load catalog. It performs no mutation and is safe
// for concurrent use; identical requests against an unchanged catalog
// return identical ordered results.
type Matcher struct {
	db    *gorm.DB
	limit int
}

// Opts holds parameters for creating a Matcher.
type Opts struct {
	DB    *gorm.DB
	Limit int // max loads returned per search, defaults to 5
}

// New creates a Matcher.
func New(opts Opts) (*Matcher, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("matching: db is required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}
	return &Matcher{db: opts.DB, limit: limit}, nil
}

// geographic rank per end: lower is better. Loads outside the requested
// state are excluded entirely.
const (
	rankExactCity = 0
	rankHubCity   = 1
	rankSameState = 2
	rankExcluded  = -1
)

// Validate normalizes a request's equipment type and states without
// touching the catalog. Search runs it first; callers that need to
// reject bad input before committing to a search can run it themselves.
func Validate(req Request) (Request, error) {
	equipment, err := NormalizeEquipment(req.EquipmentType)
	if err != nil {
		return req, err
	}
	originState, err := NormalizeState(req.OriginState)
	if err != nil {
		return req, err
	}
	destState := ""
	if req.DestinationState != "" {
		destState, err = NormalizeState(req.DestinationState)
		if err != nil {
			return req, err
		}
	} else if req.DestinationCity != "" {
		return req, fmt.Errorf("%w: destination city %q given without a state", ErrInvalidLocation, req.DestinationCity)
	}
	req.EquipmentType = equipment
	req.OriginState = originState
	req.DestinationState = destState
	return req, nil
}

// Search returns active loads matching the request, best first:
// equipment matches exactly (never substituted), then loads rank by
// origin/destination proximity — exact city, hub city of the requested
// state, then same state. Ties break by total rate descending, then by
// soonest pickup. An empty result is the normal NO_MATCH signal.
func (m *Matcher) Search(ctx context.Context, req Request) ([]models.Load, error) {
	req, err := Validate(req)
	if err != nil {
		return nil, err
	}

	loads, err := catalog.Query(ctx, m.db, catalog.Filters{
		EquipmentType: req.EquipmentType,
		OriginState:   req.OriginState,
		ActiveOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	type scored struct {
		load models.Load
		rank int
	}
	var candidates []scored
	for _, load := range loads {
		originRank := endRank(req.OriginCity, req.OriginState, load.OriginCity, load.OriginState)
		if originRank == rankExcluded {
			continue
		}
		destRank := 0
		if req.DestinationState != "" {
			destRank = endRank(req.DestinationCity, req.DestinationState, load.DestinationCity, load.DestinationState)
			if destRank == rankExcluded {
				continue
			}
		}
		candidates = append(candidates, scored{load: load, rank: originRank + destRank})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.load.TotalRateCents != b.load.TotalRateCents {
			return a.load.TotalRateCents > b.load.TotalRateCents
		}
		if !a.load.PickupDate.Equal(b.load.PickupDate) {
			return a.load.PickupDate.Before(b.load.PickupDate)
		}
		return a.load.LoadID < b.load.LoadID
	})

	if len(candidates) > m.limit {
		candidates = candidates[:m.limit]
	}
	result := make([]models.Load, len(candidates))
	for i, c := range candidates {
		result[i] = c.load
	}
	return result, nil
}

// endRank scores one end of a load against the requested city/state.
// reqState must be normalized. An empty reqCity matches any city in the
// state at the best rank.
func endRank(reqCity, reqState, loadCity, loadState string) int {
	if !strings.EqualFold(loadState, reqState) {
		return rankExcluded
	}
	if reqCity == "" {
		return rankExactCity
	}
	if strings.EqualFold(loadCity, reqCity) {
		return rankExactCity
	}
	if isHubCity(loadCity, reqState) {
		return rankHubCity
	}
	return rankSameState
}
