package matching

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEquipment is returned when a requested equipment type is not
// in the controlled enumeration.
var ErrInvalidEquipment = errors.New("matching: invalid equipment type")

// Canonical equipment types as stored in the load catalog.
const (
	EquipmentDryVan    = "Dry Van"
	EquipmentReefer    = "Refrigerated"
	EquipmentFlatbed   = "Flatbed"
	EquipmentStepdeck  = "Stepdeck"
	EquipmentPowerOnly = "Power Only"
)

// equipmentSynonyms maps normalized carrier phrasing to canonical types.
// Carriers say "reefer" and "van" far more often than the catalog names.
var equipmentSynonyms = map[string]string{
	"dry van":      EquipmentDryVan,
	"dryvan":       EquipmentDryVan,
	"van":          EquipmentDryVan,
	"refrigerated": EquipmentReefer,
	"reefer":       EquipmentReefer,
	"flatbed":      EquipmentFlatbed,
	"flat bed":     EquipmentFlatbed,
	"stepdeck":     EquipmentStepdeck,
	"step deck":    EquipmentStepdeck,
	"drop deck":    EquipmentStepdeck,
	"power only":   EquipmentPowerOnly,
	"power":        EquipmentPowerOnly,
}

// NormalizeEquipment maps carrier phrasing onto the canonical equipment
// enumeration. Unknown types fail with ErrInvalidEquipment.
func NormalizeEquipment(s string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEquipment)
	}
	if canonical, ok := equipmentSynonyms[key]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEquipment, s)
}
