package matching

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLocation is returned when a state code is not recognized.
var ErrInvalidLocation = errors.New("matching: invalid location")

// stateHubs maps every state (plus DC) to its major freight hub cities.
// Hub fallback substitutes these for an unmatched origin or destination
// city during search. The table is read-only and shared across all calls.
var stateHubs = map[string][]string{
	"AL": {"Birmingham"},
	"AK": {"Anchorage"},
	"AZ": {"Phoenix"},
	"AR": {"Little Rock"},
	"CA": {"Los Angeles", "Oakland", "Fresno"},
	"CO": {"Denver"},
	"CT": {"Hartford"},
	"DE": {"Wilmington"},
	"DC": {"Washington"},
	"FL": {"Miami", "Orlando", "Jacksonville"},
	"GA": {"Atlanta", "Savannah"},
	"HI": {"Honolulu"},
	"ID": {"Boise"},
	"IL": {"Chicago"},
	"IN": {"Indianapolis"},
	"IA": {"Des Moines"},
	"KS": {"Kansas City", "Wichita"},
	"KY": {"Louisville"},
	"LA": {"New Orleans", "Baton Rouge"},
	"ME": {"Portland"},
	"MD": {"Baltimore"},
	"MA": {"Boston"},
	"MI": {"Detroit", "Grand Rapids"},
	"MN": {"Minneapolis"},
	"MS": {"Jackson"},
	"MO": {"St. Louis", "Kansas City"},
	"MT": {"Billings"},
	"NE": {"Omaha"},
	"NV": {"Las Vegas", "Reno"},
	"NH": {"Manchester"},
	"NJ": {"Newark", "Elizabeth"},
	"NM": {"Albuquerque"},
	"NY": {"New York", "Buffalo", "Albany"},
	"NC": {"Charlotte", "Raleigh"},
	"ND": {"Fargo"},
	"OH": {"Columbus", "Cincinnati", "Cleveland"},
	"OK": {"Oklahoma City", "Tulsa"},
	"OR": {"Portland"},
	"PA": {"Philadelphia", "Pittsburgh", "Harrisburg"},
	"RI": {"Providence"},
	"SC": {"Charleston", "Columbia"},
	"SD": {"Sioux Falls"},
	"TN": {"Memphis", "Nashville"},
	"TX": {"Dallas", "Houston", "Laredo", "El Paso"},
	"UT": {"Salt Lake City"},
	"VT": {"Burlington"},
	"VA": {"Richmond", "Norfolk"},
	"WA": {"Seattle", "Spokane"},
	"WV": {"Charleston"},
	"WI": {"Milwaukee"},
	"WY": {"Cheyenne"},
}

// NormalizeState validates and uppercases a two-letter state code.
func NormalizeState(s string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := stateHubs[code]; !ok {
		return "", fmt.Errorf("%w: unknown state code %q", ErrInvalidLocation, s)
	}
	return code, nil
}

// HubCities returns the hub cities for a state code. The code must
// already be normalized.
func HubCities(state string) []string {
	return stateHubs[state]
}

// isHubCity reports whether city is a hub city of state. Comparison is
// case-insensitive.
func isHubCity(city, state string) bool {
	for _, hub := range stateHubs[state] {
		if strings.EqualFold(hub, city) {
			return true
		}
	}
	return false
}
