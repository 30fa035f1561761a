package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/trustdiner/trustdiner-api/pkg/apperrors"
	"github.com/trustdiner/trustdiner-api/pkg/places"
)

// diningTypes are provider place types accepted as dining establishments.
// Any "*_restaurant" type is accepted as well.
var diningTypes = map[string]bool{
	"restaurant":     true,
	"cafe":           true,
	"coffee_shop":    true,
	"bakery":         true,
	"bar":            true,
	"pub":            true,
	"wine_bar":       true,
	"bar_and_grill":  true,
	"meal_takeaway":  true,
	"meal_delivery":  true,
	"food_court":     true,
	"diner":          true,
	"bistro":         true,
	"deli":           true,
	"ice_cream_shop": true,
	"dessert_shop":   true,
	"juice_shop":     true,
	"tea_house":      true,
	"sandwich_shop":  true,
	"bagel_shop":     true,
	"donut_shop":     true,
}

// excludedPrimaryTypes disqualify a place even when a dining type is also
// listed, e.g. a hotel that reports "restaurant" among its types.
var excludedPrimaryTypes = map[string]bool{
	"lodging":           true,
	"hotel":             true,
	"gas_station":       true,
	"supermarket":       true,
	"grocery_store":     true,
	"convenience_store": true,
	"department_store":  true,
	"shopping_mall":     true,
	"movie_theater":     true,
}

// nonDiningNamePatterns match names of businesses that are never restaurants.
var nonDiningNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(hardware|pharmacy|drugstore|dental|dentist|clinic|hospital|veterinar\w*)\b`),
	regexp.MustCompile(`(?i)\b(gas station|car wash|auto repair|parking|storage|laundromat|dry cleaners?)\b`),
	regexp.MustCompile(`(?i)\b(atm|insurance|real estate|law office|post office)\b`),
	regexp.MustCompile(`(?i)\b(hair salon|nail salon|barber ?shop|spa|gym|fitness)\b`),
}

// ValidateDiningVenue checks that a provider place is a dining
// establishment. It returns a *apperrors.NonDiningVenueError listing every
// failed rule.
func ValidateDiningVenue(p *places.Place) error {
	var reasons []string

	if !hasDiningType(p.Types) && !isDiningType(p.PrimaryType) {
		reasons = append(reasons, fmt.Sprintf("no dining category in [%s]", strings.Join(p.Types, ", ")))
	}
	if excludedPrimaryTypes[p.PrimaryType] {
		reasons = append(reasons, fmt.Sprintf("primary category %q is not a dining category", p.PrimaryType))
	}
	for _, re := range nonDiningNamePatterns {
		if m := re.FindString(p.Name); m != "" {
			reasons = append(reasons, fmt.Sprintf("name matches non-dining term %q", strings.ToLower(m)))
			break
		}
	}

	if len(reasons) > 0 {
		return &apperrors.NonDiningVenueError{Name: p.Name, Reasons: reasons}
	}
	return nil
}

func hasDiningType(types []string) bool {
	for _, t := range types {
		if isDiningType(t) {
			return true
		}
	}
	return false
}

func isDiningType(t string) bool {
	return diningTypes[t] || strings.HasSuffix(t, "_restaurant")
}

// cuisineFromTypes derives a cuisine label from the first specific
// "<cuisine>_restaurant" type, e.g. "pizza_restaurant" becomes "pizza".
func cuisineFromTypes(types []string) string {
	for _, t := range types {
		c, ok := strings.CutSuffix(t, "_restaurant")
		if !ok || c == "" {
			continue
		}
		switch c {
		case "fast_food", "breakfast", "brunch", "family":
			continue
		}
		return strings.ReplaceAll(c, "_", " ")
	}
	return ""
}
