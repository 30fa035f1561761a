package jsonutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, handling
// providers that send numbers or booleans where a string is documented.
// Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// priceLevelNames maps the Places API (New) enum to the legacy 0..4 scale.
var priceLevelNames = map[string]int{
	"PRICE_LEVEL_FREE":           0,
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

// PriceLevel decodes a provider price level that may be a legacy integer
// (2), a quoted integer ("2"), or an enum name ("PRICE_LEVEL_MODERATE").
// Returns nil when absent, unspecified, or outside 0..4.
func PriceLevel(raw json.RawMessage) *int {
	s := strings.TrimSpace(FlexibleStringValue(raw))
	if s == "" {
		return nil
	}

	level, ok := priceLevelNames[strings.ToUpper(s)]
	if !ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		level = n
	}
	if level < 0 || level > 4 {
		return nil
	}
	return &level
}
