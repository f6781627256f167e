// internal/domain/models/category.go
package models

import "strings"

// Pin categories. The category and the collection color together key a
// marker icon.
const (
	CategoryOther      = "other"
	CategoryFood       = "food"
	CategoryCafe       = "cafe"
	CategoryBar        = "bar"
	CategoryShopping   = "shopping"
	CategoryLodging    = "lodging"
	CategoryAttraction = "attraction"
	CategoryNature     = "nature"
	CategoryTransit    = "transit"
)

var categories = map[string]struct{}{
	CategoryOther:      {},
	CategoryFood:       {},
	CategoryCafe:       {},
	CategoryBar:        {},
	CategoryShopping:   {},
	CategoryLodging:    {},
	CategoryAttraction: {},
	CategoryNature:     {},
	CategoryTransit:    {},
}

// NormalizeCategory lowercases c and maps unknown values to CategoryOther.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if _, ok := categories[c]; ok {
		return c
	}
	return CategoryOther
}
