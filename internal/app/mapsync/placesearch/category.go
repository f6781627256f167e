// internal/app/mapsync/placesearch/category.go
package placesearch

import "github.com/dalemusser/pinmap/internal/domain/models"

// typeCategories maps provider place types to pin categories.
var typeCategories = map[string]string{
	"restaurant":    models.CategoryFood,
	"food":          models.CategoryFood,
	"meal_takeaway": models.CategoryFood,
	"meal_delivery": models.CategoryFood,

	"cafe":   models.CategoryCafe,
	"bakery": models.CategoryCafe,

	"bar":          models.CategoryBar,
	"night_club":   models.CategoryBar,
	"liquor_store": models.CategoryBar,

	"store":                  models.CategoryShopping,
	"shopping_mall":          models.CategoryShopping,
	"clothing_store":         models.CategoryShopping,
	"book_store":             models.CategoryShopping,
	"department_store":       models.CategoryShopping,
	"supermarket":            models.CategoryShopping,
	"grocery_or_supermarket": models.CategoryShopping,

	"lodging": models.CategoryLodging,

	"museum":             models.CategoryAttraction,
	"tourist_attraction": models.CategoryAttraction,
	"art_gallery":        models.CategoryAttraction,
	"amusement_park":     models.CategoryAttraction,
	"aquarium":           models.CategoryAttraction,
	"zoo":                models.CategoryAttraction,
	"stadium":            models.CategoryAttraction,
	"church":             models.CategoryAttraction,

	"park":            models.CategoryNature,
	"natural_feature": models.CategoryNature,
	"campground":      models.CategoryNature,

	"transit_station":    models.CategoryTransit,
	"train_station":      models.CategoryTransit,
	"subway_station":     models.CategoryTransit,
	"bus_station":        models.CategoryTransit,
	"airport":            models.CategoryTransit,
	"light_rail_station": models.CategoryTransit,
}

// InferCategory returns the category of the first recognized type, in
// provider order, or CategoryOther.
func InferCategory(types []string) string {
	for _, t := range types {
		if c, ok := typeCategories[t]; ok {
			return c
		}
	}
	return models.CategoryOther
}
