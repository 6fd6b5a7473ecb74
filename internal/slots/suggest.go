package slots

import (
	"venuebook/internal/config"
	"venuebook/internal/model"
)

// Suggestion lists the free venues of one category.
type Suggestion struct {
	Category string   `json:"category"`
	Venues   []string `json:"venues"`
}

// Suggest returns the active venues free for slot on date, grouped by
// category in catalog order. Categories with no free venue are omitted.
func Suggest(catalog *config.VenuesConfig, checker AvailabilityChecker, date string, slot model.TimeSlot) []Suggestion {
	var result []Suggestion
	for _, cat := range catalog.Categories() {
		var free []string
		for _, venue := range cat.Venues {
			if checker.CheckAvailability(venue, date, slot) {
				free = append(free, venue)
			}
		}
		if len(free) > 0 {
			result = append(result, Suggestion{Category: cat.Name, Venues: free})
		}
	}
	return result
}
