package recommend

import (
	"math"
	"strings"

	"uqconnect/internal/model"
)

// TimeMatchBoost is added to the confidence of every time-fit match. It
// pushes time-fit scores into [1.5, 2.0], past the [0, 1] scale, so that any
// time-fit match outranks any general match after sorting. The overflow is
// intentional.
const TimeMatchBoost = 1.0

// GeneralThreshold is the score a general match has to exceed.
const GeneralThreshold = 0.3

var interestKeywords = []string{"programming", "python", "engineering"}

// baseConfidence scores how well event fits slot and how popular it is.
func baseConfidence(slot model.FreeSlot, event model.CatalogueEvent) float64 {
	confidence := 0.5

	fit := ratio(float64(event.Duration), slot.End.Sub(slot.Start).Minutes())
	switch {
	case fit > 0.8:
		confidence += 0.2
	case fit > 0.6:
		confidence += 0.1
	}

	confidence += 0.3 * ratio(float64(event.Registered), float64(event.Capacity))
	return math.Min(confidence, 1.0)
}

// generalConfidence scores event by category, location and title keywords,
// independent of the user's free time.
func generalConfidence(p Patterns, event model.CatalogueEvent) float64 {
	confidence := 0.4

	switch event.Category {
	case model.CategoryAcademic:
		confidence += 0.2
	case model.CategoryCareer:
		confidence += 0.15
	case model.CategoryWorkshop:
		confidence += 0.1
	}

	if event.Location != "" && len(p.Locations) > 0 {
		building, _, _ := strings.Cut(event.Location, " ")
		if p.Locations.has(building) {
			confidence += 0.1
		}
	}

	title := strings.ToLower(event.Title)
	for _, kw := range interestKeywords {
		if strings.Contains(title, kw) {
			confidence += 0.15
			break
		}
	}

	return math.Min(confidence, 1.0)
}

// ratio returns a/b, or 0 when b is not positive.
func ratio(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}
