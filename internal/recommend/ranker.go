// Package recommend ranks catalogue events against a user's calendar.
//
// Ranking runs in two phases. Time-fit matches are catalogue events whose
// interval fits inside one of the user's free slots; general matches fill the
// remaining places using category, location and keyword heuristics. Every
// function here is pure: inputs are never mutated and equal inputs give
// equal, identically ordered results.
package recommend

import (
	"slices"
	"time"

	"uqconnect/internal/model"
	"uqconnect/internal/schedule"
)

// DefaultMax is the maximum number of recommendations returned.
const DefaultMax = 5

// Options controls a ranking run.
type Options struct {
	// Today is the first day of the free-slot scan.
	Today  time.Time
	Window schedule.Window
	Max    int
}

// DefaultOptions returns the standard tunables scanning from today.
func DefaultOptions(today time.Time) Options {
	return Options{
		Today:  today,
		Window: schedule.DefaultWindow(),
		Max:    DefaultMax,
	}
}

// selection is the set of catalogue ids chosen so far. It is passed from
// one phase to the next explicitly.
type selection map[string]struct{}

func (s selection) has(id string) bool {
	_, ok := s[id]
	return ok
}

// Recommend returns at most opts.Max recommendations for the user's calendar,
// highest confidence first.
func Recommend(calendar []model.CalendarEvent, catalogue []model.CatalogueEvent, opts Options) []model.Recommendation {
	if opts.Max <= 0 {
		opts.Max = DefaultMax
	}
	slots := schedule.FindFreeSlots(calendar, opts.Today, opts.Window)
	return Rank(calendar, catalogue, slots, opts.Max)
}

// Rank runs both phases over precomputed free slots.
func Rank(calendar []model.CalendarEvent, catalogue []model.CatalogueEvent, slots []model.FreeSlot, limit int) []model.Recommendation {
	recs, chosen := timeMatches(calendar, catalogue, slots, selection{})
	if len(recs) < limit {
		recs = append(recs, generalMatches(calendar, catalogue, chosen, limit-len(recs))...)
	}

	slices.SortStableFunc(recs, func(a, b model.Recommendation) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}
	return recs
}

// timeMatches selects catalogue events that fit inside a free slot. Slots
// are visited in order and each catalogue event is selected at most once.
func timeMatches(calendar []model.CalendarEvent, catalogue []model.CatalogueEvent, slots []model.FreeSlot, chosen selection) ([]model.Recommendation, selection) {
	var recs []model.Recommendation
	for _, slot := range slots {
		for _, ev := range catalogue {
			if chosen.has(ev.ID) {
				continue
			}
			start, end, err := ev.Interval()
			if err != nil {
				continue
			}
			if start.Before(slot.Start) || end.After(slot.End) || ev.Duration > slot.Duration {
				continue
			}
			if inCalendar(calendar, ev.Title, start) {
				continue
			}
			recs = append(recs, model.Recommendation{
				CatalogueEvent: ev,
				RecommendedFor: slot,
				Confidence:     baseConfidence(slot, ev) + TimeMatchBoost,
				Match:          model.MatchTime,
			})
			chosen[ev.ID] = struct{}{}
		}
	}
	return recs, chosen
}

// generalMatches selects up to limit unchosen catalogue events whose general
// confidence clears GeneralThreshold, in catalogue order. Events already in
// the calendar at their catalogue start are skipped as in phase one.
func generalMatches(calendar []model.CalendarEvent, catalogue []model.CatalogueEvent, chosen selection, limit int) []model.Recommendation {
	patterns := Summarize(calendar)

	var recs []model.Recommendation
	for _, ev := range catalogue {
		if len(recs) >= limit {
			break
		}
		if chosen.has(ev.ID) {
			continue
		}
		start, end, err := ev.Interval()
		if err != nil || inCalendar(calendar, ev.Title, start) {
			continue
		}
		confidence := generalConfidence(patterns, ev)
		if confidence <= GeneralThreshold {
			continue
		}
		recs = append(recs, model.Recommendation{
			CatalogueEvent: ev,
			RecommendedFor: model.FreeSlot{Start: start, End: end, Duration: ev.Duration},
			Confidence:     confidence,
			Match:          model.MatchGeneral,
		})
		chosen[ev.ID] = struct{}{}
	}
	return recs
}

// inCalendar reports whether an event with the same title starts at exactly
// start.
func inCalendar(calendar []model.CalendarEvent, title string, start time.Time) bool {
	at := model.At(start)
	for _, ev := range calendar {
		if ev.Title == title && ev.Start.Equal(at) {
			return true
		}
	}
	return false
}
