// Package schedule finds the open intervals in a user's calendar.
package schedule

import (
	"slices"
	"time"

	"uqconnect/internal/model"
)

// Window describes the scan horizon and the daily availability window.
type Window struct {
	// Days is the number of days to scan, today inclusive.
	Days int
	// DayStartHour and DayEndHour bound the availability window
	// [DayStartHour:00, DayEndHour:00) of every day.
	DayStartHour int
	DayEndHour   int
	// MinGap is the shortest interval that counts as a free slot.
	MinGap time.Duration
}

// DefaultWindow scans 7 days between 08:00 and 21:00 with a 30 minute
// minimum gap.
func DefaultWindow() Window {
	return Window{
		Days:         7,
		DayStartHour: 8,
		DayEndHour:   21,
		MinGap:       30 * time.Minute,
	}
}

// timedEvent is a calendar event with a parsed start and end.
type timedEvent struct {
	start time.Time
	end   time.Time
}

// FindFreeSlots returns the free slots of events over w, starting at the
// calendar day of today. Events with an unparsed start never fall on a day
// and are ignored. Events may overlap.
func FindFreeSlots(events []model.CalendarEvent, today time.Time, w Window) []model.FreeSlot {
	timed := sortedEvents(events)

	day := model.Wall(today).Truncate(24 * time.Hour)
	slots := make([]model.FreeSlot, 0, w.Days)
	for i := 0; i < w.Days; i++ {
		d := day.AddDate(0, 0, i)
		slots = append(slots, daySlots(timed, d, w)...)
	}
	return slots
}

// sortedEvents keeps events with a parsed start, ordered by start. Ties keep
// input order.
func sortedEvents(events []model.CalendarEvent) []timedEvent {
	out := make([]timedEvent, 0, len(events))
	for _, ev := range events {
		start, ok := ev.Start.Time()
		if !ok {
			continue
		}
		end, ok := ev.End.Time()
		if !ok {
			end = start
		}
		out = append(out, timedEvent{start: start, end: end})
	}
	slices.SortStableFunc(out, func(a, b timedEvent) int {
		return a.start.Compare(b.start)
	})
	return out
}

func daySlots(events []timedEvent, day time.Time, w Window) []model.FreeSlot {
	dayStart := day.Add(time.Duration(w.DayStartHour) * time.Hour)
	dayEnd := day.Add(time.Duration(w.DayEndHour) * time.Hour)
	next := day.AddDate(0, 0, 1)

	var slots []model.FreeSlot
	cursor := dayStart
	for _, ev := range events {
		if ev.start.Before(day) || !ev.start.Before(next) {
			continue
		}
		// A gap runs up to the next event, even one starting after dayEnd.
		if ev.start.Sub(cursor) >= w.MinGap {
			slots = append(slots, newSlot(cursor, ev.start))
		}
		cursor = later(cursor, ev.end)
	}
	if dayEnd.Sub(cursor) >= w.MinGap {
		slots = append(slots, newSlot(cursor, dayEnd))
	}
	return slots
}

func newSlot(start, end time.Time) model.FreeSlot {
	return model.FreeSlot{
		Start:    start,
		End:      end,
		Duration: int(end.Sub(start) / time.Minute),
	}
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
