package recommend

import (
	"encoding/json"
	"slices"
	"strings"

	"uqconnect/internal/model"
)

type set map[string]struct{}

func (s set) add(v string) { s[v] = struct{}{} }

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Patterns summarizes the recurring shape of a user's calendar.
type Patterns struct {
	// Subjects is the text before the first comma of each title, e.g.
	// "COMP3506" for "COMP3506, Lecture 1".
	Subjects set
	// Locations is the text before " - " of each location, e.g.
	// "78-420" for "78-420 - General Purpose South".
	Locations  set
	StartTimes set // "15:04"
	Weekdays   set // "Monday"
}

// Summarize collects the pattern sets of events. Events with an unparsed
// start contribute subjects and locations only.
func Summarize(events []model.CalendarEvent) Patterns {
	p := Patterns{
		Subjects:   set{},
		Locations:  set{},
		StartTimes: set{},
		Weekdays:   set{},
	}
	for _, ev := range events {
		subject, _, _ := strings.Cut(ev.Title, ",")
		p.Subjects.add(strings.TrimSpace(subject))

		if ev.Location != "" {
			prefix, _, _ := strings.Cut(ev.Location, " - ")
			p.Locations.add(prefix)
		}

		if start, ok := ev.Start.Time(); ok {
			p.StartTimes.add(start.Format("15:04"))
			p.Weekdays.add(start.Weekday().String())
		}
	}
	return p
}

func (p Patterns) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Subjects   []string `json:"subjects"`
		Locations  []string `json:"locations"`
		StartTimes []string `json:"timeSlots"`
		Weekdays   []string `json:"days"`
	}{
		Subjects:   p.Subjects.sorted(),
		Locations:  p.Locations.sorted(),
		StartTimes: p.StartTimes.sorted(),
		Weekdays:   p.Weekdays.sorted(),
	})
}
