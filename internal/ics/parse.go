package ics

import (
	"strings"

	appLog "uqconnect/internal/log"
	"uqconnect/internal/metrics"
	"uqconnect/internal/model"
)

const calendarMarker = "BEGIN:VCALENDAR"

var unescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, "\n")

// HasCalendarMarker reports whether text looks like an iCalendar document.
// Upload and import handlers gate on it before calling ParseCalendar.
func HasCalendarMarker(text string) bool {
	return strings.Contains(text, calendarMarker)
}

// pendingEvent accumulates the properties of one VEVENT block.
type pendingEvent struct {
	title       string
	description string
	location    string
	uid         string
	start       model.Stamp
	end         model.Stamp
	hasTitle    bool
	hasStart    bool
}

// ParseCalendar decodes raw iCalendar text into calendar events, preserving
// document order.
//
// It never fails: VEVENT blocks without SUMMARY or DTSTART are dropped,
// unknown properties are ignored, and a document without any
// BEGIN:VEVENT/END:VEVENT pair yields an empty slice. Events without DTEND
// end one hour after their start.
func ParseCalendar(text string) []model.CalendarEvent {
	events := make([]model.CalendarEvent, 0)
	lines := strings.Split(text, "\n")

	var (
		cur     pendingEvent
		inEvent bool
		dropped int
	)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		// RFC 5545 folding: continuation lines start with a single space.
		for i+1 < len(lines) && strings.HasPrefix(lines[i+1], " ") {
			line += strings.TrimRight(lines[i+1][1:], "\r")
			i++
		}

		switch {
		case line == "BEGIN:VEVENT":
			inEvent = true
			cur = pendingEvent{}
		case line == "END:VEVENT":
			if inEvent {
				if ev, ok := cur.finish(); ok {
					events = append(events, ev)
				} else {
					dropped++
					appLog.Debug("ics: skipping incomplete vevent", "has_title", cur.hasTitle, "has_start", cur.hasStart)
				}
			}
			inEvent = false
		case inEvent:
			cur.apply(line)
		}
	}

	metrics.ICSEventsParsed.Add(float64(len(events)))
	metrics.ICSEventsDropped.Add(float64(dropped))
	appLog.Debug("ics parse completed", "event_count", len(events), "dropped", dropped)
	return events
}

func (p *pendingEvent) apply(line string) {
	switch {
	case strings.HasPrefix(line, "SUMMARY:"):
		p.title = unescaper.Replace(line[len("SUMMARY:"):])
		p.hasTitle = true
	case strings.HasPrefix(line, "DTSTART"):
		p.start = ParseStamp(dateToken(line))
		p.hasStart = true
	case strings.HasPrefix(line, "DTEND"):
		p.end = ParseStamp(dateToken(line))
	case strings.HasPrefix(line, "LOCATION:"):
		p.location = unescaper.Replace(line[len("LOCATION:"):])
	case strings.HasPrefix(line, "DESCRIPTION:"):
		p.description = unescaper.Replace(line[len("DESCRIPTION:"):])
	case strings.HasPrefix(line, "UID:"):
		p.uid = line[len("UID:"):]
	}
}

// finish applies defaults and reports whether the block is complete.
func (p *pendingEvent) finish() (model.CalendarEvent, bool) {
	if !p.hasTitle || p.title == "" || !p.hasStart || p.start.IsZero() {
		return model.CalendarEvent{}, false
	}

	ev := model.CalendarEvent{
		Title:       p.title,
		Description: p.description,
		Location:    p.location,
		Start:       p.start,
		End:         p.end,
		UID:         p.uid,
	}
	if ev.End.IsZero() {
		// Unparsed starts carry over unchanged; see model.Stamp.Add.
		ev.End = ev.Start.Add(model.DefaultEventDuration)
	}
	if start, ok := ev.Start.Time(); ok {
		if end, ok := ev.End.Time(); ok && end.Before(start) {
			ev.End = ev.Start
		}
	}
	if ev.Location == "" {
		ev.Location = model.DefaultLocation
	}
	if ev.Description == "" {
		ev.Description = ev.Title
	}
	return ev, true
}

// dateToken returns the value after the first colon of a DTSTART/DTEND line,
// e.g. "DTSTART;VALUE=DATE:20250115" -> "20250115".
func dateToken(line string) string {
	idx := strings.Index(line, ":")
	if idx == -1 {
		return ""
	}
	return line[idx+1:]
}
