package ics

import (
	"strings"

	ical "github.com/arran4/golang-ical"
)

// Meta is calendar-level information about an ICS document.
type Meta struct {
	ProdID     string `json:"prodId,omitempty"`
	Name       string `json:"name,omitempty"`
	TimeZone   string `json:"timeZone,omitempty"`
	EventCount int    `json:"eventCount"`
}

// Describe reads the VCALENDAR properties of text with a strict parser.
//
// It is only used for metadata (subscription names, import responses). A
// document the strict parser rejects can still be decoded by ParseCalendar,
// so callers should treat an error here as "no metadata", not as a failed
// import.
func Describe(text string) (Meta, error) {
	cal, err := ical.ParseCalendar(strings.NewReader(text))
	if err != nil {
		return Meta{}, err
	}

	var m Meta
	// Use raw property names to avoid dependency on constant variants.
	for _, p := range cal.CalendarProperties {
		switch p.IANAToken {
		case "PRODID":
			m.ProdID = p.Value
		case "X-WR-CALNAME":
			m.Name = p.Value
		case "X-WR-TIMEZONE":
			m.TimeZone = p.Value
		}
	}
	m.EventCount = len(cal.Events())
	return m, nil
}
