package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultLocation is the sentinel used when a calendar event has no location.
const DefaultLocation = "Location not specified"

// DefaultEventDuration is applied when an event has a start but no end.
const DefaultEventDuration = 60 * time.Minute

// Source tags where a CalendarEvent came from.
type Source string

const (
	SourceImport         Source = "import"
	SourceUpload         Source = "upload"
	SourceRecommendation Source = "recommendation"
)

// Category is the catalogue tag of a campus event.
type Category string

const (
	CategoryCareer   Category = "Career"
	CategoryWorkshop Category = "Workshop"
	CategorySocial   Category = "Social"
	CategoryAcademic Category = "Academic"
	CategoryWellness Category = "Wellness"
)

// MatchKind tells why a catalogue event was recommended.
type MatchKind string

const (
	MatchTime    MatchKind = "time"
	MatchGeneral MatchKind = "general"
)

// CalendarEvent is a single scheduled item in a user's calendar, either
// imported from ICS or added from an accepted recommendation.
type CalendarEvent struct {
	// ID is only set for events added from the catalogue.
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Start       Stamp    `json:"start"`
	End         Stamp    `json:"end"`
	UID         string   `json:"uid,omitempty"`
	Source      Source   `json:"source,omitempty"`
	Category    Category `json:"category,omitempty"`
	Type        string   `json:"type,omitempty"`
}

// CatalogueEvent is an available campus event the recommender draws from.
type CatalogueEvent struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Date        string   `json:"date" yaml:"date"` // YYYY-MM-DD
	Time        string   `json:"time" yaml:"time"` // HH:MM
	Duration    int      `json:"duration" yaml:"duration"`
	Location    string   `json:"location" yaml:"location"`
	Category    Category `json:"category" yaml:"category"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty"`
	Capacity    int      `json:"capacity" yaml:"capacity"`
	Registered  int      `json:"registered" yaml:"registered"`
}

// Interval returns [date+time, date+time+duration) as naive wall-clock
// values.
func (e CatalogueEvent) Interval() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02T15:04", e.Date+"T"+e.Time)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("catalogue event %q: %w", e.ID, err)
	}
	return start, start.Add(time.Duration(e.Duration) * time.Minute), nil
}

// FreeSlot is an open interval inside the daily availability window.
type FreeSlot struct {
	Start    time.Time
	End      time.Time
	Duration int // minutes
}

// Recommendation is a catalogue event annotated with the slot it fits and
// its ranking confidence.
type Recommendation struct {
	CatalogueEvent
	RecommendedFor FreeSlot  `json:"recommendedFor"`
	Confidence     float64   `json:"confidence"`
	Match          MatchKind `json:"match"`
}

// Subscription is an external calendar URL the user imported from.
type Subscription struct {
	URL         string    `json:"url"`
	Name        string    `json:"name,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
	LastFetched time.Time `json:"lastFetched"`
}

// Calendar is the stored per-user calendar document.
type Calendar struct {
	UserID        string          `json:"userId"`
	Events        []CalendarEvent `json:"events"`
	Subscriptions []Subscription  `json:"subscriptions,omitempty"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

type freeSlotJSON struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration int    `json:"duration"`
}

func (s FreeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(freeSlotJSON{
		Start:    s.Start.Format(StampLayout),
		End:      s.End.Format(StampLayout),
		Duration: s.Duration,
	})
}

func (s *FreeSlot) UnmarshalJSON(b []byte) error {
	var v freeSlotJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	start, err := time.Parse(StampLayout, v.Start)
	if err != nil {
		return err
	}
	end, err := time.Parse(StampLayout, v.End)
	if err != nil {
		return err
	}
	*s = FreeSlot{Start: start, End: end, Duration: v.Duration}
	return nil
}
