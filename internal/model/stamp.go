package model

import (
	"encoding/json"
	"strings"
	"time"
)

// StampLayout is the canonical wire form of a parsed Stamp.
const StampLayout = "2006-01-02T15:04:05"

// Stamp is a naive local wall-clock timestamp. It is either parsed (a
// concrete instant, carried in the UTC location without any conversion) or
// unparsed, in which case only the raw source token is kept.
type Stamp struct {
	t      time.Time
	raw    string
	parsed bool
}

// At returns a parsed Stamp for the wall-clock fields of t. The location of
// t is discarded, not converted.
func At(t time.Time) Stamp {
	return Stamp{t: Wall(t), parsed: true}
}

// Unparsed returns a Stamp that only carries the raw token.
func Unparsed(raw string) Stamp {
	return Stamp{raw: raw}
}

// Wall strips the location of t, keeping its wall-clock fields.
func Wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func (s Stamp) Parsed() bool { return s.parsed }

// Time returns the parsed instant and true, or the zero time and false.
func (s Stamp) Time() (time.Time, bool) {
	return s.t, s.parsed
}

func (s Stamp) Raw() string { return s.raw }

// IsZero reports whether s carries neither an instant nor a raw token.
func (s Stamp) IsZero() bool {
	return !s.parsed && s.raw == ""
}

// Add returns s shifted by d. Unparsed stamps are returned unchanged.
func (s Stamp) Add(d time.Duration) Stamp {
	if !s.parsed {
		return s
	}
	return Stamp{t: s.t.Add(d), parsed: true}
}

// Equal reports whether both stamps are parsed and denote the same instant.
func (s Stamp) Equal(o Stamp) bool {
	return s.parsed && o.parsed && s.t.Equal(o.t)
}

func (s Stamp) String() string {
	if s.parsed {
		return s.t.Format(StampLayout)
	}
	return s.raw
}

func (s Stamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stamp) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = ParseWire(v)
	return nil
}

var wireLayouts = []string{
	StampLayout,
	"2006-01-02T15:04",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseWire decodes the JSON form of a Stamp. Offsets in RFC 3339 input are
// dropped and the wall clock kept. Anything unrecognized becomes Unparsed.
func ParseWire(v string) Stamp {
	v = strings.TrimSpace(v)
	if v == "" {
		return Stamp{}
	}
	for _, layout := range wireLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return At(t)
		}
	}
	return Unparsed(v)
}
