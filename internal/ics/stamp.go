package ics

import (
	"strings"
	"time"

	"uqconnect/internal/model"
)

// genericLayouts are tried, in order, for tokens that contain a 'T' but do
// not match one of the basic ICS shapes.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"20060102T150405-0700",
}

// ParseStamp normalizes an ICS date/date-time token into a model.Stamp.
//
// A single trailing 'Z' is trimmed and otherwise ignored; no timezone
// conversion is performed. Recognized shapes:
//
//	YYYYMMDD         midnight of that date
//	YYYYMMDDTHHMMSS  exact second
//	YYYYMMDDTHHMM    exact minute
//
// Other tokens containing a 'T' go through a generic layout list. Anything
// left over is returned as model.Unparsed(token).
func ParseStamp(token string) model.Stamp {
	token = strings.TrimSuffix(strings.TrimSpace(token), "Z")

	var layout string
	switch len(token) {
	case 8:
		layout = "20060102"
	case 15:
		layout = "20060102T150405"
	case 13:
		layout = "20060102T1504"
	}
	if layout != "" && isBasicShape(token) {
		if t, err := time.Parse(layout, token); err == nil {
			return model.At(t)
		}
	}

	if strings.Contains(token, "T") {
		for _, l := range genericLayouts {
			if t, err := time.Parse(l, token); err == nil {
				return model.At(t)
			}
		}
	}

	return model.Unparsed(token)
}

// isBasicShape reports whether token is all digits except for a 'T' at
// index 8.
func isBasicShape(token string) bool {
	for i := 0; i < len(token); i++ {
		c := token[i]
		if i == 8 && len(token) > 8 {
			if c != 'T' {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
