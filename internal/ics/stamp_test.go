package ics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStamp(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		want   string
		parsed bool
	}{
		{"date", "20250115", "2025-01-15T00:00:00", true},
		{"datetime", "20250115T093000", "2025-01-15T09:30:00", true},
		{"utc suffix ignored", "20250115T093000Z", "2025-01-15T09:30:00", true},
		{"minute precision", "20250115T0930", "2025-01-15T09:30:00", true},
		{"surrounding space", "  20250115T093000 ", "2025-01-15T09:30:00", true},
		{"rfc3339 offset keeps wall clock", "2025-01-15T09:30:00+10:00", "2025-01-15T09:30:00", true},
		{"iso without seconds", "2025-01-15T09:30", "2025-01-15T09:30:00", true},
		{"basic with offset", "20250115T093000+1000", "2025-01-15T09:30:00", true},
		{"garbage", "not-a-date", "not-a-date", false},
		{"eight letters", "abcdefgh", "abcdefgh", false},
		{"invalid month", "20251315", "20251315", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStamp(tt.token)
			assert.Equal(t, tt.parsed, got.Parsed())
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseStamp_Empty(t *testing.T) {
	assert.True(t, ParseStamp("").IsZero())
	assert.True(t, ParseStamp("Z").IsZero())
}
