package timeparsing

import (
	"testing"
	"time"
)

func TestParseNaturalLanguage(t *testing.T) {
	// Wednesday, January 15, 2025, 10:00 local.
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantHour  int // -1 skips the hour check
		wantErr   bool
	}{
		{name: "tomorrow", input: "tomorrow", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: -1},
		{name: "yesterday", input: "yesterday", wantYear: 2025, wantMonth: time.January, wantDay: 14, wantHour: -1},

		// Reference day is a Wednesday, so "next friday" lands in the
		// same week and "next monday" in the following one.
		{name: "next monday", input: "next monday", wantYear: 2025, wantMonth: time.January, wantDay: 20, wantHour: -1},
		{name: "next friday", input: "next friday", wantYear: 2025, wantMonth: time.January, wantDay: 17, wantHour: -1},

		{name: "tomorrow at 9am", input: "tomorrow at 9am", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: 9},
		{name: "next monday at 2pm", input: "next monday at 2pm", wantYear: 2025, wantMonth: time.January, wantDay: 20, wantHour: 14},

		{name: "in 3 days", input: "in 3 days", wantYear: 2025, wantMonth: time.January, wantDay: 18, wantHour: -1},
		{name: "in 1 week", input: "in 1 week", wantYear: 2025, wantMonth: time.January, wantDay: 22, wantHour: -1},
		{name: "3 days ago", input: "3 days ago", wantYear: 2025, wantMonth: time.January, wantDay: 12, wantHour: -1},

		{name: "random text", input: "not a date at all", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNaturalLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Year() != tt.wantYear || got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseNaturalLanguage(%q) = %v, want %d-%02d-%02d",
					tt.input, got, tt.wantYear, tt.wantMonth, tt.wantDay)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseNaturalLanguage(%q) hour = %d, want %d", tt.input, got.Hour(), tt.wantHour)
			}
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantHour  int // -1 skips the hour check
		wantErr   bool
	}{
		{name: "compact +1d keeps the hour", input: "+1d", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: 10},
		{name: "compact +6h", input: "+6h", wantYear: 2025, wantMonth: time.January, wantDay: 15, wantHour: 16},

		{name: "natural tomorrow", input: "tomorrow", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: -1},
		{name: "natural next monday", input: "next monday", wantYear: 2025, wantMonth: time.January, wantDay: 20, wantHour: -1},

		{name: "date-only is midnight", input: "2025-02-01", wantYear: 2025, wantMonth: time.February, wantDay: 1, wantHour: 0},
		{name: "RFC3339", input: "2025-03-15T14:30:00Z", wantYear: 2025, wantMonth: time.March, wantDay: 15, wantHour: 14},

		{name: "invalid expression", input: "not-a-date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRelativeTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Year() != tt.wantYear || got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseRelativeTime(%q) = %v, want %d-%02d-%02d",
					tt.input, got, tt.wantYear, tt.wantMonth, tt.wantDay)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseRelativeTime(%q) hour = %d, want %d", tt.input, got.Hour(), tt.wantHour)
			}
		})
	}
}

// A literal date must parse as a timestamp, never through the language
// layer, and compact durations win over everything.
func TestParseRelativeTimeLayerOrder(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	t1, err := ParseRelativeTime("+1d", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(+1d) failed: %v", err)
	}
	if want := now.AddDate(0, 0, 1); !t1.Equal(want) {
		t.Errorf("ParseRelativeTime(+1d) = %v, want %v", t1, want)
	}

	t2, err := ParseRelativeTime("2025-01-20", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(2025-01-20) failed: %v", err)
	}
	if t2.Day() != 20 || t2.Month() != time.January || t2.Year() != 2025 || t2.Hour() != 0 {
		t.Errorf("ParseRelativeTime(2025-01-20) = %v, want midnight Jan 20 2025", t2)
	}
}
