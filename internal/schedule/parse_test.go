package schedule

import (
	"testing"
	"time"
)

func TestParseScheduleISO(t *testing.T) {
	got, err := ParseSchedule("2026-03-15", "9", "30", time.UTC)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	want := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseScheduleSerial(t *testing.T) {
	// Serial 2 = 1900-01-01 on the 1899-12-30 epoch.
	got, err := ParseSchedule("2", "", "", time.UTC)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	want := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseScheduleSerialFractionIgnored(t *testing.T) {
	whole, err := ParseSchedule("45000", "12", "0", time.UTC)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	frac, err := ParseSchedule("45000.75", "12", "0", time.UTC)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if !whole.Equal(frac) {
		t.Errorf("fractional serial changed the day: %v vs %v", whole, frac)
	}
}

func TestParseScheduleBlankClockDefaultsToMidnight(t *testing.T) {
	got, err := ParseSchedule("2026-03-15", "", "", time.UTC)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if got.Hour() != 0 || got.Minute() != 0 {
		t.Errorf("blank clock cells must default to 00:00, got %v", got)
	}
}

func TestParseScheduleErrors(t *testing.T) {
	tests := []struct {
		name               string
		date, hour, minute string
	}{
		{"empty date", "", "1", "2"},
		{"garbage date", "not a date", "1", "2"},
		{"serial below one", "0.5", "", ""},
		{"negative serial", "-3", "", ""},
		{"hour out of range", "2026-03-15", "24", "0"},
		{"minute out of range", "2026-03-15", "0", "60"},
		{"non-numeric hour", "2026-03-15", "nine", "0"},
		{"non-numeric minute", "2026-03-15", "0", "half"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSchedule(tt.date, tt.hour, tt.minute, time.UTC); err == nil {
				t.Errorf("ParseSchedule(%q, %q, %q) expected error", tt.date, tt.hour, tt.minute)
			}
		})
	}
}
