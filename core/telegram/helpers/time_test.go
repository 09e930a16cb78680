package helpers

import (
	"testing"
	"time"
)

func TestParseFlexibleDate(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{"2026-10-20", time.Date(2026, 10, 20, 0, 0, 0, 0, berlin), true},
		{" 20.10.2026 15:00 ", time.Date(2026, 10, 20, 15, 0, 0, 0, berlin), true},
		{"2026-1-5", time.Date(2026, 1, 5, 0, 0, 0, 0, berlin), true},
		{"24.10", time.Date(2026, 10, 24, 0, 0, 0, 0, berlin), true},
		{"tomorrow", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFlexibleDate(tt.in, berlin, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
