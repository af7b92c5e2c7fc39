package markethours

import (
	"testing"
	"time"
)

// 2026-08-31 is a Monday and not an NSE holiday.
func istTime(hour, min int) time.Time {
	return time.Date(2026, time.August, 31, hour, min, 0, 0, IST)
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", istTime(9, 14), false},
		{"at open", istTime(9, 15), true},
		{"midday", istTime(12, 0), true},
		{"last minute", istTime(15, 29), true},
		{"at close", istTime(15, 30), false},
		{"saturday", time.Date(2026, time.August, 29, 12, 0, 0, 0, IST), false},
		{"republic day", time.Date(2026, time.January, 26, 12, 0, 0, 0, IST), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsMarketOpen(tc.t); got != tc.want {
				t.Errorf("IsMarketOpen(%v) = %v, want %v", tc.t, got, tc.want)
			}
		})
	}
}

func TestPastSquareOff(t *testing.T) {
	if PastSquareOff(istTime(15, 24)) {
		t.Error("15:24 should be before square-off")
	}
	if !PastSquareOff(istTime(15, 25)) {
		t.Error("15:25 should be at square-off")
	}
	if !PastSquareOff(istTime(15, 40)) {
		t.Error("15:40 should be past square-off")
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	// Friday 2026-08-28 after close → next open is Monday 2026-08-31.
	fri := time.Date(2026, time.August, 28, 16, 0, 0, 0, IST)
	next := NextOpen(fri)
	if next.Weekday() != time.Monday || next.Day() != 31 {
		t.Errorf("NextOpen(%v) = %v, want Monday 31st", fri, next)
	}
	if next.Hour() != OpenHour || next.Minute() != OpenMinute {
		t.Errorf("NextOpen time = %02d:%02d, want %02d:%02d", next.Hour(), next.Minute(), OpenHour, OpenMinute)
	}
}

func TestTodayAnalysisAfterOpen(t *testing.T) {
	now := istTime(9, 0)
	an := TodayAnalysis(now)
	open := NextOpen(now)
	if !an.After(open) {
		t.Errorf("analysis time %v should be after open %v", an, open)
	}
}
