package journal

import (
	"path/filepath"
	"testing"
	"time"

	"oibreakout/internal/markethours"
	"oibreakout/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleTrade(exitTime time.Time, netPnL float64, partial bool) model.CompletedTrade {
	return model.CompletedTrade{
		Symbol:     "NSE:NIFTY2590924500PE",
		Direction:  "BUY",
		Qty:        75,
		EntryQty:   75,
		EntryPrice: 100,
		ExitPrice:  110,
		EntryTime:  exitTime.Add(-15 * time.Minute),
		ExitTime:   exitTime,
		Cause:      model.ExitTarget,
		GrossPnL:   750,
		Charges:    65.5,
		NetPnL:     netPnL,
		Duration:   15 * time.Minute,
		PaperTrade: true,
		Partial:    partial,
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	now := time.Date(2026, 8, 31, 10, 30, 0, 0, markethours.IST)

	if err := j.Record(sampleTrade(now, 684.5, false)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(sampleTrade(now.Add(time.Hour), 120, true)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recent, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("rows = %d, want 2", len(recent))
	}
	// Newest first.
	if !recent[0].Partial || recent[1].Partial {
		t.Errorf("ordering wrong: %+v", recent)
	}

	got := recent[1]
	if got.Cause != model.ExitTarget || got.NetPnL != 684.5 || got.Duration != 15*time.Minute {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if !got.ExitTime.Equal(now) {
		t.Errorf("exit time = %v, want %v", got.ExitTime, now)
	}
}

func TestDailyPnL(t *testing.T) {
	j := openTestJournal(t)
	day := time.Date(2026, 8, 31, 11, 0, 0, 0, markethours.IST)

	j.Record(sampleTrade(day, 500, false))
	j.Record(sampleTrade(day.Add(2*time.Hour), -200, false))
	j.Record(sampleTrade(day.AddDate(0, 0, -1), 9999, false)) // yesterday

	pnl, err := j.DailyPnL(day)
	if err != nil {
		t.Fatalf("DailyPnL: %v", err)
	}
	if pnl != 300 {
		t.Errorf("pnl = %v, want 300", pnl)
	}
}

func TestDailyPnL_Empty(t *testing.T) {
	j := openTestJournal(t)
	pnl, err := j.DailyPnL(time.Now())
	if err != nil {
		t.Fatalf("DailyPnL: %v", err)
	}
	if pnl != 0 {
		t.Errorf("pnl = %v, want 0 with no trades", pnl)
	}
}
