package stream

import (
	"testing"
	"time"

	"oibreakout/internal/model"
)

func TestCache_LatestWins(t *testing.T) {
	c := NewCache()
	c.Update(model.Tick{Symbol: "NSE:NIFTY2590924500CE", LTP: 101.5})
	c.Update(model.Tick{Symbol: "NSE:NIFTY2590924500CE", LTP: 102.0})

	ltp, ok := c.LTP("NSE:NIFTY2590924500CE")
	if !ok {
		t.Fatal("expected cached price")
	}
	if ltp != 102.0 {
		t.Errorf("LTP = %v, want 102.0 (latest tick wins)", ltp)
	}
}

func TestCache_MissingSymbol(t *testing.T) {
	c := NewCache()
	if _, ok := c.LTP("NSE:UNKNOWN"); ok {
		t.Error("expected no price for unknown symbol")
	}
	if _, ok := c.Age("NSE:UNKNOWN"); ok {
		t.Error("expected no age for unknown symbol")
	}
}

func TestCache_Fresh(t *testing.T) {
	c := NewCache()
	c.Update(model.Tick{Symbol: "NSE:X25000PE", LTP: 55})

	if _, ok := c.Fresh("NSE:X25000PE", time.Minute); !ok {
		t.Error("just-written entry should be fresh within a minute")
	}
	if _, ok := c.Fresh("NSE:X25000PE", 0); ok {
		t.Error("zero max age should never be fresh")
	}
}

func TestCache_Reset(t *testing.T) {
	c := NewCache()
	c.Update(model.Tick{Symbol: "NSE:X25000PE", LTP: 55})
	c.Reset()
	if _, ok := c.LTP("NSE:X25000PE"); ok {
		t.Error("expected empty cache after reset")
	}
}
