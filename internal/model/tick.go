package model

import "time"

// Tick represents a single market data tick from the broker WebSocket.
// Option premiums are quoted in rupees with a 0.05 tick size, so prices
// are kept as float64 and rounded only at decision points.
type Tick struct {
	Symbol string    `json:"symbol"`
	LTP    float64   `json:"ltp"`
	Volume int64     `json:"vol_traded_today"` // cumulative day volume
	TickTS time.Time `json:"tick_ts"`          // receive timestamp, UTC
}
