package model

import "time"

// ExitCause identifies why a position was closed.
type ExitCause string

const (
	ExitStoploss    ExitCause = "stoploss"
	ExitTarget      ExitCause = "target"
	ExitMaxDuration ExitCause = "time"
	ExitMarketClose ExitCause = "market_close"
	ExitTriggered   ExitCause = "gtt_triggered"
	ExitShutdown    ExitCause = "shutdown"
	ExitManual      ExitCause = "manual"
	ExitPartial     ExitCause = "partial"
)

// ActiveTrade is the single live position. All mutation happens inside the
// position controller under its mutex; nothing else holds a reference.
type ActiveTrade struct {
	TraceID          string    `json:"trace_id"` // correlates log lines across the trade's life
	Symbol           string    `json:"symbol"`
	Side             Side      `json:"side"`
	Qty              int64     `json:"qty"` // decreases on partial exit
	EntryQty         int64     `json:"entry_qty"`
	EntryPrice       float64   `json:"entry_price"`
	EntryTime        time.Time `json:"entry_time"`
	Stoploss         float64   `json:"stoploss"`          // ratchets up, never down
	OriginalStoploss float64   `json:"original_stoploss"` // risk floor, immutable
	Target           float64   `json:"target"`
	MaxExitTime      time.Time `json:"max_exit_time"` // entry + holding window
	LastKnownPrice   float64   `json:"last_known_price"`
	MaxUp            float64   `json:"max_up"`   // best unrealized P&L seen
	MaxDown          float64   `json:"max_down"` // worst unrealized P&L seen
	PartialExitsDone []bool    `json:"partial_exits_done"` // index-aligned with config rules
	PaperTrade       bool      `json:"paper_trade"`
}

// UnrealizedPnL is the open profit at the given price for the remaining quantity.
func (t *ActiveTrade) UnrealizedPnL(price float64) float64 {
	return (price - t.EntryPrice) * float64(t.Qty)
}

// ProfitPct is the unrealized profit as a percentage of the entry price.
func (t *ActiveTrade) ProfitPct(price float64) float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return (price - t.EntryPrice) / t.EntryPrice * 100
}

// CompletedTrade is the immutable record emitted to the trade sink when a
// position closes (fully, or as a partial-exit slice).
type CompletedTrade struct {
	TraceID      string        `json:"trace_id"`
	Symbol       string        `json:"symbol"`
	Direction    string        `json:"direction"`
	Qty          int64         `json:"qty"` // quantity closed by this record
	EntryQty     int64         `json:"entry_qty"`
	EntryPrice   float64       `json:"entry_price"`
	ExitPrice    float64       `json:"exit_price"`
	EntryTime    time.Time     `json:"entry_time"`
	ExitTime     time.Time     `json:"exit_time"`
	Cause        ExitCause     `json:"cause"`
	GrossPnL     float64       `json:"gross_pnl"`
	Charges      float64       `json:"charges"`
	NetPnL       float64       `json:"net_pnl"`
	TrailingStop float64       `json:"trailing_stop"` // final stoploss level
	MaxUp        float64       `json:"max_up"`
	MaxDown      float64       `json:"max_down"`
	Duration     time.Duration `json:"duration"`
	PaperTrade   bool          `json:"paper_trade"`
	Partial      bool          `json:"partial"`
}
