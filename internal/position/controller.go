// Package position owns the single active trade and the monitoring state
// machine that decides entry confirmation, trailing-stop ratcheting,
// partial exits, and every forced exit.
//
// All trade state lives behind one mutex: EnterPosition, MonitoringTick,
// and ProcessExit can never interleave into a partial state. At most one
// trade exists system-wide, and only one trade may be taken per session.
package position

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"oibreakout/config"
	"oibreakout/internal/logger"
	"oibreakout/internal/markethours"
	"oibreakout/internal/model"
	"oibreakout/internal/orderbook"
)

var (
	// ErrTradeActive is returned when a position already exists.
	ErrTradeActive = errors.New("position: trade already active")
	// ErrDailyLimit is returned once today's single trade has been taken.
	ErrDailyLimit = errors.New("position: daily trade limit reached")
	// ErrBelowMinPremium rejects entries under the premium floor.
	ErrBelowMinPremium = errors.New("position: premium below minimum threshold")
)

// TradeSink receives completed-trade records. A failed Record keeps the
// trade open so the exit is retried on the next monitoring tick.
type TradeSink interface {
	Record(rec model.CompletedTrade) error
}

// Controller runs the per-trade state machine.
type Controller struct {
	mu   sync.Mutex
	cfg  config.StrategyConfig
	book *orderbook.Book
	sink TradeSink

	trade           *model.ActiveTrade
	tradeTakenToday bool
	exiting         bool // exit in flight; the sink call runs outside the mutex
	ocoGroup        string
	slOrderID       string
	targetOrderID   string

	// Event hooks, optional; called outside the mutex.
	OnEnter       func(model.ActiveTrade)
	OnExit        func(model.CompletedTrade)
	OnPartialExit func(model.CompletedTrade)
}

// NewController creates a Controller. book may be nil when protective
// trigger orders are not wanted (sink must not be nil).
func NewController(cfg config.StrategyConfig, book *orderbook.Book, sink TradeSink) *Controller {
	return &Controller{cfg: cfg, book: book, sink: sink}
}

// round1 and round3 match the precision the broker accepts: order levels to
// one decimal, trailing levels to three.
func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// EnterPosition opens the day's single trade. Rejections: an active trade
// or a consumed daily limit (state conflicts), or a premium below the
// configured floor (invalid input). Side effects on success: stoploss and
// target are derived from the entry, protective OCO trigger orders are
// registered, and the daily flag is set irrevocably.
func (c *Controller) EnterPosition(symbol string, side model.Side, entryPrice float64, now time.Time) (model.ActiveTrade, error) {
	c.mu.Lock()
	if c.trade != nil {
		c.mu.Unlock()
		return model.ActiveTrade{}, ErrTradeActive
	}
	if c.tradeTakenToday {
		c.mu.Unlock()
		return model.ActiveTrade{}, ErrDailyLimit
	}
	if entryPrice < c.cfg.MinPremiumThreshold {
		c.mu.Unlock()
		return model.ActiveTrade{}, fmt.Errorf("%w: %.2f < %.2f", ErrBelowMinPremium, entryPrice, c.cfg.MinPremiumThreshold)
	}

	stoploss := round1(entryPrice * (1 - c.cfg.StoplossPct/100))
	target := round1(entryPrice + (entryPrice-stoploss)*c.cfg.RiskRewardRatio)
	qty := c.cfg.LotSize

	trade := &model.ActiveTrade{
		TraceID:          logger.GenerateTraceID(symbol, now),
		Symbol:           symbol,
		Side:             side,
		Qty:              qty,
		EntryQty:         qty,
		EntryPrice:       entryPrice,
		EntryTime:        now,
		Stoploss:         stoploss,
		OriginalStoploss: stoploss,
		Target:           target,
		MaxExitTime:      now.Add(c.cfg.HoldingWindow()),
		LastKnownPrice:   entryPrice,
		PartialExitsDone: make([]bool, len(c.cfg.PartialExits)),
		PaperTrade:       c.cfg.PaperTrading,
	}
	c.trade = trade
	c.tradeTakenToday = true
	snapshot := *trade
	c.mu.Unlock()

	log.Printf("[position] ENTER %s %s qty=%d entry=%.2f sl=%.2f target=%.2f maxExit=%s paper=%v trace=%s",
		side, symbol, qty, entryPrice, stoploss, target,
		trade.MaxExitTime.In(markethours.IST).Format("15:04:05"), trade.PaperTrade, trade.TraceID)

	c.placeProtectiveOrders(snapshot)

	if c.OnEnter != nil {
		c.OnEnter(snapshot)
	}
	return snapshot, nil
}

// placeProtectiveOrders registers the OCO stoploss+target pair. Failures
// are logged, not fatal: the monitoring loop enforces both levels itself.
func (c *Controller) placeProtectiveOrders(t model.ActiveTrade) {
	if c.book == nil {
		return
	}
	group := "oco-" + t.Symbol + "-" + t.EntryTime.Format("150405")

	slID, err := c.book.Place(orderbook.PlaceParams{
		Symbol: t.Symbol, Side: model.SideSell, Qty: t.Qty,
		TriggerPrice: t.Stoploss, GroupID: group, Tag: "stoploss",
	})
	if err != nil {
		log.Printf("[position] stoploss order failed: %v", err)
		return
	}
	// The target sits above the market, unlike a default sell trigger.
	tgtID, err := c.book.Place(orderbook.PlaceParams{
		Symbol: t.Symbol, Side: model.SideSell, Qty: t.Qty,
		TriggerPrice: t.Target, TriggerDir: model.TriggerAbove,
		GroupID: group, Tag: "target",
	})
	if err != nil {
		log.Printf("[position] target order failed: %v", err)
	}

	c.mu.Lock()
	c.ocoGroup = group
	c.slOrderID = slID
	c.targetOrderID = tgtID
	c.mu.Unlock()
}

// ObservePrice folds a live tick into the open trade's last-known price
// and excursion tracking. Ticks for other symbols, non-positive prices,
// and ticks with no open trade are ignored. Exit decisions stay with
// MonitoringTick.
func (c *Controller) ObservePrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.trade
	if t == nil || t.Symbol != symbol || price <= 0 {
		return
	}
	t.LastKnownPrice = price
	pnl := t.UnrealizedPnL(price)
	if pnl > t.MaxUp {
		t.MaxUp = pnl
	}
	if pnl < t.MaxDown {
		t.MaxDown = pnl
	}
}

// Active returns a snapshot of the live trade, if any.
func (c *Controller) Active() (model.ActiveTrade, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trade == nil {
		return model.ActiveTrade{}, false
	}
	return *c.trade, true
}

// TradeTakenToday reports whether the daily limit is consumed.
func (c *Controller) TradeTakenToday() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tradeTakenToday
}

// ResetDay clears the daily flag at session rollover. Refuses while a
// trade is still open.
func (c *Controller) ResetDay() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trade != nil {
		return ErrTradeActive
	}
	c.tradeTakenToday = false
	c.ocoGroup, c.slOrderID, c.targetOrderID = "", "", ""
	return nil
}

// MonitoringTick runs one pass of the exit state machine. The checks are
// ordered so hard time cutoffs can never be bypassed by a favorable price,
// and a simultaneous stoploss/target breach deterministically resolves to
// stoploss. Returns true when the position was closed by this tick.
func (c *Controller) MonitoringTick(currentPrice float64, now time.Time) bool {
	c.mu.Lock()
	if c.trade == nil {
		c.mu.Unlock()
		return false
	}
	t := c.trade

	if currentPrice > 0 {
		t.LastKnownPrice = currentPrice
		pnl := t.UnrealizedPnL(currentPrice)
		if pnl > t.MaxUp {
			t.MaxUp = pnl
		}
		if pnl < t.MaxDown {
			t.MaxDown = pnl
		}
	} else {
		currentPrice = t.LastKnownPrice
	}

	switch {
	case markethours.PastSquareOff(now):
		c.mu.Unlock()
		return c.exitAndReport(model.ExitMarketClose, currentPrice, now)

	case !now.Before(t.MaxExitTime):
		c.mu.Unlock()
		return c.exitAndReport(model.ExitMaxDuration, currentPrice, now)

	case currentPrice <= t.Stoploss:
		// Exit at the defined level, not the overshot price.
		sl := t.Stoploss
		c.mu.Unlock()
		return c.exitAndReport(model.ExitStoploss, sl, now)

	case currentPrice >= t.Target:
		target := t.Target
		c.mu.Unlock()
		return c.exitAndReport(model.ExitTarget, target, now)
	}

	c.updateTrailingStopLocked(currentPrice)
	partial := c.checkPartialExitLocked(currentPrice, now)
	c.mu.Unlock()

	if partial != nil {
		if err := c.sink.Record(*partial); err != nil {
			log.Printf("[position] partial exit record failed: %v", err)
		}
		if c.OnPartialExit != nil {
			c.OnPartialExit(*partial)
		}
	}
	return false
}

func (c *Controller) exitAndReport(cause model.ExitCause, price float64, now time.Time) bool {
	if err := c.ProcessExit(cause, price, now); err != nil {
		log.Printf("[position] exit (%s) not confirmed, retrying next tick: %v", cause, err)
		return false
	}
	return true
}

// updateTrailingStopLocked ratchets the stoploss. The candidate applies
// only when it exceeds both the current stoploss and the original risk
// floor, so the level is monotonically non-decreasing for the life of the
// trade. Trailing arms only after profit reaches the trigger threshold.
func (c *Controller) updateTrailingStopLocked(currentPrice float64) {
	t := c.trade
	if c.cfg.TrailingTriggerPct > 0 && t.ProfitPct(currentPrice) < c.cfg.TrailingTriggerPct {
		return
	}
	candidate := round3(currentPrice * (1 - c.cfg.TrailingStopPct/100))
	if candidate > t.Stoploss && candidate > t.OriginalStoploss {
		old := t.Stoploss
		t.Stoploss = candidate
		log.Printf("[position] trailing stoploss %s: %.3f -> %.3f (price %.2f)",
			t.Symbol, old, candidate, currentPrice)
	}
}

// checkPartialExitLocked fires at most one rule per tick. A rule fires
// once per trade; a reduction that would leave less than one unit skips
// the rule without consuming it.
func (c *Controller) checkPartialExitLocked(currentPrice float64, now time.Time) *model.CompletedTrade {
	t := c.trade
	elapsed := now.Sub(t.EntryTime)
	for i, rule := range c.cfg.PartialExits {
		if t.PartialExitsDone[i] {
			continue
		}
		if elapsed < time.Duration(rule.TimeMinutes)*time.Minute {
			continue
		}
		if t.ProfitPct(currentPrice) < rule.MinProfitPct {
			continue
		}
		reduce := int64(math.Floor(float64(t.Qty) * rule.ExitPercentage / 100))
		if reduce <= 0 || t.Qty-reduce < 1 {
			log.Printf("[position] partial exit rule %d skipped: would leave %d units", i, t.Qty-reduce)
			continue
		}

		t.PartialExitsDone[i] = true
		t.Qty -= reduce
		log.Printf("[position] PARTIAL EXIT %s: closed %d at %.2f, %d remaining (rule %d: %dmin/%.1f%%/%.0f%%)",
			t.Symbol, reduce, currentPrice, t.Qty, i, rule.TimeMinutes, rule.MinProfitPct, rule.ExitPercentage)

		rec := c.buildRecord(t, reduce, currentPrice, model.ExitPartial, now)
		rec.Partial = true
		return &rec
	}
	return nil
}

// ProcessExit closes the trade. Idempotent: with no active trade, or an
// exit already in flight, it is a no-op. The trade is cleared only after
// the sink accepts the record; on sink failure the trade survives for a
// retry. Protective orders in the OCO group are cancelled. The daily flag
// stays set whatever the cause.
func (c *Controller) ProcessExit(cause model.ExitCause, exitPrice float64, now time.Time) error {
	c.mu.Lock()
	if c.trade == nil || c.exiting {
		c.mu.Unlock()
		return nil
	}
	c.exiting = true
	t := c.trade

	if exitPrice <= 0 {
		exitPrice = t.LastKnownPrice
	}
	if exitPrice <= 0 {
		exitPrice = t.EntryPrice
	}

	rec := c.buildRecord(t, t.Qty, exitPrice, cause, now)
	group := c.ocoGroup
	c.mu.Unlock()

	if err := c.sink.Record(rec); err != nil {
		c.mu.Lock()
		c.exiting = false
		c.mu.Unlock()
		return fmt.Errorf("position: record exit: %w", err)
	}

	c.mu.Lock()
	c.trade = nil
	c.exiting = false
	c.mu.Unlock()

	if c.book != nil && group != "" {
		c.book.CancelGroup(group, "", "position closed")
	}

	log.Printf("[position] EXIT %s | cause=%s entry=%.2f exit=%.2f qty=%d pnl=%.2f (net %.2f) duration=%s trace=%s",
		rec.Symbol, cause, rec.EntryPrice, rec.ExitPrice, rec.Qty, rec.GrossPnL, rec.NetPnL, rec.Duration, rec.TraceID)

	if c.OnExit != nil {
		c.OnExit(rec)
	}
	return nil
}

// buildRecord snapshots the trade into an immutable completed record for
// qty units closed at exitPrice. Caller holds the mutex.
func (c *Controller) buildRecord(t *model.ActiveTrade, qty int64, exitPrice float64, cause model.ExitCause, now time.Time) model.CompletedTrade {
	gross := (exitPrice - t.EntryPrice) * float64(qty)
	charges := estimateCharges(t.EntryPrice, exitPrice, qty)
	return model.CompletedTrade{
		TraceID:      t.TraceID,
		Symbol:       t.Symbol,
		Direction:    t.Side.String(),
		Qty:          qty,
		EntryQty:     t.EntryQty,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    exitPrice,
		EntryTime:    t.EntryTime,
		ExitTime:     now,
		Cause:        cause,
		GrossPnL:     gross,
		Charges:      charges,
		NetPnL:       gross - charges,
		TrailingStop: t.Stoploss,
		MaxUp:        t.MaxUp,
		MaxDown:      t.MaxDown,
		Duration:     now.Sub(t.EntryTime),
		PaperTrade:   t.PaperTrade,
	}
}
