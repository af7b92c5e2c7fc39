package position

import (
	"context"
	"log"
	"time"

	"oibreakout/internal/model"
)

// DefaultMonitorInterval is how often the live position is re-evaluated.
const DefaultMonitorInterval = time.Second

// PriceFunc resolves the current price for the traded symbol. The second
// return is false when no usable price exists (stale cache and failed
// quote fallback).
type PriceFunc func(symbol string) (float64, bool)

// Run monitors the active trade until it closes or ctx is cancelled.
// Returns the completed-trade cause path implicitly via hooks; callers
// just wait for it to return. A cancelled context with the trade still
// open flushes the position at the last known price so no trade is ever
// left dangling across a shutdown.
func (c *Controller) Run(ctx context.Context, price PriceFunc, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, ok := c.Active(); ok {
				log.Printf("[position] shutdown with open trade, flushing at last known price")
				if err := c.ProcessExit(model.ExitShutdown, 0, time.Now()); err != nil {
					log.Printf("[position] shutdown flush failed: %v", err)
				}
			}
			return
		case <-ticker.C:
			t, ok := c.Active()
			if !ok {
				return
			}
			p, ok := price(t.Symbol)
			if !ok {
				// Stale data still advances the clock-based exits.
				p = 0
			}
			if closed := c.MonitoringTick(p, time.Now()); closed {
				return
			}
			if closed := c.reconcileBook(price, time.Now()); closed {
				return
			}
		}
	}
}

// reconcileBook runs the trigger book against live prices: pending orders
// expire, and a protective order that fires outside the monitoring pass
// (a book stoploss left at the original level after trailing moved the
// controller's, for instance) closes the position at its trigger level.
func (c *Controller) reconcileBook(price PriceFunc, now time.Time) bool {
	if c.book == nil {
		return false
	}
	triggered := c.book.EvaluateTriggers(price)
	if len(triggered) == 0 {
		return false
	}

	c.mu.Lock()
	group := c.ocoGroup
	open := c.trade != nil
	c.mu.Unlock()
	if !open || group == "" {
		return false
	}

	for _, o := range triggered {
		if o.GroupID != group {
			continue
		}
		log.Printf("[position] protective order %s (%s) triggered at %.2f", o.OrderID, o.Tag, o.TriggerPrice)
		return c.exitAndReport(model.ExitTriggered, o.TriggerPrice, now)
	}
	return false
}
