// Package orderbook tracks conditional (GTT-style) trigger orders and
// detects triggers against live prices, independent of any broker
// connection. In paper mode orders live purely in memory; in live mode
// placement is delegated to an injected broker client.
package orderbook

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"oibreakout/internal/model"
)

var (
	// ErrNotFound is returned when the order id is unknown.
	ErrNotFound = errors.New("orderbook: order not found")
	// ErrNotPending is returned when the order already left Pending.
	ErrNotPending = errors.New("orderbook: order not pending")
)

// BrokerPlacer places a live trigger order with the broker. Only consulted
// when paper trading is off.
type BrokerPlacer interface {
	PlaceTriggerOrder(o model.TriggerOrder) error
}

// PlaceParams describes a trigger order to register.
type PlaceParams struct {
	Symbol       string
	Side         model.Side
	Qty          int64
	TriggerPrice float64
	TriggerDir   model.TriggerDirection // zero value defers to the side
	LimitPrice   float64                // 0 means market-on-trigger (limit = trigger)
	ProductType  string                 // defaults to INTRADAY
	Tag          string
	GroupID      string
}

// Book is the in-memory trigger-order registry. One mutex guards the order
// map and the group index so a trigger and a concurrent cancel can never
// race into an inconsistent state.
type Book struct {
	mu     sync.Mutex
	orders map[string]*model.TriggerOrder
	groups map[string]map[string]struct{} // groupID -> order ids

	expiry       time.Duration
	paperTrading bool
	broker       BrokerPlacer

	// Metrics hooks, optional.
	OnPlaced    func()
	OnTriggered func()
	OnCancelled func()
	OnExpired   func()
}

// New creates a Book. expiry bounds how long a Pending order stays armed.
func New(expiry time.Duration, paperTrading bool, broker BrokerPlacer) *Book {
	return &Book{
		orders:       make(map[string]*model.TriggerOrder),
		groups:       make(map[string]map[string]struct{}),
		expiry:       expiry,
		paperTrading: paperTrading,
		broker:       broker,
	}
}

// Place registers a trigger order and returns its id. In live mode the
// broker call runs first; a broker failure records the order as Error and
// returns the failure.
func (b *Book) Place(p PlaceParams) (string, error) {
	o := &model.TriggerOrder{
		OrderID:      uuid.NewString(),
		Symbol:       p.Symbol,
		Side:         p.Side,
		Qty:          p.Qty,
		TriggerPrice: p.TriggerPrice,
		TriggerDir:   p.TriggerDir,
		LimitPrice:   p.LimitPrice,
		ProductType:  p.ProductType,
		Tag:          p.Tag,
		GroupID:      p.GroupID,
		Status:       model.StatusPending,
		CreatedAt:    time.Now(),
	}
	if o.LimitPrice == 0 {
		o.LimitPrice = o.TriggerPrice
	}
	if o.ProductType == "" {
		o.ProductType = "INTRADAY"
	}

	if !b.paperTrading && b.broker != nil {
		if err := b.broker.PlaceTriggerOrder(*o); err != nil {
			o.Status = model.StatusError
			o.TerminalAt = time.Now()
			o.Reason = err.Error()
			b.mu.Lock()
			b.orders[o.OrderID] = o
			b.mu.Unlock()
			return "", err
		}
	}

	b.mu.Lock()
	b.orders[o.OrderID] = o
	if o.GroupID != "" {
		g := b.groups[o.GroupID]
		if g == nil {
			g = make(map[string]struct{})
			b.groups[o.GroupID] = g
		}
		g[o.OrderID] = struct{}{}
	}
	b.mu.Unlock()

	if b.OnPlaced != nil {
		b.OnPlaced()
	}
	log.Printf("[orderbook] placed %s %s qty=%d trigger=%.2f tag=%s group=%s id=%s",
		o.Side, o.Symbol, o.Qty, o.TriggerPrice, o.Tag, o.GroupID, o.OrderID)
	return o.OrderID, nil
}

// Cancel moves a Pending order to Cancelled.
func (b *Book) Cancel(orderID, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelLocked(orderID, reason)
}

func (b *Book) cancelLocked(orderID, reason string) error {
	o, ok := b.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status != model.StatusPending {
		return ErrNotPending
	}
	o.Status = model.StatusCancelled
	o.TerminalAt = time.Now()
	o.Reason = reason
	b.removeFromGroupLocked(o)
	if b.OnCancelled != nil {
		b.OnCancelled()
	}
	log.Printf("[orderbook] cancelled %s (%s)", orderID, reason)
	return nil
}

func (b *Book) removeFromGroupLocked(o *model.TriggerOrder) {
	if o.GroupID == "" {
		return
	}
	if g, ok := b.groups[o.GroupID]; ok {
		delete(g, o.OrderID)
		if len(g) == 0 {
			delete(b.groups, o.GroupID)
		}
	}
}

// CancelGroup cancels every Pending member of a group except exceptID.
func (b *Book) CancelGroup(groupID, exceptID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelGroupLocked(groupID, exceptID, reason)
}

func (b *Book) cancelGroupLocked(groupID, exceptID, reason string) {
	for id := range b.groups[groupID] {
		if id == exceptID {
			continue
		}
		if err := b.cancelLocked(id, reason); err != nil && err != ErrNotPending {
			log.Printf("[orderbook] group cancel %s: %v", id, err)
		}
	}
}

// EvaluateTriggers scans Pending orders against current prices and returns
// the orders that transitioned to Triggered in this call. Expiry is checked
// first; a missing price leaves the order Pending for the next pass. A
// triggered order cancels its Pending group siblings before the call
// returns, so at most one order per group ever triggers.
func (b *Book) EvaluateTriggers(lookup func(symbol string) (float64, bool)) []model.TriggerOrder {
	now := time.Now()
	var triggered []model.TriggerOrder

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, o := range b.orders {
		if o.Status != model.StatusPending {
			continue
		}
		if b.expiry > 0 && now.Sub(o.CreatedAt) > b.expiry {
			o.Status = model.StatusExpired
			o.TerminalAt = now
			b.removeFromGroupLocked(o)
			if b.OnExpired != nil {
				b.OnExpired()
			}
			log.Printf("[orderbook] expired %s after %s", o.OrderID, b.expiry)
			continue
		}

		price, ok := lookup(o.Symbol)
		if !ok {
			log.Printf("[orderbook] no price for %s, skipping trigger check", o.Symbol)
			continue
		}

		var hit bool
		switch o.TriggerDir {
		case model.TriggerAbove:
			hit = price >= o.TriggerPrice
		case model.TriggerBelow:
			hit = price <= o.TriggerPrice
		default:
			hit = (o.Side == model.SideBuy && price >= o.TriggerPrice) ||
				(o.Side == model.SideSell && price <= o.TriggerPrice)
		}
		if !hit {
			continue
		}

		o.Status = model.StatusTriggered
		o.TerminalAt = now
		if o.GroupID != "" {
			b.cancelGroupLocked(o.GroupID, o.OrderID, "group sibling triggered")
			b.removeFromGroupLocked(o)
		}
		triggered = append(triggered, *o)
		if b.OnTriggered != nil {
			b.OnTriggered()
		}
		log.Printf("[orderbook] triggered %s %s at %.2f (trigger %.2f)",
			o.Side, o.Symbol, price, o.TriggerPrice)
	}
	return triggered
}

// OrdersByStatus returns a snapshot of orders with the given status.
func (b *Book) OrdersByStatus(status model.OrderStatus) []model.TriggerOrder {
	return b.filter(func(o *model.TriggerOrder) bool { return o.Status == status })
}

// OrdersBySymbol returns a snapshot of orders for the symbol.
func (b *Book) OrdersBySymbol(symbol string) []model.TriggerOrder {
	return b.filter(func(o *model.TriggerOrder) bool { return o.Symbol == symbol })
}

// OrdersByTag returns a snapshot of orders carrying the tag.
func (b *Book) OrdersByTag(tag string) []model.TriggerOrder {
	return b.filter(func(o *model.TriggerOrder) bool { return o.Tag == tag })
}

// Get returns a copy of one order.
func (b *Book) Get(orderID string) (model.TriggerOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return model.TriggerOrder{}, false
	}
	return *o, true
}

func (b *Book) filter(keep func(*model.TriggerOrder) bool) []model.TriggerOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.TriggerOrder
	for _, o := range b.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	return out
}

// Sweep removes terminal orders from memory and returns how many were
// dropped. Meant for long-running sessions; Pending orders are untouched.
func (b *Book) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, o := range b.orders {
		if o.Status.Terminal() {
			delete(b.orders, id)
			n++
		}
	}
	if n > 0 {
		log.Printf("[orderbook] swept %d terminal orders", n)
	}
	return n
}

// Reset clears all state (session rollover).
func (b *Book) Reset() {
	b.mu.Lock()
	b.orders = make(map[string]*model.TriggerOrder)
	b.groups = make(map[string]map[string]struct{})
	b.mu.Unlock()
}
