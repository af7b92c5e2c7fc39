package orderbook

import (
	"errors"
	"testing"
	"time"

	"oibreakout/internal/model"
)

const sym = "NSE:NIFTY2590924500CE"

func newPaperBook() *Book {
	return New(24*time.Hour, true, nil)
}

func staticPrice(p float64) func(string) (float64, bool) {
	return func(string) (float64, bool) { return p, true }
}

func TestPlaceAndGet(t *testing.T) {
	b := newPaperBook()
	id, err := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	o, ok := b.Get(id)
	if !ok {
		t.Fatal("expected order")
	}
	if o.Status != model.StatusPending {
		t.Errorf("status = %s, want PENDING", o.Status)
	}
	if o.LimitPrice != 90 {
		t.Errorf("limit = %v, want trigger price 90 for market-on-trigger", o.LimitPrice)
	}
	if o.ProductType != "INTRADAY" {
		t.Errorf("product = %s, want INTRADAY default", o.ProductType)
	}
}

func TestCancel(t *testing.T) {
	b := newPaperBook()
	id, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90})

	if err := b.Cancel(id, "test"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := b.Cancel(id, "again"); !errors.Is(err, ErrNotPending) {
		t.Errorf("second cancel err = %v, want ErrNotPending", err)
	}
	if err := b.Cancel("no-such-id", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancel unknown err = %v, want ErrNotFound", err)
	}
}

func TestEvaluateTriggers_BuySellDirections(t *testing.T) {
	b := newPaperBook()
	buyID, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideBuy, Qty: 75, TriggerPrice: 110})
	sellID, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90})

	// Price between the two triggers: nothing fires.
	if got := b.EvaluateTriggers(staticPrice(100)); len(got) != 0 {
		t.Fatalf("triggered at 100: %v", got)
	}

	// Buy fires at price >= trigger.
	got := b.EvaluateTriggers(staticPrice(110))
	if len(got) != 1 || got[0].OrderID != buyID {
		t.Fatalf("expected buy order to trigger at 110, got %v", got)
	}

	// Sell fires at price <= trigger.
	got = b.EvaluateTriggers(staticPrice(89.95))
	if len(got) != 1 || got[0].OrderID != sellID {
		t.Fatalf("expected sell order to trigger at 89.95, got %v", got)
	}

	// Already-terminal orders are not re-returned.
	if got := b.EvaluateTriggers(staticPrice(200)); len(got) != 0 {
		t.Errorf("terminal orders re-triggered: %v", got)
	}
}

func TestEvaluateTriggers_DirectionOverride(t *testing.T) {
	b := newPaperBook()
	// A target sell arms above the market, overriding the sell default.
	id, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75,
		TriggerPrice: 120, TriggerDir: model.TriggerAbove, Tag: "target"})

	if got := b.EvaluateTriggers(staticPrice(100)); len(got) != 0 {
		t.Fatalf("target sell triggered below its level: %v", got)
	}
	got := b.EvaluateTriggers(staticPrice(120))
	if len(got) != 1 || got[0].OrderID != id {
		t.Fatalf("expected target to trigger at 120, got %v", got)
	}
}

func TestEvaluateTriggers_GroupMutualExclusivity(t *testing.T) {
	b := newPaperBook()
	slID, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90, GroupID: "oco-1", Tag: "stoploss"})
	tgtID, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 120, TriggerDir: model.TriggerAbove, GroupID: "oco-1", Tag: "target"})

	got := b.EvaluateTriggers(staticPrice(85))
	if len(got) != 1 || got[0].OrderID != slID {
		t.Fatalf("expected stoploss leg to trigger, got %v", got)
	}

	// The sibling was cancelled in the same call.
	tgt, _ := b.Get(tgtID)
	if tgt.Status != model.StatusCancelled {
		t.Errorf("sibling status = %s, want CANCELLED", tgt.Status)
	}

	// Even at the target price, the cancelled sibling can never trigger.
	if got := b.EvaluateTriggers(staticPrice(150)); len(got) != 0 {
		t.Errorf("cancelled sibling triggered: %v", got)
	}
}

func TestEvaluateTriggers_MissingPriceLeavesPending(t *testing.T) {
	b := newPaperBook()
	id, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90})

	noPrice := func(string) (float64, bool) { return 0, false }
	if got := b.EvaluateTriggers(noPrice); len(got) != 0 {
		t.Fatalf("triggered without price: %v", got)
	}
	o, _ := b.Get(id)
	if o.Status != model.StatusPending {
		t.Errorf("status = %s, want PENDING after missing price", o.Status)
	}
}

func TestEvaluateTriggers_Expiry(t *testing.T) {
	b := New(10*time.Millisecond, true, nil)
	id, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90})

	time.Sleep(20 * time.Millisecond)
	if got := b.EvaluateTriggers(staticPrice(50)); len(got) != 0 {
		t.Fatalf("expired order triggered: %v", got)
	}
	o, _ := b.Get(id)
	if o.Status != model.StatusExpired {
		t.Errorf("status = %s, want EXPIRED", o.Status)
	}
}

func TestCancelGroup_ExceptSurvivor(t *testing.T) {
	b := newPaperBook()
	keep, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90, GroupID: "g"})
	drop1, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 95, GroupID: "g"})
	drop2, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 100, GroupID: "g"})

	b.CancelGroup("g", keep, "test")

	if o, _ := b.Get(keep); o.Status != model.StatusPending {
		t.Errorf("survivor status = %s, want PENDING", o.Status)
	}
	for _, id := range []string{drop1, drop2} {
		if o, _ := b.Get(id); o.Status != model.StatusCancelled {
			t.Errorf("%s status = %s, want CANCELLED", id, o.Status)
		}
	}
}

func TestQueriesAndSweep(t *testing.T) {
	b := newPaperBook()
	b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90, Tag: "stoploss"})
	id2, _ := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 120, Tag: "target"})

	if got := b.OrdersByStatus(model.StatusPending); len(got) != 2 {
		t.Errorf("pending = %d, want 2", len(got))
	}
	if got := b.OrdersByTag("target"); len(got) != 1 {
		t.Errorf("by tag = %d, want 1", len(got))
	}
	if got := b.OrdersBySymbol(sym); len(got) != 2 {
		t.Errorf("by symbol = %d, want 2", len(got))
	}

	b.Cancel(id2, "test")
	if n := b.Sweep(); n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
	if got := b.OrdersBySymbol(sym); len(got) != 1 {
		t.Errorf("after sweep = %d, want 1", len(got))
	}
}

type failingBroker struct{}

func (failingBroker) PlaceTriggerOrder(model.TriggerOrder) error {
	return errors.New("broker down")
}

func TestPlace_LiveBrokerFailure(t *testing.T) {
	b := New(24*time.Hour, false, failingBroker{})
	if _, err := b.Place(PlaceParams{Symbol: sym, Side: model.SideSell, Qty: 75, TriggerPrice: 90}); err == nil {
		t.Fatal("expected broker error")
	}
	// The failed order is recorded as Error, not Pending.
	if got := b.OrdersByStatus(model.StatusError); len(got) != 1 {
		t.Errorf("error orders = %d, want 1", len(got))
	}
	if got := b.OrdersByStatus(model.StatusPending); len(got) != 0 {
		t.Errorf("pending orders = %d, want 0", len(got))
	}
}
