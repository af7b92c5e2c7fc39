package model

import "time"

// OrderStatus tracks the lifecycle of a trigger (GTT) order.
// Pending is the only non-terminal state: an order leaves it exactly once.
type OrderStatus int

const (
	StatusPending OrderStatus = iota + 1
	StatusTriggered
	StatusCancelled
	StatusExpired
	StatusError
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	return s != StatusPending
}

func (s OrderStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusTriggered:
		return "TRIGGERED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Side is the order direction. Values match the broker API convention
// (1 = buy, -1 = sell).
type Side int

const (
	SideBuy  Side = 1
	SideSell Side = -1
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// TriggerDirection selects which side of the trigger price arms an order.
// The zero value defers to the order side: buys trigger at or above the
// price, sells at or below. A target sell sits above the market and must
// say so explicitly.
type TriggerDirection int

const (
	TriggerBySide TriggerDirection = iota
	TriggerBelow
	TriggerAbove
)

// TriggerOrder is a conditional order held in the order book until price
// crosses its trigger. GroupID relates mutually exclusive orders
// (OCO-style stoploss + target): at most one order per group triggers.
type TriggerOrder struct {
	OrderID      string           `json:"order_id"`
	Symbol       string           `json:"symbol"`
	Side         Side             `json:"side"`
	Qty          int64            `json:"qty"`
	TriggerPrice float64          `json:"trigger_price"`
	TriggerDir   TriggerDirection `json:"trigger_dir,omitempty"`
	LimitPrice   float64          `json:"limit_price"` // equals TriggerPrice for market-on-trigger
	ProductType  string           `json:"product_type"`
	Tag          string           `json:"tag"`
	GroupID      string           `json:"group_id,omitempty"`
	Status       OrderStatus      `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	TerminalAt   time.Time        `json:"terminal_at,omitempty"` // when the order left Pending
	Reason       string           `json:"reason,omitempty"`      // cancel reason or error detail
}
