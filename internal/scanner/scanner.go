// Package scanner watches the two breakout legs for an entry signal.
// Puts are checked before calls, so when both legs cross in the same
// pass the put wins deterministically.
package scanner

import (
	"log"
	"time"

	"oibreakout/internal/model"
)

// PriceFunc resolves the current price for a symbol, typically the tick
// cache with a REST quote fallback behind it.
type PriceFunc func(symbol string) (float64, bool)

// Signal is a confirmed breakout on one leg.
type Signal struct {
	Symbol string
	Leg    string // "PE" or "CE"
	Price  float64
	Level  float64
	At     time.Time
}

// Scanner evaluates breakout conditions against live prices. It holds no
// trade state; the session stops calling Scan once a position opens.
type Scanner struct {
	levels     model.BreakoutLevels
	minPremium float64
	price      PriceFunc
}

// New creates a Scanner over the day's breakout levels.
func New(levels model.BreakoutLevels, minPremium float64, price PriceFunc) *Scanner {
	return &Scanner{levels: levels, minPremium: minPremium, price: price}
}

// Levels returns the levels the scanner was armed with.
func (s *Scanner) Levels() model.BreakoutLevels { return s.levels }

// Scan runs one pass over both legs and returns the first breakout found.
// A leg signals when its price is at or above the breakout level and at
// or above the minimum premium. Legs with a zero level are skipped.
func (s *Scanner) Scan(now time.Time) (Signal, bool) {
	if sig, ok := s.checkLeg(s.levels.PutSymbol, "PE", s.levels.PutLevel, now); ok {
		return sig, true
	}
	return s.checkLeg(s.levels.CallSymbol, "CE", s.levels.CallLevel, now)
}

func (s *Scanner) checkLeg(symbol, leg string, level float64, now time.Time) (Signal, bool) {
	if symbol == "" || level <= 0 {
		return Signal{}, false
	}
	price, ok := s.price(symbol)
	if !ok {
		return Signal{}, false
	}
	if price < level {
		return Signal{}, false
	}
	if price < s.minPremium {
		log.Printf("[scanner] %s crossed level %.1f at %.2f but premium below floor %.2f, skipping",
			symbol, level, price, s.minPremium)
		return Signal{}, false
	}
	log.Printf("[scanner] BREAKOUT %s %s: price %.2f >= level %.1f", leg, symbol, price, level)
	return Signal{Symbol: symbol, Leg: leg, Price: price, Level: level, At: now}, true
}
