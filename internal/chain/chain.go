// Package chain runs the morning open-interest analysis: rank option
// strikes near the spot by OI and derive the breakout premium level for
// the heaviest put and call.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"oibreakout/internal/model"
)

// ErrEmptyChain is returned when the fetched chain has no usable rows.
var ErrEmptyChain = errors.New("chain: no option rows")

// Breakout premium multiplier: a leg signals when its premium trades 10%
// above the analysis-time value.
const breakoutMultiplier = 1.10

// Fetcher provides the market snapshots the analysis needs.
type Fetcher interface {
	SpotPrice(ctx context.Context, symbol string) (float64, error)
	OptionChain(ctx context.Context, underlying string) ([]model.OptionRow, error)
}

// Analyzer picks the highest-OI put and call within the strike window.
type Analyzer struct {
	fetcher           Fetcher
	maxStrikeDistance float64
}

// NewAnalyzer creates an Analyzer. maxStrikeDistance bounds how far from
// spot a strike may sit and still be considered.
func NewAnalyzer(fetcher Fetcher, maxStrikeDistance float64) *Analyzer {
	return &Analyzer{fetcher: fetcher, maxStrikeDistance: maxStrikeDistance}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// Analyze fetches spot and chain for the underlying and returns the
// breakout levels. A side with no eligible strike is left zero; both
// sides empty is an error since the day has no tradable setup.
func (a *Analyzer) Analyze(ctx context.Context, spotSymbol, underlying string) (model.BreakoutLevels, error) {
	spot, err := a.fetcher.SpotPrice(ctx, spotSymbol)
	if err != nil {
		return model.BreakoutLevels{}, fmt.Errorf("chain: spot price: %w", err)
	}
	rows, err := a.fetcher.OptionChain(ctx, underlying)
	if err != nil {
		return model.BreakoutLevels{}, fmt.Errorf("chain: option chain: %w", err)
	}

	levels, err := a.rank(spot, rows)
	if err != nil {
		return model.BreakoutLevels{}, err
	}
	log.Printf("[chain] spot=%.2f | PE %s oi-max premium=%.2f level=%.1f | CE %s oi-max premium=%.2f level=%.1f",
		spot, levels.PutSymbol, levels.PutPremium, levels.PutLevel,
		levels.CallSymbol, levels.CallPremium, levels.CallLevel)
	return levels, nil
}

// rank selects, per option type, the row with the highest open interest
// among strikes within the distance window that carry a positive premium.
func (a *Analyzer) rank(spot float64, rows []model.OptionRow) (model.BreakoutLevels, error) {
	var bestPut, bestCall *model.OptionRow
	for i := range rows {
		r := &rows[i]
		if math.Abs(r.Strike-spot) > a.maxStrikeDistance {
			continue
		}
		if r.LastPrice <= 0 || r.OpenInterest <= 0 {
			continue
		}
		switch r.OptionType {
		case "PE":
			if bestPut == nil || r.OpenInterest > bestPut.OpenInterest {
				bestPut = r
			}
		case "CE":
			if bestCall == nil || r.OpenInterest > bestCall.OpenInterest {
				bestCall = r
			}
		}
	}
	if bestPut == nil && bestCall == nil {
		return model.BreakoutLevels{}, ErrEmptyChain
	}

	var levels model.BreakoutLevels
	if bestPut != nil {
		levels.PutSymbol = bestPut.Symbol
		levels.PutStrike = bestPut.Strike
		levels.PutPremium = bestPut.LastPrice
		levels.PutLevel = round1(bestPut.LastPrice * breakoutMultiplier)
	}
	if bestCall != nil {
		levels.CallSymbol = bestCall.Symbol
		levels.CallStrike = bestCall.Strike
		levels.CallPremium = bestCall.LastPrice
		levels.CallLevel = round1(bestCall.LastPrice * breakoutMultiplier)
	}
	return levels, nil
}
