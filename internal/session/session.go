// Package session drives the daily trading lifecycle: wait for the bell,
// run the morning OI analysis, arm the breakout scanner, hand a confirmed
// signal to the position controller, and reset state after the close.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"oibreakout/internal/chain"
	"oibreakout/internal/markethours"
	"oibreakout/internal/marketdata/stream"
	"oibreakout/internal/model"
	"oibreakout/internal/orderbook"
	"oibreakout/internal/position"
	"oibreakout/internal/scanner"
)

const (
	defaultScanInterval    = time.Second
	defaultStalenessMax    = 5 * time.Second
	defaultAbortRetryDelay = time.Minute
	analyzeRetries         = 3
	analyzeRetryDelay      = 10 * time.Second
)

// Analyzer produces the day's breakout levels.
type Analyzer interface {
	Analyze(ctx context.Context, spotSymbol, underlying string) (model.BreakoutLevels, error)
}

// QuoteSource is the REST fallback when the tick cache goes stale.
type QuoteSource interface {
	LTP(ctx context.Context, symbol string) (float64, bool)
}

// Config holds session parameters.
type Config struct {
	SpotSymbol      string // index quoted for spot, e.g. NSE:NIFTY50-INDEX
	Underlying      string // chain underlying, usually the same symbol
	ScanInterval    time.Duration
	StalenessMax    time.Duration // cache age beyond which the quote fallback kicks in
	AbortRetryDelay time.Duration // pause before re-entering a failed day
	MinPremium      float64
}

func (c *Config) applyDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = defaultScanInterval
	}
	if c.StalenessMax <= 0 {
		c.StalenessMax = defaultStalenessMax
	}
	if c.AbortRetryDelay <= 0 {
		c.AbortRetryDelay = defaultAbortRetryDelay
	}
}

// Hooks are optional lifecycle callbacks for dashboards and alerts.
type Hooks struct {
	OnLevels     func(model.BreakoutLevels)
	OnDayDone    func()
	OnQuoteFall  func() // REST fallback used for a price
	OnMarketOpen func(open bool)
}

// Session owns one symbol-set per day and runs until its context ends.
type Session struct {
	cfg      Config
	cache    *stream.Cache
	stream   *stream.Stream
	quotes   QuoteSource
	analyzer Analyzer
	book     *orderbook.Book
	position *position.Controller
	hooks    Hooks
}

// New assembles a Session. All collaborators are required except hooks.
func New(cfg Config, cache *stream.Cache, st *stream.Stream, quotes QuoteSource,
	analyzer Analyzer, book *orderbook.Book, pos *position.Controller, hooks Hooks) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:      cfg,
		cache:    cache,
		stream:   st,
		quotes:   quotes,
		analyzer: analyzer,
		book:     book,
		position: pos,
		hooks:    hooks,
	}
}

// ResolvePrice is the cache-first price path: a fresh tick wins, a stale
// or missing one falls back to a REST quote.
func (s *Session) ResolvePrice(symbol string) (float64, bool) {
	if ltp, ok := s.cache.Fresh(symbol, s.cfg.StalenessMax); ok {
		return ltp, true
	}
	if s.hooks.OnQuoteFall != nil {
		s.hooks.OnQuoteFall()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.quotes.LTP(ctx, symbol)
}

// Run loops over trading days until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := s.runDay(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[session] day aborted: %v, next attempt in %s", err, s.cfg.AbortRetryDelay)
			if err := s.pauseAfterAbort(ctx); err != nil {
				return err
			}
		}
		now := time.Now()
		next := markethours.NextOpen(now)
		// Already inside today's window: re-enter immediately.
		if markethours.IsMarketOpen(now) {
			continue
		}
		log.Printf("[session] %s", markethours.StatusString(now))
		if err := waitUntil(ctx, next); err != nil {
			return err
		}
	}
}

// runDay executes one trading day: analysis, scan, trade, EOD reset.
func (s *Session) runDay(ctx context.Context) error {
	now := time.Now()
	if !markethours.IsTradingDay(now) || !now.Before(markethours.TodayClose(now)) {
		return nil
	}

	// The analysis waits out the opening noise.
	if analysisAt := markethours.TodayAnalysis(now); now.Before(analysisAt) {
		log.Printf("[session] waiting for analysis window at %s", analysisAt.Format("15:04:05"))
		if err := waitUntil(ctx, analysisAt); err != nil {
			return err
		}
	}
	if s.hooks.OnMarketOpen != nil {
		s.hooks.OnMarketOpen(true)
	}
	defer func() {
		if s.hooks.OnMarketOpen != nil {
			s.hooks.OnMarketOpen(false)
		}
	}()

	levels, err := s.analyzeWithRetry(ctx)
	if err != nil {
		return err
	}
	s.stream.SetSymbols(levels.Symbols())
	if err := s.stream.Subscribe(levels.Symbols()); err != nil {
		return err
	}
	if s.hooks.OnLevels != nil {
		s.hooks.OnLevels(levels)
	}

	sc := scanner.New(levels, s.cfg.MinPremium, s.ResolvePrice)
	if err := s.scanAndTrade(ctx, sc); err != nil {
		return err
	}

	// Hold until the close so EOD reset happens exactly once per day.
	if err := waitUntil(ctx, markethours.TodayClose(time.Now())); err != nil {
		return err
	}
	s.resetDay()
	return nil
}

// scanAndTrade polls the scanner until a breakout confirms or the
// square-off cutoff passes, then monitors the resulting position.
func (s *Session) scanAndTrade(ctx context.Context, sc *scanner.Scanner) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		now := time.Now()
		if markethours.PastSquareOff(now) {
			log.Printf("[session] square-off cutoff reached with no entry today")
			return nil
		}
		if s.position.TradeTakenToday() {
			return nil
		}

		sig, ok := sc.Scan(now)
		if !ok {
			continue
		}
		if _, err := s.position.EnterPosition(sig.Symbol, model.SideBuy, sig.Price, now); err != nil {
			// Premium floor and state conflicts leave the scanner armed.
			log.Printf("[session] entry rejected: %v", err)
			continue
		}
		s.position.Run(ctx, s.ResolvePrice, position.DefaultMonitorInterval)
		return ctx.Err()
	}
}

// pauseAfterAbort paces day restarts after a failure; inside market hours
// runDay would otherwise re-run the analysis immediately.
func (s *Session) pauseAfterAbort(ctx context.Context) error {
	return waitUntil(ctx, time.Now().Add(s.cfg.AbortRetryDelay))
}

func (s *Session) analyzeWithRetry(ctx context.Context) (model.BreakoutLevels, error) {
	var lastErr error
	for attempt := 0; attempt < analyzeRetries; attempt++ {
		levels, err := s.analyzer.Analyze(ctx, s.cfg.SpotSymbol, s.cfg.Underlying)
		if err == nil {
			return levels, nil
		}
		lastErr = err
		if errors.Is(err, chain.ErrEmptyChain) {
			break
		}
		log.Printf("[session] analysis attempt %d/%d failed: %v", attempt+1, analyzeRetries, err)
		select {
		case <-ctx.Done():
			return model.BreakoutLevels{}, ctx.Err()
		case <-time.After(analyzeRetryDelay):
		}
	}
	return model.BreakoutLevels{}, lastErr
}

// resetDay clears per-day state after the close.
func (s *Session) resetDay() {
	if err := s.position.ResetDay(); err != nil {
		log.Printf("[session] EOD reset: %v", err)
		return
	}
	s.book.Reset()
	s.cache.Reset()
	if s.hooks.OnDayDone != nil {
		s.hooks.OnDayDone()
	}
	log.Printf("[session] EOD reset complete")
}

func waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
