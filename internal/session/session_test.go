package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"oibreakout/internal/chain"
	"oibreakout/internal/marketdata/stream"
	"oibreakout/internal/model"
)

type fakeQuotes struct {
	ltp   float64
	ok    bool
	calls int
}

func (f *fakeQuotes) LTP(context.Context, string) (float64, bool) {
	f.calls++
	return f.ltp, f.ok
}

func TestResolvePrice_CacheFirst(t *testing.T) {
	cache := stream.NewCache()
	cache.Update(model.Tick{Symbol: "NSE:X25000PE", LTP: 101})
	quotes := &fakeQuotes{ltp: 999, ok: true}

	s := New(Config{StalenessMax: time.Minute}, cache, nil, quotes, nil, nil, nil, Hooks{})

	p, ok := s.ResolvePrice("NSE:X25000PE")
	if !ok || p != 101 {
		t.Errorf("price = %v (ok=%v), want cached 101", p, ok)
	}
	if quotes.calls != 0 {
		t.Errorf("quote fallback hit %d times with a fresh cache", quotes.calls)
	}
}

func TestResolvePrice_FallbackOnStale(t *testing.T) {
	cache := stream.NewCache()
	quotes := &fakeQuotes{ltp: 88.5, ok: true}
	fallbacks := 0

	s := New(Config{StalenessMax: time.Minute}, cache, nil, quotes, nil, nil, nil,
		Hooks{OnQuoteFall: func() { fallbacks++ }})

	p, ok := s.ResolvePrice("NSE:X25000PE")
	if !ok || p != 88.5 {
		t.Errorf("price = %v (ok=%v), want quote 88.5", p, ok)
	}
	if quotes.calls != 1 || fallbacks != 1 {
		t.Errorf("calls=%d fallbacks=%d, want 1/1", quotes.calls, fallbacks)
	}
}

type fakeAnalyzer struct {
	levels model.BreakoutLevels
	errs   []error
	calls  int
}

func (f *fakeAnalyzer) Analyze(context.Context, string, string) (model.BreakoutLevels, error) {
	f.calls++
	if f.calls <= len(f.errs) && f.errs[f.calls-1] != nil {
		return model.BreakoutLevels{}, f.errs[f.calls-1]
	}
	return f.levels, nil
}

func TestAnalyzeWithRetry_EmptyChainIsFinal(t *testing.T) {
	// An empty chain means no setup today; retrying cannot change that.
	fa := &fakeAnalyzer{errs: []error{chain.ErrEmptyChain, nil, nil}}
	s := New(Config{}, stream.NewCache(), nil, nil, fa, nil, nil, Hooks{})

	if _, err := s.analyzeWithRetry(context.Background()); !errors.Is(err, chain.ErrEmptyChain) {
		t.Errorf("err = %v, want ErrEmptyChain", err)
	}
	if fa.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on empty chain)", fa.calls)
	}
}

func TestResolvePrice_CacheValueNotZero(t *testing.T) {
	// The cached LTP itself must come back, not a freshness flag artifact.
	cache := stream.NewCache()
	cache.Update(model.Tick{Symbol: "NSE:X25000CE", LTP: 67.35})
	s := New(Config{StalenessMax: time.Minute}, cache, nil, &fakeQuotes{}, nil, nil, nil, Hooks{})

	if p, ok := s.ResolvePrice("NSE:X25000CE"); !ok || p != 67.35 {
		t.Errorf("price = %v (ok=%v), want 67.35", p, ok)
	}
}

func TestPauseAfterAbort_WaitsAndHonorsCancel(t *testing.T) {
	s := New(Config{AbortRetryDelay: 30 * time.Millisecond}, stream.NewCache(), nil, nil, nil, nil, nil, Hooks{})

	start := time.Now()
	if err := s.pauseAfterAbort(context.Background()); err != nil {
		t.Fatalf("pauseAfterAbort: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("restart not paced: returned after %s", elapsed)
	}

	s2 := New(Config{AbortRetryDelay: time.Hour}, stream.NewCache(), nil, nil, nil, nil, nil, Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s2.pauseAfterAbort(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWaitUntil(t *testing.T) {
	// A deadline in the past returns immediately.
	if err := waitUntil(context.Background(), time.Now().Add(-time.Second)); err != nil {
		t.Errorf("past deadline err = %v", err)
	}

	// Cancellation interrupts the wait.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := waitUntil(ctx, time.Now().Add(time.Hour))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("waitUntil did not return promptly on cancel")
	}
}
