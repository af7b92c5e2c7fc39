// Package redis publishes engine state to Redis for the dashboard: the
// live trade snapshot, the day's breakout levels, and a capped list of
// completed trades. Everything here is fire-and-forget; Redis being down
// never blocks or fails a trade.
package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"oibreakout/internal/model"
)

const (
	liveTradeKey   = "engine:live_trade"
	levelsKey      = "engine:breakout_levels"
	completedKey   = "engine:completed_trades"
	statusKey      = "engine:status"
	liveTradeTTL   = 30 * time.Second
	maxCompleted   = 200
	publishTimeout = 2 * time.Second
)

// Publisher writes dashboard state. A nil Publisher is safe to call.
type Publisher struct {
	rdb *goredis.Client
}

// NewPublisher connects to Redis and pings it once. An unreachable server
// is reported but not fatal; writes will be retried per publish.
func NewPublisher(addr, password string) *Publisher {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[redis] ping %s failed: %v (dashboard state unavailable)", addr, err)
	} else {
		log.Printf("[redis] connected to %s", addr)
	}
	return &Publisher{rdb: rdb}
}

func (p *Publisher) set(key string, v any, ttl time.Duration) {
	if p == nil || p.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("[redis] set %s: %v", key, err)
	}
}

// PublishLiveTrade writes the trade snapshot. The short TTL makes a stale
// snapshot disappear if the engine dies mid-trade.
func (p *Publisher) PublishLiveTrade(t model.ActiveTrade) {
	p.set(liveTradeKey, t, liveTradeTTL)
}

// ClearLiveTrade removes the snapshot after an exit.
func (p *Publisher) ClearLiveTrade() {
	if p == nil || p.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.Del(ctx, liveTradeKey).Err(); err != nil {
		log.Printf("[redis] del %s: %v", liveTradeKey, err)
	}
}

// PublishLevels writes the day's breakout levels, kept until EOD rollover.
func (p *Publisher) PublishLevels(levels model.BreakoutLevels) {
	p.set(levelsKey, levels, 0)
}

// PublishStatus writes a free-form engine status string.
func (p *Publisher) PublishStatus(status string) {
	p.set(statusKey, map[string]string{
		"status": status,
		"ts":     time.Now().UTC().Format(time.RFC3339),
	}, 0)
}

// PublishCompleted prepends a completed trade to the capped history list.
func (p *Publisher) PublishCompleted(rec model.CompletedTrade) {
	if p == nil || p.rdb == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	pipe := p.rdb.Pipeline()
	pipe.LPush(ctx, completedKey, data)
	pipe.LTrim(ctx, completedKey, 0, maxCompleted-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] push completed trade: %v", err)
	}
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
