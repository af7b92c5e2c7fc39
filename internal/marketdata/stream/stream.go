// Package stream maintains the live market-data connection: one websocket
// to the broker's tick feed, a bounded tick queue decoupling the network
// callback from downstream processing, and a latest-price cache.
//
// The connection is treated as unreliable: dial and read failures retry
// forever with exponential backoff plus jitter, and subscriptions are
// replayed after every reconnect. Heartbeat failures are logged but never
// tear the connection down; the read loop's own error drives reconnection.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oibreakout/internal/model"
)

const (
	defaultQueueSize    = 10000
	defaultThrottle     = 1 * time.Second
	defaultHeartbeat    = 30 * time.Second
	defaultMinRetry     = 1 * time.Second
	defaultMaxRetry     = 60 * time.Second
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// ErrNoValidSymbols is returned when a subscribe call carries no usable symbol.
var ErrNoValidSymbols = errors.New("stream: no valid symbols to subscribe")

// Config holds stream connection parameters.
type Config struct {
	URL         string // wss endpoint
	AccessToken string // "clientID:token" auth header value

	QueueSize         int           // bounded tick queue capacity
	ThrottleInterval  time.Duration // min interval between queued ticks per connection
	HeartbeatInterval time.Duration
	MinRetryDelay     time.Duration
	MaxRetryDelay     time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.ThrottleInterval <= 0 {
		c.ThrottleInterval = defaultThrottle
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeat
	}
	if c.MinRetryDelay <= 0 {
		c.MinRetryDelay = defaultMinRetry
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetry
	}
}

// subscribeFrame is the wire request for (un)subscribing symbols.
type subscribeFrame struct {
	Type    string   `json:"type"` // "subscribe" | "unsubscribe"
	Symbols []string `json:"symbols"`
}

// tickFrame is the wire format of a data message.
type tickFrame struct {
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	Volume int64   `json:"vol_traded_today"`
}

// Stream owns the websocket connection and its workers.
type Stream struct {
	cfg    Config
	cache  *Cache
	tickCh chan model.Tick
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	symbols    map[string]struct{}
	lastQueued time.Time

	closeOnce sync.Once
	closed    chan struct{}

	// Metrics hooks, all optional.
	OnTick      func()
	OnDrop      func()
	OnMalformed func()
	OnReconnect func()
	OnConnected func(bool)
}

// New creates a Stream writing latest prices into cache.
func New(cfg Config, cache *Cache) *Stream {
	cfg.applyDefaults()
	return &Stream{
		cfg:     cfg,
		cache:   cache,
		tickCh:  make(chan model.Tick, cfg.QueueSize),
		dialer:  &websocket.Dialer{HandshakeTimeout: defaultDialTimeout},
		symbols: make(map[string]struct{}),
		closed:  make(chan struct{}),
	}
}

// Ticks returns the bounded tick queue. Exactly one consumer should drain it.
func (s *Stream) Ticks() <-chan model.Tick { return s.tickCh }

// Cache returns the latest-price cache.
func (s *Stream) Cache() *Cache { return s.cache }

// validSymbol requires a non-empty symbol with an exchange qualifier
// ("NSE:NIFTY2590924500CE").
func validSymbol(sym string) bool {
	i := strings.IndexByte(sym, ':')
	return i > 0 && i < len(sym)-1
}

// Subscribe registers symbols and, when connected, sends the subscribe
// frame. Invalid symbols are skipped with a warning; the call fails only
// when zero symbols are valid.
func (s *Stream) Subscribe(symbols []string) error {
	valid := symbols[:0:0]
	for _, sym := range symbols {
		if !validSymbol(sym) {
			log.Printf("[stream] skipping invalid symbol %q", sym)
			continue
		}
		valid = append(valid, sym)
	}
	if len(valid) == 0 {
		return ErrNoValidSymbols
	}

	s.mu.Lock()
	for _, sym := range valid {
		s.symbols[sym] = struct{}{}
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil // sent on next connect
	}
	return s.writeFrame(conn, subscribeFrame{Type: "subscribe", Symbols: valid})
}

// Unsubscribe removes symbols from the set and notifies the feed.
func (s *Stream) Unsubscribe(symbols []string) error {
	s.mu.Lock()
	for _, sym := range symbols {
		delete(s.symbols, sym)
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return s.writeFrame(conn, subscribeFrame{Type: "unsubscribe", Symbols: symbols})
}

// SetSymbols replaces the subscription set (session reset).
func (s *Stream) SetSymbols(symbols []string) {
	s.mu.Lock()
	s.symbols = make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if validSymbol(sym) {
			s.symbols[sym] = struct{}{}
		}
	}
	s.mu.Unlock()
}

func (s *Stream) writeFrame(conn *websocket.Conn, frame subscribeFrame) error {
	conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("stream: write %s frame: %w", frame.Type, err)
	}
	return nil
}

// Run connects and keeps the stream alive until ctx is cancelled or Close
// is called. Blocks.
func (s *Stream) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		conn, err := s.connect()
		if err != nil {
			delay := backoffDelay(attempt, s.cfg.MinRetryDelay, s.cfg.MaxRetryDelay)
			attempt++
			if s.OnReconnect != nil {
				s.OnReconnect()
			}
			log.Printf("[stream] connect failed (attempt %d): %v, retrying in %s", attempt, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}
			continue
		}
		attempt = 0

		hbCtx, hbCancel := context.WithCancel(ctx)
		go s.heartbeatLoop(hbCtx, conn)

		s.readLoop(ctx, conn)

		hbCancel()
		s.setConn(nil)
		if s.OnConnected != nil {
			s.OnConnected(false)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
			log.Printf("[stream] connection lost, reconnecting")
			if s.OnReconnect != nil {
				s.OnReconnect()
			}
		}
	}
}

// connect dials, installs the connection, and replays subscriptions.
func (s *Stream) connect() (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.AccessToken != "" {
		header.Set("Authorization", s.cfg.AccessToken)
	}

	conn, resp, err := s.dialer.Dial(s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %s: %w", s.cfg.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.setConn(conn)
	if s.OnConnected != nil {
		s.OnConnected(true)
	}
	log.Printf("[stream] connected to %s", s.cfg.URL)

	s.mu.Lock()
	syms := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		syms = append(syms, sym)
	}
	s.mu.Unlock()

	if len(syms) > 0 {
		if err := s.writeFrame(conn, subscribeFrame{Type: "subscribe", Symbols: syms}); err != nil {
			log.Printf("[stream] resubscribe failed: %v", err)
			conn.Close()
			return nil, err
		}
		log.Printf("[stream] resubscribed %d symbols", len(syms))
	}
	return conn, nil
}

func (s *Stream) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != nil && s.conn != conn {
		s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()
}

// readLoop consumes frames until the connection errors or ctx ends.
// It must never block on downstream consumers: the cache update is a
// short lock and the queue push is non-blocking.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[stream] read error: %v", err)
			return
		}

		var frame tickFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Symbol == "" {
			// Control frames and malformed ticks are dropped quietly.
			if s.OnMalformed != nil {
				s.OnMalformed()
			}
			continue
		}
		s.handleTick(frame)
	}
}

// handleTick updates the cache unconditionally and queues the tick unless
// throttled or the queue is full.
func (s *Stream) handleTick(frame tickFrame) {
	tick := model.Tick{
		Symbol: frame.Symbol,
		LTP:    frame.LTP,
		Volume: frame.Volume,
		TickTS: time.Now().UTC(),
	}
	s.cache.Update(tick)
	if s.OnTick != nil {
		s.OnTick()
	}

	s.mu.Lock()
	throttled := time.Since(s.lastQueued) < s.cfg.ThrottleInterval
	if !throttled {
		s.lastQueued = time.Now()
	}
	s.mu.Unlock()
	if throttled {
		return
	}

	select {
	case s.tickCh <- tick:
	default:
		if s.OnDrop != nil {
			s.OnDrop()
		}
		log.Printf("[stream] tick queue full, dropping %s", tick.Symbol)
	}
}

// heartbeatLoop sends a ping at a fixed interval while connected.
// A failed ping is logged only; reconnection is driven by the read loop.
func (s *Stream) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(defaultWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				log.Printf("[stream] ping failed: %v", err)
			}
		}
	}
}

// Close tears the stream down. Idempotent; Run returns shortly after.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
		log.Printf("[stream] closed")
	})
}

// backoffDelay computes min(max, min*2^attempt) plus up to 1s of jitter,
// capped at max.
func backoffDelay(attempt int, min, max time.Duration) time.Duration {
	d := min
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	d += time.Duration(rand.Int63n(int64(time.Second)))
	if d > max {
		d = max
	}
	return d
}
