// Package notification delivers trading alerts to external channels.
// Alerts are advisory: delivery failures are logged and never affect
// trade processing.
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"oibreakout/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Alerter formats engine events into alerts and sends them asynchronously
// so a slow channel never stalls the monitoring loop.
type Alerter struct {
	notifier Notifier
}

// NewAlerter wraps a Notifier. A nil notifier yields a no-op Alerter.
func NewAlerter(n Notifier) *Alerter {
	return &Alerter{notifier: n}
}

func (a *Alerter) send(level AlertLevel, title, message string) {
	if a == nil || a.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.notifier.Send(ctx, Alert{Level: level, Title: title, Message: message}); err != nil {
			log.Printf("[notify] send failed: %v", err)
		}
	}()
}

// TradeEntered announces a new position.
func (a *Alerter) TradeEntered(t model.ActiveTrade) {
	mode := "LIVE"
	if t.PaperTrade {
		mode = "PAPER"
	}
	a.send(AlertInfo, "Trade Entered",
		fmt.Sprintf("%s %s x%d @ %.2f\nSL %.2f | Target %.2f | %s",
			t.Side, t.Symbol, t.Qty, t.EntryPrice, t.Stoploss, t.Target, mode))
}

// TradeExited announces a closed position. Losses are warnings so they
// stand out on the phone.
func (a *Alerter) TradeExited(rec model.CompletedTrade) {
	level := AlertInfo
	if rec.NetPnL < 0 {
		level = AlertWarning
	}
	a.send(level, "Trade Exited",
		fmt.Sprintf("%s x%d | %s\nEntry %.2f -> Exit %.2f\nNet P&L %.2f (%s)",
			rec.Symbol, rec.Qty, rec.Cause, rec.EntryPrice, rec.ExitPrice, rec.NetPnL, rec.Duration.Round(time.Second)))
}

// PartialExit announces a partial booking.
func (a *Alerter) PartialExit(rec model.CompletedTrade) {
	a.send(AlertInfo, "Partial Exit",
		fmt.Sprintf("%s booked %d @ %.2f\nNet P&L %.2f", rec.Symbol, rec.Qty, rec.ExitPrice, rec.NetPnL))
}

// LevelsReady announces the day's breakout levels after analysis.
func (a *Alerter) LevelsReady(levels model.BreakoutLevels) {
	a.send(AlertInfo, "Breakout Levels",
		fmt.Sprintf("PE %s @ %.1f\nCE %s @ %.1f",
			levels.PutSymbol, levels.PutLevel, levels.CallSymbol, levels.CallLevel))
}

// StreamDown warns about repeated data stream reconnects.
func (a *Alerter) StreamDown(attempts int) {
	a.send(AlertWarning, "Data Stream Reconnecting",
		fmt.Sprintf("websocket down, attempt %d", attempts))
}

// EngineEvent reports lifecycle transitions (startup, EOD, shutdown).
func (a *Alerter) EngineEvent(message string) {
	a.send(AlertInfo, "Engine", message)
}
