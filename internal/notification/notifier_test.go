package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"oibreakout/internal/model"
)

type captureNotifier struct {
	alerts chan Alert
}

func (c *captureNotifier) Send(ctx context.Context, alert Alert) error {
	c.alerts <- alert
	return nil
}

func waitAlert(t *testing.T, ch chan Alert) Alert {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
		return Alert{}
	}
}

func TestAlerter_TradeExitedLevels(t *testing.T) {
	n := &captureNotifier{alerts: make(chan Alert, 1)}
	a := NewAlerter(n)

	a.TradeExited(model.CompletedTrade{
		Symbol: "NSE:N24500PE", Qty: 75, Cause: model.ExitTarget,
		EntryPrice: 100, ExitPrice: 140, NetPnL: 2900,
	})
	alert := waitAlert(t, n.alerts)
	if alert.Level != AlertInfo {
		t.Errorf("profitable exit level = %s, want INFO", alert.Level)
	}

	a.TradeExited(model.CompletedTrade{
		Symbol: "NSE:N24500PE", Qty: 75, Cause: model.ExitStoploss,
		EntryPrice: 100, ExitPrice: 80, NetPnL: -1560,
	})
	alert = waitAlert(t, n.alerts)
	if alert.Level != AlertWarning {
		t.Errorf("losing exit level = %s, want WARNING", alert.Level)
	}
	if !strings.Contains(alert.Message, "stoploss") {
		t.Errorf("message missing cause: %q", alert.Message)
	}
}

func TestAlerter_NilSafe(t *testing.T) {
	var a *Alerter
	a.TradeEntered(model.ActiveTrade{}) // must not panic
	NewAlerter(nil).EngineEvent("ok")
}

func TestEscapeMarkdown(t *testing.T) {
	got := escapeMarkdown("P&L -1.5 (net)")
	if !strings.Contains(got, `\-1\.5`) || !strings.Contains(got, `\(net\)`) {
		t.Errorf("escaped = %q", got)
	}
}
