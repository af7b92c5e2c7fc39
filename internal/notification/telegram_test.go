package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oibreakout/internal/markethours"
)

func testTelegram(t *testing.T, handler http.HandlerFunc) (*TelegramNotifier, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("bot-token", "chat-42")
	n.apiBase = srv.URL
	return n, srv
}

func TestTelegramSend_SilentInfoLoudWarning(t *testing.T) {
	var payloads []map[string]interface{}
	n, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/botbot-token/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var p map[string]interface{}
		json.NewDecoder(r.Body).Decode(&p)
		payloads = append(payloads, p)
		w.Write([]byte(`{"ok":true}`))
	})

	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "Trade Entered", Message: "x"}); err != nil {
		t.Fatalf("Send info: %v", err)
	}
	if err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "Trade Exited", Message: "x"}); err != nil {
		t.Fatalf("Send warning: %v", err)
	}

	if got := payloads[0]["disable_notification"]; got != true {
		t.Errorf("info alert disable_notification = %v, want true", got)
	}
	if got := payloads[1]["disable_notification"]; got != false {
		t.Errorf("warning alert disable_notification = %v, want false", got)
	}
	if got := payloads[0]["chat_id"]; got != "chat-42" {
		t.Errorf("chat_id = %v", got)
	}
}

func TestTelegramSend_APIRejection(t *testing.T) {
	n, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})

	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("err = %v, want api description surfaced", err)
	}
}

func TestFormatAlert_TimestampAndSeverity(t *testing.T) {
	n := NewTelegramNotifier("tok", "chat")
	n.now = func() time.Time {
		return time.Date(2026, 8, 31, 10, 15, 30, 0, markethours.IST)
	}

	text := n.formatAlert(Alert{Level: AlertWarning, Title: "Trade Exited", Message: "Net P&L -120.50"})
	if !strings.HasPrefix(text, "⚠️") {
		t.Errorf("warning alert missing severity marker: %q", text)
	}
	if !strings.Contains(text, `10:15:30 IST`) {
		t.Errorf("missing exchange timestamp: %q", text)
	}
	// MarkdownV2 escaping applies to the message body.
	if !strings.Contains(text, `\-120\.50`) {
		t.Errorf("body not escaped: %q", text)
	}
}
