package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"oibreakout/config"
	"oibreakout/internal/auth"
	"oibreakout/internal/broker"
	"oibreakout/internal/chain"
	"oibreakout/internal/journal"
	"oibreakout/internal/marketdata/stream"
	"oibreakout/internal/markethours"
	"oibreakout/internal/metrics"
	"oibreakout/internal/model"
	"oibreakout/internal/notification"
	"oibreakout/internal/orderbook"
	"oibreakout/internal/position"
	"oibreakout/internal/session"
	redisstore "oibreakout/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[engine] starting...")

	// ---- Load config ----
	if err := godotenv.Load(); err != nil {
		log.Printf("[engine] no .env file loaded: %v", err)
	}
	cfg := config.Load()
	if cfg.Strategy.PaperTrading {
		log.Println("[engine] *** PAPER TRADING MODE: no live orders ***")
	}

	// ---- Metrics ----
	prom := metrics.NewMetrics()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr)
	metricsSrv.Start()

	// ---- Shutdown context ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Trade journal (SQLite) ----
	os.MkdirAll("data", 0o755)
	jnl, err := journal.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[engine] journal init failed: %v", err)
	}
	defer jnl.Close()

	// ---- Dashboard state (Redis, optional) ----
	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		publisher = redisstore.NewPublisher(cfg.RedisAddr, cfg.RedisPassword)
		defer publisher.Close()
	}

	// ---- Notifications ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifier = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	}
	alerter := notification.NewAlerter(notifier)

	// ---- Broker session ----
	authenticator := auth.NewAuthenticator(auth.Config{
		ClientID:   cfg.BrokerClientID,
		SecretKey:  cfg.BrokerSecretKey,
		TOTPSecret: cfg.BrokerTOTPSecret,
		PIN:        cfg.BrokerPIN,
		CachePath:  cfg.TokenCachePath,
	})
	token, err := authenticator.EnsureToken(ctx)
	if err != nil {
		log.Fatalf("[engine] broker login failed: %v", err)
	}
	brokerClient := broker.NewClient(broker.Config{
		ClientID:    cfg.BrokerClientID,
		AccessToken: token,
	})

	// ---- Market data stream ----
	cache := stream.NewCache()
	st := stream.New(stream.Config{
		URL:         cfg.DataWSURL,
		AccessToken: cfg.BrokerClientID + ":" + token,
		QueueSize:   cfg.StreamQueueSize,
	}, cache)
	st.OnTick = prom.TicksTotal.Inc
	st.OnDrop = prom.TicksDropped.Inc
	st.OnMalformed = prom.TicksMalformed.Inc
	reconnects := 0
	st.OnReconnect = func() {
		prom.WSReconnects.Inc()
		reconnects++
		if reconnects%5 == 0 {
			alerter.StreamDown(reconnects)
		}
	}
	st.OnConnected = func(up bool) {
		if up {
			reconnects = 0
			prom.StreamConnected.Set(1)
		} else {
			prom.StreamConnected.Set(0)
		}
	}
	go st.Run(ctx)
	defer st.Close()

	// ---- Order book ----
	book := orderbook.New(cfg.Strategy.OrderExpiry(), cfg.Strategy.PaperTrading, brokerClient)
	book.OnPlaced = prom.OrdersPlaced.Inc
	book.OnTriggered = prom.OrdersTriggered.Inc
	book.OnCancelled = prom.OrdersCancelled.Inc
	book.OnExpired = prom.OrdersExpired.Inc

	// ---- Position controller ----
	controller := position.NewController(cfg.Strategy, book, jnl)
	controller.OnEnter = func(t model.ActiveTrade) {
		prom.TradesEntered.Inc()
		publisher.PublishLiveTrade(t)
		alerter.TradeEntered(t)
	}
	controller.OnExit = func(rec model.CompletedTrade) {
		prom.TradesExited.WithLabelValues(string(rec.Cause)).Inc()
		prom.TradePnL.Set(rec.NetPnL)
		publisher.ClearLiveTrade()
		publisher.PublishCompleted(rec)
		alerter.TradeExited(rec)
	}
	controller.OnPartialExit = func(rec model.CompletedTrade) {
		prom.PartialExits.Inc()
		publisher.PublishCompleted(rec)
		alerter.PartialExit(rec)
	}

	// Tick consumer: every queued tick refreshes the open trade's
	// last-known price between monitoring passes.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tk := <-st.Ticks():
				controller.ObservePrice(tk.Symbol, tk.LTP)
			}
		}
	}()

	// ---- Daily session ----
	analyzer := chain.NewAnalyzer(brokerClient, cfg.Strategy.MaxStrikeDistance)
	sess := session.New(session.Config{
		SpotSymbol: cfg.SpotSymbol,
		Underlying: cfg.Underlying,
		MinPremium: cfg.Strategy.MinPremiumThreshold,
	}, cache, st, brokerClient, analyzer, book, controller, session.Hooks{
		OnLevels: func(levels model.BreakoutLevels) {
			publisher.PublishLevels(levels)
			alerter.LevelsReady(levels)
		},
		OnQuoteFall: prom.QuoteFallbacks.Inc,
		OnMarketOpen: func(open bool) {
			if open {
				prom.MarketOpen.Set(1)
				publisher.PublishStatus("scanning")
			} else {
				prom.MarketOpen.Set(0)
			}
		},
		OnDayDone: func() {
			if pnl, err := jnl.DailyPnL(time.Now().In(markethours.IST)); err == nil {
				alerter.EngineEvent(fmt.Sprintf("day closed, net P&L %.2f", pnl))
			}
			publisher.PublishStatus("closed")
		},
	})

	sessDone := make(chan error, 1)
	go func() { sessDone <- sess.Run(ctx) }()
	alerter.EngineEvent("engine started")
	log.Printf("[engine] %s", markethours.StatusString(time.Now()))

	// ---- Wait for shutdown ----
	select {
	case sig := <-sigCh:
		log.Printf("[engine] received %s, shutting down", sig)
		// Cancelling the context flushes any open position via the controller.
		cancel()
		select {
		case <-sessDone:
		case <-time.After(10 * time.Second):
			log.Println("[engine] shutdown grace period elapsed")
		}
	case err := <-sessDone:
		log.Printf("[engine] session ended: %v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[engine] stopped")
}
