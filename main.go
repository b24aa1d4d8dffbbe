package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-trader/internal/api"
	"signal-trader/internal/balance"
	"signal-trader/internal/events"
	"signal-trader/internal/executor"
	"signal-trader/internal/market"
	"signal-trader/internal/monitor"
	"signal-trader/internal/position"
	"signal-trader/internal/reconcile"
	"signal-trader/internal/retry"
	"signal-trader/internal/risk"
	"signal-trader/pkg/config"
	"signal-trader/pkg/db"
	"signal-trader/pkg/exchanges/kucoin"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if cfg.WebhookToken == "" {
		log.Fatal("WEBHOOK_TOKEN must be set")
	}
	log.Printf("starting signal-trader on :%s (symbol %s)", cfg.Port, cfg.TradingSymbol)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	machine := position.NewMachine(cfg.TradingSymbol, database, bus)
	machine.Load(ctx)

	gateway := kucoin.New(kucoin.Config{
		APIKey:     cfg.KucoinAPIKey,
		APISecret:  cfg.KucoinAPISecret,
		Passphrase: cfg.KucoinPassphrase,
	})

	markets := market.NewInfoCache(gateway, retry.Reads(cfg.Policy.MaxReadAttempts, cfg.Policy.BaseBackoff))
	sizer, err := risk.NewSizer(cfg.Policy.RiskFraction, cfg.Policy.FeeBuffer)
	if err != nil {
		log.Fatalf("invalid sizing policy: %v", err)
	}

	engine := executor.NewEngine(gateway, machine, sizer, markets, cfg.Policy, database, bus)

	// Load trading constraints up front so the first signal doesn't pay
	// for it. A failure here is survivable; the engine retries on demand.
	info, err := markets.Get(ctx, cfg.TradingSymbol)
	if err != nil {
		log.Printf("market info preload failed: %v", err)
	}

	// The persisted snapshot is only a belief; verify it against the
	// exchange before accepting signals.
	reconciler := reconcile.NewService(gateway, machine, markets, bus, cfg.ReconcileInterval)
	if _, err := reconciler.Reconcile(ctx); err != nil {
		log.Printf("startup reconciliation failed: %v", err)
	}
	reconciler.Start(ctx)

	assets := []string{info.BaseAsset, info.QuoteAsset}
	if info.BaseAsset == "" {
		assets = nil
	}
	balanceMgr := balance.NewManager(gateway, assets, 30*time.Second)
	balanceMgr.Start(ctx)
	engine.Balances = balanceMgr

	metrics := monitor.NewMetrics()
	mon := &monitor.Monitor{
		Bus:     bus,
		Metrics: metrics,
		AlertFn: func(msg string) { log.Printf("[ALERT] %s", msg) },
	}
	mon.Start(ctx)

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	server := api.NewServer(engine, bus, database, balanceMgr, reconciler, metrics, api.Options{
		WebhookToken:         cfg.WebhookToken,
		JWTSecret:            cfg.JWTSecret,
		OperatorUser:         cfg.OperatorUser,
		OperatorPasswordHash: cfg.OperatorPasswordHash,
		Meta: api.SystemMeta{
			Venue:   "kucoin",
			Symbol:  cfg.TradingSymbol,
			Version: buildVersion,
		},
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}
