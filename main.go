package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/api"
	"github.com/jooniper-hub/tv-bot/internal/dispatch"
	"github.com/jooniper-hub/tv-bot/internal/events"
	"github.com/jooniper-hub/tv-bot/internal/market"
	"github.com/jooniper-hub/tv-bot/internal/metrics"
	"github.com/jooniper-hub/tv-bot/internal/monitor"
	"github.com/jooniper-hub/tv-bot/internal/order"
	"github.com/jooniper-hub/tv-bot/internal/risk"
	"github.com/jooniper-hub/tv-bot/pkg/config"
	exfutusdt "github.com/jooniper-hub/tv-bot/pkg/exchanges/binance/futures_usdt"
	exchange "github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
	"github.com/jooniper-hub/tv-bot/pkg/logger"
	marketbinance "github.com/jooniper-hub/tv-bot/pkg/market/binance"
)

var version = "dev"

func main() {
	issueToken := flag.String("issue-token", "", "print an admin JWT for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := api.IssueToken(*issueToken, cfg.AdminJWTSecret, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	log := logger.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("bot stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting tv-bot",
		zap.String("version", version),
		zap.Strings("symbols", cfg.Symbols),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Bool("testnet", cfg.BinanceTestnet),
		zap.Int("atr_period", cfg.ATRPeriod),
		zap.String("atr_interval", cfg.ATRInterval),
		zap.Float64("sl_factor", cfg.SLFactor),
		zap.Float64("trail_factor", cfg.TrailFactor),
		zap.Duration("poll_interval", cfg.PollInterval))

	// Core services
	bus := events.NewBus()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.New(registry)
	ledger := risk.NewLedger()

	// Market data
	marketClient := marketbinance.NewClient(cfg.BinanceTestnet, cfg.ExchangeTimeout)
	accessor := market.NewAccessor(marketClient, market.Options{
		Interval: cfg.ATRInterval,
		Period:   cfg.ATRPeriod,
		Timeout:  cfg.ExchangeTimeout,
	}, log.Named("market"))

	// Gateway: paper fills in dry-run, signed USDT-M futures otherwise
	var gateway exchange.Gateway
	if cfg.DryRun {
		gateway = order.NewPaperGateway(accessor, 2, log.Named("paper"))
		log.Warn("DRY_RUN enabled, orders are simulated")
	} else {
		client := exfutusdt.NewClient(exfutusdt.Config{
			APIKey:     cfg.BinanceAPIKey,
			APISecret:  cfg.BinanceAPISecret,
			Testnet:    cfg.BinanceTestnet,
			RecvWindow: cfg.BinanceRecvWindow,
			Timeout:    cfg.ExchangeTimeout,
			Logger:     log.Named("exchange"),
		})
		client.StartTimeSync(ctx)
		setLeverage(ctx, client, cfg, log)
		gateway = client
	}

	executor := order.NewExecutor(gateway, order.Policy{
		MaxAttempts:    cfg.OrderMaxAttempts,
		Backoff:        cfg.OrderRetryBackoff,
		AttemptTimeout: cfg.ExchangeTimeout,
	}, bus, stats, log.Named("order"))

	params := func(symbol string) dispatch.Params {
		p := cfg.Params(symbol)
		return dispatch.Params{Qty: p.Quantity, Factors: factors(p)}
	}
	dispatcher := &dispatch.Dispatcher{
		Ledger:  ledger,
		Orders:  executor,
		Market:  accessor,
		Params:  params,
		Bus:     bus,
		Metrics: stats,
		Log:     log.Named("dispatch"),
	}

	trailing := &monitor.Trailing{
		Ledger:   ledger,
		Orders:   executor,
		Market:   accessor,
		Factors:  func(symbol string) risk.Factors { return factors(cfg.Params(symbol)) },
		Interval: cfg.PollInterval,
		Bus:      bus,
		Metrics:  stats,
		Log:      log.Named("monitor"),
	}

	server := api.NewServer(dispatcher, ledger, bus, registry, api.Options{
		WebhookKey:     cfg.WebhookKey,
		JWTSecret:      cfg.AdminJWTSecret,
		Symbols:        cfg.Symbols,
		DryRun:         cfg.DryRun,
		Version:        version,
		RequestTimeout: webhookTimeout(cfg),
	}, log.Named("http"))
	if cfg.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET empty, admin endpoints are unauthenticated")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		trailing.Run(ctx)
	}()

	err := server.Serve(ctx, ":"+cfg.Port)
	stop()
	wg.Wait()

	for _, rec := range ledger.Active() {
		log.Warn("open position left on exchange at shutdown",
			zap.String("symbol", rec.Symbol),
			zap.String("side", string(rec.Side)),
			zap.Float64("qty", rec.Qty),
			zap.Float64("entry", rec.EntryPrice),
			zap.Float64("stop", rec.StopLoss),
			zap.Float64("trail", rec.Trail))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func factors(p config.SymbolParams) risk.Factors {
	return risk.Factors{StopLoss: p.SLFactor, Trail: p.TrailFactor, Precision: p.PricePrecision}
}

// webhookTimeout covers a price fetch, every order attempt with its backoff,
// and the ATR fetch.
func webhookTimeout(cfg *config.Config) time.Duration {
	attempts := time.Duration(cfg.OrderMaxAttempts)
	return 2*cfg.ExchangeTimeout + attempts*cfg.ExchangeTimeout + (attempts-1)*cfg.OrderRetryBackoff + 5*time.Second
}

func setLeverage(ctx context.Context, setter exchange.LeverageSetter, cfg *config.Config, log *zap.Logger) {
	for _, sym := range cfg.Symbols {
		lev := cfg.Params(sym).Leverage
		if lev <= 0 {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.ExchangeTimeout)
		err := setter.SetLeverage(callCtx, sym, lev)
		cancel()
		if err != nil {
			log.Error("set leverage failed", zap.String("symbol", sym), zap.Int("leverage", lev), zap.Error(err))
			continue
		}
		log.Info("leverage set", zap.String("symbol", sym), zap.Int("leverage", lev))
	}
}
