package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/market"
	"github.com/jooniper-hub/tv-bot/internal/risk"
	"github.com/jooniper-hub/tv-bot/pkg/config"
	exfutusdt "github.com/jooniper-hub/tv-bot/pkg/exchanges/binance/futures_usdt"
	exchange "github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
	"github.com/jooniper-hub/tv-bot/pkg/logger"
	marketbinance "github.com/jooniper-hub/tv-bot/pkg/market/binance"
)

// exchange_check verifies connectivity with the same configuration as the bot:
// public price and klines, the ATR and levels the bot would use, the server
// clock offset, and optionally a signed leverage call plus a tiny round trip
// MARKET order.
//
// Usage (testnet recommended):
//   go run ./scripts/exchange_check
//
// Control:
//   CHECK_PLACE_ORDERS (default "false")
//        - false: read-only checks plus SetLeverage
//        - true : BUY then reduce-only SELL of ORDER_QTY on the first symbol

func main() {
	log := logger.Must("info", "console")
	defer func() { _ = log.Sync() }()
	log.Info("=== Exchange check starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load error", zap.Error(err))
	}
	placeOrders := os.Getenv("CHECK_PLACE_ORDERS") == "true"
	symbol := cfg.Symbols[0]
	p := cfg.Params(symbol)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	accessor := market.NewAccessor(marketbinance.NewClient(cfg.BinanceTestnet, cfg.ExchangeTimeout), market.Options{
		Interval: cfg.ATRInterval,
		Period:   cfg.ATRPeriod,
		Timeout:  cfg.ExchangeTimeout,
	}, log)

	price, err := accessor.Price(ctx, symbol)
	if err != nil {
		log.Fatal("price error", zap.String("symbol", symbol), zap.Error(err))
	}
	log.Info("price OK", zap.String("symbol", symbol), zap.Float64("price", price))

	atr, err := accessor.ATR(ctx, symbol)
	if err != nil {
		log.Error("atr error", zap.Error(err))
	} else {
		f := risk.Factors{StopLoss: p.SLFactor, Trail: p.TrailFactor, Precision: p.PricePrecision}
		for _, side := range []risk.Side{risk.SideLong, risk.SideShort} {
			stop, trail := risk.Levels(side, price, atr, f)
			log.Info("levels", zap.String("side", string(side)), zap.Float64("atr", atr),
				zap.Float64("stop", stop), zap.Float64("trail", trail))
		}
	}

	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Info("BINANCE_API_KEY/SECRET empty, skipping signed checks")
		return
	}
	client := exfutusdt.NewClient(exfutusdt.Config{
		APIKey:     cfg.BinanceAPIKey,
		APISecret:  cfg.BinanceAPISecret,
		Testnet:    cfg.BinanceTestnet,
		RecvWindow: cfg.BinanceRecvWindow,
		Timeout:    cfg.ExchangeTimeout,
		Logger:     log,
	})

	serverTime, err := client.GetServerTime(ctx)
	if err != nil {
		log.Fatal("server time error", zap.Error(err))
	}
	log.Info("server time OK", zap.Int64("offset_ms", serverTime-time.Now().UnixMilli()))

	if err := client.SetLeverage(ctx, symbol, p.Leverage); err != nil {
		log.Fatal("set leverage error", zap.Error(err))
	}
	log.Info("set leverage OK", zap.Int("leverage", p.Leverage))

	if !placeOrders {
		log.Info("skip placing orders (CHECK_PLACE_ORDERS=false)")
		return
	}

	for _, req := range []exchange.OrderRequest{
		{Symbol: symbol, Side: exchange.SideBuy, Type: exchange.OrderTypeMarket, Qty: p.Quantity},
		{Symbol: symbol, Side: exchange.SideSell, Type: exchange.OrderTypeMarket, Qty: p.Quantity, ReduceOnly: true},
	} {
		res, err := client.SubmitOrder(ctx, req)
		if err != nil {
			log.Fatal("submit order error", zap.String("side", string(req.Side)), zap.Error(err))
		}
		log.Info("order OK", zap.String("side", string(req.Side)), zap.String("order_id", res.ExchangeOrderID),
			zap.String("status", string(res.Status)), zap.Float64("avg_price", res.AvgPrice))
	}
	log.Info("=== Exchange check finished ===")
}
