package order

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	exchange "github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

// PriceSource supplies the mark used to fill paper orders.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// PaperGateway fills market orders at the live price without touching the
// exchange. It is used when DRY_RUN=true.
type PaperGateway struct {
	Prices      PriceSource
	SlippageBps float64 // worst-case adverse slippage applied to fills
	Log         *zap.Logger

	mu  sync.Mutex
	seq int64
	rng *rand.Rand
}

// NewPaperGateway builds a paper gateway.
func NewPaperGateway(prices PriceSource, slippageBps float64, log *zap.Logger) *PaperGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaperGateway{
		Prices:      prices,
		SlippageBps: slippageBps,
		Log:         log.With(zap.String("venue", "paper")),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SubmitOrder fills req immediately at the current price.
func (p *PaperGateway) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if req.Qty <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("paper: invalid quantity %v", req.Qty)
	}
	price, err := p.Prices.Price(ctx, req.Symbol)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("paper: price %s: %w", req.Symbol, err)
	}

	p.mu.Lock()
	p.seq++
	id := p.seq
	noise := 0.0
	if p.SlippageBps > 0 {
		noise = p.rng.Float64() * p.SlippageBps / 10000.0
	}
	p.mu.Unlock()

	if req.Side == exchange.SideBuy {
		price *= 1 + noise
	} else {
		price *= 1 - noise
	}

	p.Log.Info("paper fill",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("qty", req.Qty),
		zap.Float64("price", price))
	return exchange.OrderResult{
		ExchangeOrderID: "paper-" + strconv.FormatInt(id, 10),
		ClientID:        req.ClientID,
		Status:          exchange.StatusFilled,
		ExecutedQty:     req.Qty,
		AvgPrice:        price,
	}, nil
}

// SetLeverage is accepted and ignored.
func (p *PaperGateway) SetLeverage(context.Context, string, int) error { return nil }
