package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the signal bot.
type Config struct {
	Port string

	// Shared secret every webhook payload must carry.
	WebhookKey string

	// Binance USDT-M futures
	BinanceTestnet    bool
	BinanceAPIKey     string
	BinanceAPISecret  string
	BinanceRecvWindow int64 // ms

	// Trading defaults; per-symbol overrides come from SymbolsFile.
	Symbols        []string
	OrderQty       float64
	Leverage       int
	PricePrecision int32

	// Risk
	ATRPeriod    int
	ATRInterval  string
	SLFactor     float64
	TrailFactor  float64
	PollInterval time.Duration

	// Execution
	DryRun            bool
	OrderMaxAttempts  int
	OrderRetryBackoff time.Duration
	ExchangeTimeout   time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Admin API; empty secret leaves read endpoints open.
	AdminJWTSecret string

	SymbolsFile string
	Overrides   map[string]SymbolOverride
}

// SymbolOverride replaces global trading defaults for one symbol.
// Zero fields fall back to the global value.
type SymbolOverride struct {
	Quantity       float64 `yaml:"quantity"`
	Leverage       int     `yaml:"leverage"`
	PricePrecision *int32  `yaml:"price_precision"`
	SLFactor       float64 `yaml:"sl_factor"`
	TrailFactor    float64 `yaml:"trail_factor"`
}

// SymbolParams are the resolved trading parameters for one symbol.
type SymbolParams struct {
	Symbol         string
	Quantity       float64
	Leverage       int
	PricePrecision int32
	SLFactor       float64
	TrailFactor    float64
}

type symbolsFile struct {
	Symbols map[string]SymbolOverride `yaml:"symbols"`
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	symbols := splitAndTrim(getEnv("SYMBOLS", getEnv("SYMBOL", "ETHUSDT")))
	for i, s := range symbols {
		symbols[i] = strings.ToUpper(s)
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		WebhookKey:        os.Getenv("WEBHOOK_KEY"),
		BinanceTestnet:    getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		BinanceRecvWindow: int64(getEnvInt("BINANCE_RECV_WINDOW", 5000)),
		Symbols:           symbols,
		OrderQty:          getEnvFloat("ORDER_QTY", 0.01),
		Leverage:          getEnvInt("LEVERAGE", 5),
		PricePrecision:    int32(getEnvInt("PRICE_PRECISION", 2)),
		ATRPeriod:         getEnvInt("ATR_PERIOD", 14),
		ATRInterval:       getEnv("ATR_INTERVAL", "15m"),
		SLFactor:          getEnvFloat("SL_FACTOR", 0.7),
		TrailFactor:       getEnvFloat("TRAIL_FACTOR", 1.5),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 10*time.Second),
		DryRun:            getEnv("DRY_RUN", "false") == "true",
		OrderMaxAttempts:  getEnvInt("ORDER_MAX_ATTEMPTS", 3),
		OrderRetryBackoff: getEnvDuration("ORDER_RETRY_BACKOFF", time.Second),
		ExchangeTimeout:   getEnvDuration("EXCHANGE_TIMEOUT", 10*time.Second),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		SymbolsFile:       os.Getenv("SYMBOLS_FILE"),
	}

	if cfg.SymbolsFile != "" {
		overrides, err := LoadSymbolsFile(cfg.SymbolsFile)
		if err != nil {
			return nil, err
		}
		cfg.Overrides = overrides
		// Symbols named only in the file are traded as well.
		for sym := range overrides {
			if !cfg.HasSymbol(sym) {
				cfg.Symbols = append(cfg.Symbols, sym)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSymbolsFile reads per-symbol overrides from a YAML file.
func LoadSymbolsFile(path string) (map[string]SymbolOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	var file symbolsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}
	out := make(map[string]SymbolOverride, len(file.Symbols))
	for sym, o := range file.Symbols {
		out[strings.ToUpper(strings.TrimSpace(sym))] = o
	}
	return out, nil
}

// HasSymbol reports whether symbol is configured for trading.
func (c *Config) HasSymbol(symbol string) bool {
	for _, s := range c.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Params resolves the trading parameters for symbol.
func (c *Config) Params(symbol string) SymbolParams {
	p := SymbolParams{
		Symbol:         symbol,
		Quantity:       c.OrderQty,
		Leverage:       c.Leverage,
		PricePrecision: c.PricePrecision,
		SLFactor:       c.SLFactor,
		TrailFactor:    c.TrailFactor,
	}
	o, ok := c.Overrides[symbol]
	if !ok {
		return p
	}
	if o.Quantity > 0 {
		p.Quantity = o.Quantity
	}
	if o.Leverage > 0 {
		p.Leverage = o.Leverage
	}
	if o.PricePrecision != nil {
		p.PricePrecision = *o.PricePrecision
	}
	if o.SLFactor > 0 {
		p.SLFactor = o.SLFactor
	}
	if o.TrailFactor > 0 {
		p.TrailFactor = o.TrailFactor
	}
	return p
}

func (c *Config) validate() error {
	var errs []error
	if c.WebhookKey == "" {
		errs = append(errs, errors.New("WEBHOOK_KEY is required"))
	}
	if !c.DryRun && (c.BinanceAPIKey == "" || c.BinanceAPISecret == "") {
		errs = append(errs, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET are required unless DRY_RUN=true"))
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("at least one symbol is required"))
	}
	if c.ATRPeriod < 1 {
		errs = append(errs, fmt.Errorf("ATR_PERIOD must be >= 1, got %d", c.ATRPeriod))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.OrderMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("ORDER_MAX_ATTEMPTS must be >= 1, got %d", c.OrderMaxAttempts))
	}
	if c.OrderRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("ORDER_RETRY_BACKOFF must not be negative, got %s", c.OrderRetryBackoff))
	}
	if c.ExchangeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("EXCHANGE_TIMEOUT must be positive, got %s", c.ExchangeTimeout))
	}
	for _, sym := range c.Symbols {
		p := c.Params(sym)
		if p.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("%s: order quantity must be positive", sym))
		}
		if p.Leverage < 1 || p.Leverage > 125 {
			errs = append(errs, fmt.Errorf("%s: leverage must be in [1,125], got %d", sym, p.Leverage))
		}
		if p.SLFactor <= 0 || p.TrailFactor <= 0 {
			errs = append(errs, fmt.Errorf("%s: SL and trail factors must be positive", sym))
		}
		if p.PricePrecision < 0 || p.PricePrecision > 8 {
			errs = append(errs, fmt.Errorf("%s: price precision must be in [0,8], got %d", sym, p.PricePrecision))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("10s") or plain seconds ("10").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
