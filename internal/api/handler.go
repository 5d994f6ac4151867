package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/dispatch"
	"github.com/jooniper-hub/tv-bot/internal/events"
	"github.com/jooniper-hub/tv-bot/internal/risk"
)

// SignalHandler executes one webhook signal.
type SignalHandler interface {
	Handle(ctx context.Context, signal, symbol string) (dispatch.Result, error)
}

// Options configure the HTTP surface.
type Options struct {
	WebhookKey     string
	JWTSecret      string   // admin routes are open when empty
	Symbols        []string // accepted symbols; the first is the default
	DryRun         bool
	Version        string
	RequestTimeout time.Duration // bounds one signal, detached from the client connection
	RateLimit      float64       // requests per second per client IP
	RateBurst      int
}

// Server wires the webhook and admin endpoints.
type Server struct {
	Router   *gin.Engine
	Signals  SignalHandler
	Ledger   *risk.Ledger
	Bus      *events.Bus
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
	Opts     Options

	symbols map[string]bool
	started time.Time
}

// NewServer builds the router. gatherer may be nil to disable /metrics.
func NewServer(signals SignalHandler, ledger *risk.Ledger, bus *events.Bus, gatherer prometheus.Gatherer, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))

	s := &Server{
		Router:   r,
		Signals:  signals,
		Ledger:   ledger,
		Bus:      bus,
		Gatherer: gatherer,
		Log:      log,
		Opts:     opts,
		symbols:  make(map[string]bool, len(opts.Symbols)),
		started:  time.Now(),
	}
	for _, sym := range opts.Symbols {
		s.symbols[sym] = true
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	if s.Gatherer != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := newIPLimiter(s.Opts.RateLimit, s.Opts.RateBurst)
	s.Router.POST("/webhook", RateLimitMiddleware(limiter, s.Log), s.webhook)

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.Opts.JWTSecret))
	{
		api.GET("/status", s.getStatus)
		api.GET("/positions", s.getPositions)
		api.GET("/positions/:symbol", s.getPosition)
		api.GET("/ws", s.websocket)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
