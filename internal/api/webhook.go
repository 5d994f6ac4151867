package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jooniper-hub/tv-bot/internal/dispatch"
)

// ErrUnauthorized is returned when the webhook key does not match.
var ErrUnauthorized = errors.New("unauthorized")

// webhookRequest accepts the field names used by the different alert
// templates in the wild; the first non-empty one wins.
type webhookRequest struct {
	Key        string `json:"key"`
	Passphrase string `json:"passphrase"`
	Signal     string `json:"signal"`
	Action     string `json:"action"`
	Symbol     string `json:"symbol"`
	Ticker     string `json:"ticker"`
}

func (r webhookRequest) key() string    { return firstNonEmpty(r.Key, r.Passphrase) }
func (r webhookRequest) signal() string { return firstNonEmpty(r.Signal, r.Action) }
func (r webhookRequest) symbol() string { return normalizeSymbol(firstNonEmpty(r.Symbol, r.Ticker)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// normalizeSymbol upper-cases s and strips the perpetual suffix charting
// platforms append (ETHUSDT.P).
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.TrimSuffix(s, ".P")
}

func (s *Server) authorized(key string) bool {
	if s.Opts.WebhookKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.Opts.WebhookKey)) == 1
}

func (s *Server) webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !s.authorized(req.key()) {
		s.Log.Warn("webhook rejected", zap.Error(ErrUnauthorized), zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
		return
	}

	if _, err := dispatch.ParseSignal(req.signal()); err != nil {
		s.Log.Warn("webhook with unknown signal", zap.String("signal", req.signal()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown signal"})
		return
	}

	symbol := req.symbol()
	if symbol == "" && len(s.Opts.Symbols) > 0 {
		symbol = s.Opts.Symbols[0]
	}
	if !s.symbols[symbol] {
		s.Log.Warn("webhook for unconfigured symbol", zap.String("symbol", symbol), zap.String("signal", req.signal()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown symbol"})
		return
	}

	// The order outlives the request: a sender that hangs up must not cut
	// an in-flight submission or its retries short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.Opts.RequestTimeout)
	defer cancel()

	res, err := s.Signals.Handle(ctx, req.signal(), symbol)
	switch {
	case errors.Is(err, dispatch.ErrUnknownSignal):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown signal"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"msg": res.Message(), "result": res})
	}
}
