package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jooniper-hub/tv-bot/internal/risk"
)

// StatusResponse describes runtime status for operators.
type StatusResponse struct {
	Version         string    `json:"version"`
	DryRun          bool      `json:"dry_run"`
	Symbols         []string  `json:"symbols"`
	ActivePositions int       `json:"active_positions"`
	StartedAt       time.Time `json:"started_at"`
	Uptime          string    `json:"uptime"`
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Version:         s.Opts.Version,
		DryRun:          s.Opts.DryRun,
		Symbols:         s.Opts.Symbols,
		ActivePositions: len(s.Ledger.Active()),
		StartedAt:       s.started,
		Uptime:          time.Since(s.started).Truncate(time.Second).String(),
	})
}

// getPositions lists every tracked record; ?active=true keeps only open ones.
func (s *Server) getPositions(c *gin.Context) {
	var recs []risk.Record
	if c.Query("active") == "true" {
		recs = s.Ledger.Active()
	} else {
		recs = s.Ledger.All()
	}
	if recs == nil {
		recs = []risk.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": recs})
}

func (s *Server) getPosition(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	if !s.symbols[symbol] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, s.Ledger.Get(symbol))
}
