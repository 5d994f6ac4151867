package risk

import (
	"time"

	"github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

// Side is the direction of a position record.
type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// EntryOrder is the order side that opens a position on s.
func (s Side) EntryOrder() common.Side {
	if s == SideShort {
		return common.SideSell
	}
	return common.SideBuy
}

// ExitOrder is the order side that closes a position on s.
func (s Side) ExitOrder() common.Side {
	return s.EntryOrder().Opposite()
}

// Record is the risk state of one symbol. A zero StopLoss or Trail means the
// threshold is not armed yet.
type Record struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Active     bool      `json:"active"`
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	Trail      float64   `json:"trail"`
	OpenedAt   time.Time `json:"opened_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
	ExitReason string    `json:"exit_reason,omitempty"`
}

// Armed reports whether at least one exit threshold is set.
func (r Record) Armed() bool {
	return r.StopLoss > 0 || r.Trail > 0
}

// Breach describes which threshold a price crossed.
type Breach string

const (
	BreachNone     Breach = ""
	BreachStopLoss Breach = "stop_loss"
	BreachTrail    Breach = "trailing_stop"
)

// Breached reports whether price crosses an armed threshold of an active
// record. Touching a threshold counts as crossing it.
func (r Record) Breached(price float64) Breach {
	if !r.Active {
		return BreachNone
	}
	switch r.Side {
	case SideLong:
		if r.StopLoss > 0 && price <= r.StopLoss {
			return BreachStopLoss
		}
		if r.Trail > 0 && price <= r.Trail {
			return BreachTrail
		}
	case SideShort:
		if r.StopLoss > 0 && price >= r.StopLoss {
			return BreachStopLoss
		}
		if r.Trail > 0 && price >= r.Trail {
			return BreachTrail
		}
	}
	return BreachNone
}
