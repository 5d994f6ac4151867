package risk

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInvalidOpen is returned when an open request has no direction, price or size.
var ErrInvalidOpen = errors.New("invalid position open")

// Ledger owns every position record. Each symbol has its own lock; callers
// never touch records directly, only through Update and the helpers built on it.
type Ledger struct {
	mu    sync.Mutex
	slots map[string]*slot
	now   func() time.Time
}

type slot struct {
	mu  sync.Mutex
	rec Record
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		slots: make(map[string]*slot),
		now:   time.Now,
	}
}

func flat(symbol string) Record {
	return Record{Symbol: symbol, Side: SideFlat}
}

func (l *Ledger) slot(symbol string, create bool) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[symbol]
	if !ok && create {
		s = &slot{rec: flat(symbol)}
		l.slots[symbol] = s
	}
	return s
}

// Update runs fn with exclusive access to symbol's record. fn sees a staged
// copy through tx; the copy is committed only if fn returns nil, so an order
// that fails inside fn leaves the record exactly as it was. Update returns the
// record as stored after the call.
func (l *Ledger) Update(symbol string, fn func(tx *Tx) error) (Record, error) {
	s := l.slot(symbol, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{rec: s.rec, now: l.now}
	if err := fn(tx); err != nil {
		return s.rec, err
	}
	if tx.dirty {
		tx.rec.UpdatedAt = l.now()
		s.rec = tx.rec
	}
	return s.rec, nil
}

// Get returns symbol's record, or a FLAT record if it was never opened.
func (l *Ledger) Get(symbol string) Record {
	s := l.slot(symbol, false)
	if s == nil {
		return flat(symbol)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// Open activates symbol with the given side and thresholds. It is a no-op
// returning false when the same side is already active; a record on the other
// side is replaced.
func (l *Ledger) Open(symbol string, side Side, qty, entry, stop, trail float64) (bool, error) {
	var opened bool
	_, err := l.Update(symbol, func(tx *Tx) error {
		var err error
		opened, err = tx.Open(side, qty, entry, stop, trail)
		return err
	})
	return opened, err
}

// UpdateThresholds tightens symbol's thresholds; looser values are ignored.
func (l *Ledger) UpdateThresholds(symbol string, stop, trail float64) bool {
	var changed bool
	_, _ = l.Update(symbol, func(tx *Tx) error {
		changed = tx.Tighten(stop, trail)
		return nil
	})
	return changed
}

// Close resets symbol to FLAT. Closing a FLAT record is a no-op.
func (l *Ledger) Close(symbol string) bool {
	var closed bool
	_, _ = l.Update(symbol, func(tx *Tx) error {
		closed = tx.Close("closed")
		return nil
	})
	return closed
}

// Active returns a snapshot of the active records sorted by symbol.
func (l *Ledger) Active() []Record {
	var out []Record
	for _, r := range l.All() {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// All returns a snapshot of every record ever touched, sorted by symbol.
func (l *Ledger) All() []Record {
	l.mu.Lock()
	slots := make([]*slot, 0, len(l.slots))
	for _, s := range l.slots {
		slots = append(slots, s)
	}
	l.mu.Unlock()

	out := make([]Record, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.rec)
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Tx is the staged view of one record inside Ledger.Update.
type Tx struct {
	rec   Record
	now   func() time.Time
	dirty bool
}

// Record returns the staged record.
func (tx *Tx) Record() Record { return tx.rec }

// Open stages a new position. Thresholds on the wrong side of entry are
// dropped (left unarmed).
func (tx *Tx) Open(side Side, qty, entry, stop, trail float64) (bool, error) {
	if side != SideLong && side != SideShort {
		return false, fmt.Errorf("%w: side %q", ErrInvalidOpen, side)
	}
	if entry <= 0 || qty <= 0 {
		return false, fmt.Errorf("%w: entry=%v qty=%v", ErrInvalidOpen, entry, qty)
	}
	if tx.rec.Active && tx.rec.Side == side {
		return false, nil
	}
	if !protects(side, entry, stop) {
		stop = 0
	}
	if !protects(side, entry, trail) {
		trail = 0
	}
	tx.rec = Record{
		Symbol:     tx.rec.Symbol,
		Side:       side,
		Active:     true,
		Qty:        qty,
		EntryPrice: entry,
		StopLoss:   stop,
		Trail:      trail,
		OpenedAt:   tx.now(),
	}
	tx.dirty = true
	return true, nil
}

// Tighten stages stop and trail where they are strictly more protective than
// the current values. Zero candidates are ignored. A stop is never moved to or
// past the entry price. Returns whether anything changed.
func (tx *Tx) Tighten(stop, trail float64) bool {
	if !tx.rec.Active {
		return false
	}
	changed := false
	if stop > 0 && protects(tx.rec.Side, tx.rec.EntryPrice, stop) && tighter(tx.rec.Side, tx.rec.StopLoss, stop) {
		tx.rec.StopLoss = stop
		changed = true
	}
	if trail > 0 && tighter(tx.rec.Side, tx.rec.Trail, trail) {
		tx.rec.Trail = trail
		changed = true
	}
	if changed {
		tx.dirty = true
	}
	return changed
}

// Close stages the reset to FLAT. Returns false if the record was not active.
func (tx *Tx) Close(reason string) bool {
	if !tx.rec.Active {
		return false
	}
	tx.rec = Record{Symbol: tx.rec.Symbol, Side: SideFlat, ExitReason: reason}
	tx.dirty = true
	return true
}

// protects reports whether level sits on the loss side of entry.
func protects(side Side, entry, level float64) bool {
	if level <= 0 {
		return false
	}
	if side == SideLong {
		return level < entry
	}
	return level > entry
}

// tighter reports whether candidate is strictly more protective than cur.
// An unarmed cur (0) accepts any candidate.
func tighter(side Side, cur, candidate float64) bool {
	if cur == 0 {
		return true
	}
	if side == SideLong {
		return candidate > cur
	}
	return candidate < cur
}
