package risk

import (
	"errors"
	"sync"
	"testing"
)

func TestGetUnknownSymbolIsFlat(t *testing.T) {
	l := NewLedger()
	r := l.Get("ETHUSDT")
	if r.Side != SideFlat || r.Active || r.Symbol != "ETHUSDT" {
		t.Fatalf("record=%+v, expected inactive FLAT", r)
	}
	if len(l.All()) != 0 {
		t.Fatalf("Get must not create records")
	}
}

func TestOpenIsIdempotentPerSide(t *testing.T) {
	l := NewLedger()
	opened, err := l.Open("ETHUSDT", SideLong, 1, 3000, 2986, 2970)
	if err != nil || !opened {
		t.Fatalf("first Open=(%v,%v), expected (true,nil)", opened, err)
	}
	first := l.Get("ETHUSDT")

	opened, err = l.Open("ETHUSDT", SideLong, 1, 3100, 3090, 3080)
	if err != nil || opened {
		t.Fatalf("duplicate Open=(%v,%v), expected (false,nil)", opened, err)
	}
	if got := l.Get("ETHUSDT"); got != first {
		t.Fatalf("duplicate Open changed record: %+v", got)
	}

	// Mismatched side replaces the record.
	opened, err = l.Open("ETHUSDT", SideShort, 1, 3050, 3064, 3080)
	if err != nil || !opened {
		t.Fatalf("opposite Open=(%v,%v), expected (true,nil)", opened, err)
	}
	if got := l.Get("ETHUSDT"); got.Side != SideShort || got.EntryPrice != 3050 {
		t.Fatalf("record=%+v, expected SHORT@3050", got)
	}
}

func TestOpenRejectsInvalidInput(t *testing.T) {
	l := NewLedger()
	tests := []struct {
		side       Side
		qty, entry float64
	}{
		{SideFlat, 1, 3000},
		{SideLong, 0, 3000},
		{SideShort, 1, 0},
	}
	for _, tt := range tests {
		if _, err := l.Open("ETHUSDT", tt.side, tt.qty, tt.entry, 0, 0); !errors.Is(err, ErrInvalidOpen) {
			t.Fatalf("Open(%s,%v,%v) err=%v, expected ErrInvalidOpen", tt.side, tt.qty, tt.entry, err)
		}
	}
	if l.Get("ETHUSDT").Active {
		t.Fatalf("invalid open activated the record")
	}
}

func TestOpenDropsThresholdsOnWrongSide(t *testing.T) {
	l := NewLedger()
	if _, err := l.Open("ETHUSDT", SideLong, 1, 3000, 3000, 3010); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	r := l.Get("ETHUSDT")
	if r.StopLoss != 0 || r.Trail != 0 || r.Armed() {
		t.Fatalf("record=%+v, expected unarmed thresholds", r)
	}
}

func TestUpdateThresholdsOnlyTightens(t *testing.T) {
	tests := []struct {
		name               string
		side               Side
		entry, stop, trail float64
		newStop, newTrail  float64
		wantStop, wantTrl  float64
		wantChanged        bool
	}{
		{"long tighter", SideLong, 3000, 2986, 2970, 2990, 2980, 2990, 2980, true},
		{"long looser", SideLong, 3000, 2986, 2970, 2980, 2960, 2986, 2970, false},
		{"long stop capped below entry", SideLong, 3000, 2986, 2970, 3005, 2995, 2986, 2995, true},
		{"long arms unset", SideLong, 3000, 0, 0, 2986, 2970, 2986, 2970, true},
		{"short tighter", SideShort, 3000, 3014, 3030, 3010, 3020, 3010, 3020, true},
		{"short looser", SideShort, 3000, 3014, 3030, 3020, 3040, 3014, 3030, false},
		{"short stop capped above entry", SideShort, 3000, 3014, 3030, 2995, 3001, 3014, 3001, true},
		{"zero candidates ignored", SideShort, 3000, 3014, 3030, 0, 0, 3014, 3030, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			if _, err := l.Open("ETHUSDT", tt.side, 1, tt.entry, tt.stop, tt.trail); err != nil {
				t.Fatalf("Open returned error: %v", err)
			}
			changed := l.UpdateThresholds("ETHUSDT", tt.newStop, tt.newTrail)
			if changed != tt.wantChanged {
				t.Fatalf("changed=%v, expected %v", changed, tt.wantChanged)
			}
			r := l.Get("ETHUSDT")
			if r.StopLoss != tt.wantStop || r.Trail != tt.wantTrl {
				t.Fatalf("stop/trail=%v/%v, expected %v/%v", r.StopLoss, r.Trail, tt.wantStop, tt.wantTrl)
			}
		})
	}
}

func TestUpdateThresholdsInactiveIsNoop(t *testing.T) {
	l := NewLedger()
	if l.UpdateThresholds("ETHUSDT", 100, 90) {
		t.Fatalf("UpdateThresholds changed an inactive record")
	}
	if r := l.Get("ETHUSDT"); r.StopLoss != 0 || r.Active {
		t.Fatalf("record=%+v, expected untouched FLAT", r)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	l := NewLedger()
	if _, err := l.Open("ETHUSDT", SideLong, 1, 3000, 2986, 2970); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if !l.Close("ETHUSDT") {
		t.Fatalf("first Close=false, expected true")
	}
	if l.Close("ETHUSDT") {
		t.Fatalf("second Close=true, expected false")
	}
	r := l.Get("ETHUSDT")
	if r.Active || r.Side != SideFlat || r.StopLoss != 0 || r.Trail != 0 {
		t.Fatalf("record=%+v, expected FLAT", r)
	}
	// The record survives and may be reopened.
	if opened, _ := l.Open("ETHUSDT", SideShort, 1, 2900, 2915, 2930); !opened {
		t.Fatalf("reopen after close failed")
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	l := NewLedger()
	if _, err := l.Open("ETHUSDT", SideLong, 1, 3000, 2986, 2970); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	before := l.Get("ETHUSDT")

	boom := errors.New("order failed")
	got, err := l.Update("ETHUSDT", func(tx *Tx) error {
		tx.Close("exit")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, expected %v", err, boom)
	}
	if got != before || l.Get("ETHUSDT") != before {
		t.Fatalf("record changed despite error: %+v", l.Get("ETHUSDT"))
	}
}

func TestActiveSnapshot(t *testing.T) {
	l := NewLedger()
	_, _ = l.Open("SOLUSDT", SideShort, 1, 150, 151, 152)
	_, _ = l.Open("BTCUSDT", SideLong, 1, 60000, 59900, 59800)
	_, _ = l.Open("ETHUSDT", SideLong, 1, 3000, 2986, 2970)
	l.Close("ETHUSDT")

	active := l.Active()
	if len(active) != 2 || active[0].Symbol != "BTCUSDT" || active[1].Symbol != "SOLUSDT" {
		t.Fatalf("Active=%+v, expected BTCUSDT,SOLUSDT", active)
	}
	if len(l.All()) != 3 {
		t.Fatalf("All len=%d, expected 3", len(l.All()))
	}
}

func TestConcurrentCloseRunsOnce(t *testing.T) {
	l := NewLedger()
	if _, err := l.Open("ETHUSDT", SideLong, 1, 3000, 2986, 2970); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closes int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Update("ETHUSDT", func(tx *Tx) error {
				if !tx.Record().Active {
					return nil
				}
				mu.Lock()
				closes++
				mu.Unlock()
				tx.Close("race")
				return nil
			})
		}()
	}
	wg.Wait()
	if closes != 1 {
		t.Fatalf("closes=%d, expected 1", closes)
	}
}
