package risk

import (
	"testing"

	"github.com/jooniper-hub/tv-bot/pkg/exchanges/common"
)

func TestLevels(t *testing.T) {
	f := Factors{StopLoss: 0.7, Trail: 1.5, Precision: 2}
	tests := []struct {
		name       string
		side       Side
		price, atr float64
		f          Factors
		stop, trl  float64
	}{
		{"long", SideLong, 3000, 20, f, 2986, 2970},
		{"short", SideShort, 3000, 20, f, 3014, 3030},
		{"rounded to precision", SideLong, 3000.123, 13.3333, f, 2990.79, 2980.12},
		{"flat has no levels", SideFlat, 3000, 20, f, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stop, trail := Levels(tt.side, tt.price, tt.atr, tt.f)
			if stop != tt.stop || trail != tt.trl {
				t.Fatalf("Levels=%v/%v, expected %v/%v", stop, trail, tt.stop, tt.trl)
			}
		})
	}
}

func TestBreached(t *testing.T) {
	long := Record{Side: SideLong, Active: true, EntryPrice: 3000, StopLoss: 2986, Trail: 2970}
	short := Record{Side: SideShort, Active: true, EntryPrice: 3000, StopLoss: 3014, Trail: 3030}
	unarmedShort := Record{Side: SideShort, Active: true, EntryPrice: 3000}
	tests := []struct {
		name  string
		rec   Record
		price float64
		want  Breach
	}{
		{"long at stop", long, 2986, BreachStopLoss},
		{"long one above stop", long, 2987, BreachNone},
		{"long below both", long, 2960, BreachStopLoss},
		{"long trail above stop", Record{Side: SideLong, Active: true, EntryPrice: 3000, StopLoss: 2986, Trail: 3010}, 3005, BreachTrail},
		{"short at stop", short, 3014, BreachStopLoss},
		{"short one below stop", short, 3013, BreachNone},
		{"unarmed never breaches", unarmedShort, 99999, BreachNone},
		{"inactive never breaches", Record{Side: SideFlat}, 0, BreachNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Breached(tt.price); got != tt.want {
				t.Fatalf("Breached(%v)=%q, expected %q", tt.price, got, tt.want)
			}
		})
	}
}

func TestSideOrders(t *testing.T) {
	if SideLong.EntryOrder() != common.SideBuy || SideLong.ExitOrder() != common.SideSell {
		t.Fatalf("LONG orders=%s/%s", SideLong.EntryOrder(), SideLong.ExitOrder())
	}
	if SideShort.EntryOrder() != common.SideSell || SideShort.ExitOrder() != common.SideBuy {
		t.Fatalf("SHORT orders=%s/%s", SideShort.EntryOrder(), SideShort.ExitOrder())
	}
}
