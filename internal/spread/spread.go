package spread

import (
	"fmt"
	"time"

	"cryptospread/internal/pairs"
)

// Compute derives the direct and reverse spread percentages for one venue.
//
// Direct models selling on the centralized venue at its bid after buying on
// the decentralized venue at dexPrice; reverse models buying at the
// centralized ask and selling on the decentralized venue. A nil component
// means "no value": dexPrice must be positive, and each side is computed only
// when the corresponding centralized price is positive. Values are not
// clamped.
func Compute(cexBid, cexAsk *float64, dexPrice float64) (direct, reverse *float64) {
	if dexPrice <= 0 {
		return nil, nil
	}

	if cexBid != nil && *cexBid > 0 {
		d := (*cexBid - dexPrice) / dexPrice * 100.0
		direct = &d
	}

	if cexAsk != nil && *cexAsk > 0 {
		r := (dexPrice - *cexAsk) / *cexAsk * 100.0
		reverse = &r
	}

	return direct, reverse
}

// VenueSpread is the per-venue result entry inside a pair snapshot.
type VenueSpread struct {
	Direct   *float64
	Reverse  *float64
	DexPrice float64
	CexBid   *float64
	CexAsk   *float64
}

// PairSnapshot carries everything one tick learned about a pair.
type PairSnapshot struct {
	CexBid  *float64
	CexAsk  *float64
	Spreads map[pairs.Venue]VenueSpread
}

// Empty reports whether the pair produced no venue data this tick.
func (p PairSnapshot) Empty() bool {
	return len(p.Spreads) == 0
}

// Snapshot is the complete, immutable result of one tick across all pairs.
type Snapshot struct {
	TakenAt time.Time
	Pairs   map[string]PairSnapshot
}

// Empty reports whether no pair produced any venue data this tick. An empty
// snapshot signals "waiting", a non-empty one "online".
func (s Snapshot) Empty() bool {
	for _, p := range s.Pairs {
		if !p.Empty() {
			return false
		}
	}
	return true
}

// Sample is one immutable history point.
type Sample struct {
	Timestamp float64
	Direct    *float64
	Reverse   *float64
}

// FormatPercent renders a spread value for display, clamping the absurd to an
// overflow marker. Presentation only; stored values are never clamped.
func FormatPercent(v *float64) string {
	if v == nil {
		return "-"
	}
	if *v > 9999 || *v < -9999 {
		return ">9999%"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
