package pairs

import (
	"fmt"
	"strings"
)

// Venue identifies one decentralized price source.
type Venue string

const (
	VenuePancake Venue = "pancake"
	VenueJupiter Venue = "jupiter"
	VenueMatcha  Venue = "matcha"
)

// AllVenues lists every supported decentralized venue.
var AllVenues = []Venue{VenuePancake, VenueJupiter, VenueMatcha}

// ChainName returns the human-readable network name used in alerts.
func (v Venue) ChainName() string {
	switch v {
	case VenuePancake:
		return "BSC"
	case VenueJupiter:
		return "SOL"
	case VenueMatcha:
		return "BASE"
	}
	return strings.ToUpper(string(v))
}

// PancakeLeg identifies a token on BSC.
type PancakeLeg struct {
	Address string `json:"address"`
}

// JupiterLeg identifies a token on Solana.
type JupiterLeg struct {
	Mint     string `json:"mint"`
	Decimals int    `json:"decimals"`
}

// MatchaLeg identifies a token for the 0x gasless quote.
type MatchaLeg struct {
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// Pair holds the monitoring configuration for one trading pair.
type Pair struct {
	Name  string
	Base  string
	Quote string

	// Venues is the explicit enabled-venue set. Empty means: infer from
	// the populated legs, and if none are populated, poll all venues by
	// symbol (legacy mode).
	Venues []Venue

	Pancake *PancakeLeg
	Jupiter *JupiterLeg
	Matcha  *MatchaLeg

	// PriceScale is the number of decimal places the centralized bid/ask
	// is rounded to. It is never a divisor.
	PriceScale *int

	CoingeckoID string

	AlertDirect  bool
	AlertReverse bool

	// DirectThreshold/ReverseThreshold are per-direction alert thresholds
	// in percent. LegacyThreshold is the old single threshold kept for
	// compatibility with older tokens.json files.
	DirectThreshold  *float64
	ReverseThreshold *float64
	LegacyThreshold  *float64
}

// New builds a Pair with defaults applied.
func New(base, quote string) Pair {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		quote = "USDT"
	}
	return Pair{
		Name:         base + "-" + quote,
		Base:         base,
		Quote:        quote,
		AlertDirect:  true,
		AlertReverse: true,
	}
}

// Validate checks the structural invariants of the pair.
func (p Pair) Validate() error {
	if p.Name == "" || p.Base == "" {
		return fmt.Errorf("pair name and base are required")
	}
	for _, v := range p.Venues {
		switch v {
		case VenuePancake:
			if p.Pancake == nil || p.Pancake.Address == "" {
				return fmt.Errorf("pair %s: pancake enabled but no BSC address", p.Name)
			}
		case VenueJupiter:
			if p.Jupiter == nil || p.Jupiter.Mint == "" || p.Jupiter.Decimals < 0 {
				return fmt.Errorf("pair %s: jupiter enabled but mint/decimals missing", p.Name)
			}
		case VenueMatcha:
			if p.Matcha == nil || p.Matcha.Address == "" {
				return fmt.Errorf("pair %s: matcha enabled but no address", p.Name)
			}
		default:
			return fmt.Errorf("pair %s: unknown venue %q", p.Name, v)
		}
	}
	return nil
}

// EnabledVenues resolves the effective venue set: the explicit list wins;
// otherwise venues with a populated leg; otherwise all venues.
func (p Pair) EnabledVenues() []Venue {
	if len(p.Venues) > 0 {
		out := make([]Venue, len(p.Venues))
		copy(out, p.Venues)
		return out
	}

	var inferred []Venue
	if p.Pancake != nil && p.Pancake.Address != "" {
		inferred = append(inferred, VenuePancake)
	}
	if p.Jupiter != nil && p.Jupiter.Mint != "" {
		inferred = append(inferred, VenueJupiter)
	}
	if p.Matcha != nil && p.Matcha.Address != "" {
		inferred = append(inferred, VenueMatcha)
	}
	if len(inferred) > 0 {
		return inferred
	}

	out := make([]Venue, len(AllVenues))
	copy(out, AllVenues)
	return out
}

// VenueAddress returns the identifying address/mint for a venue, if any.
func (p Pair) VenueAddress(v Venue) string {
	switch v {
	case VenuePancake:
		if p.Pancake != nil {
			return p.Pancake.Address
		}
	case VenueJupiter:
		if p.Jupiter != nil {
			return p.Jupiter.Mint
		}
	case VenueMatcha:
		if p.Matcha != nil {
			return p.Matcha.Address
		}
	}
	return ""
}

// ResolveThresholds returns the effective per-direction thresholds after the
// legacy single-threshold fallback. A nil result means no alerting in that
// direction.
func (p Pair) ResolveThresholds() (direct, reverse *float64) {
	direct = p.DirectThreshold
	reverse = p.ReverseThreshold

	if direct == nil || *direct <= 0 {
		direct = p.LegacyThreshold
	}
	if reverse == nil || *reverse <= 0 {
		reverse = p.LegacyThreshold
	}

	if direct != nil && *direct <= 0 {
		direct = nil
	}
	if reverse != nil && *reverse <= 0 {
		reverse = nil
	}
	return direct, reverse
}

// Alertable reports whether any direction can fire for this pair.
func (p Pair) Alertable() bool {
	d, r := p.ResolveThresholds()
	return d != nil || r != nil
}
