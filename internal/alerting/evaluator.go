package alerting

import (
	"time"

	"github.com/rs/zerolog"

	"cryptospread/internal/pairs"
	"cryptospread/internal/spread"
)

// Direction of a triggered spread.
type Direction string

const (
	DirectionDirect  Direction = "direct"
	DirectionReverse Direction = "reverse"
)

// Event 封装单次触发的告警上下文。
type Event struct {
	At           time.Time
	Pair         string
	Base         string
	Quote        string
	Venue        pairs.Venue
	ChainName    string
	Direction    Direction
	Value        float64
	Threshold    float64
	DexPrice     float64
	CexPrice     float64
	TokenAddress string
}

// Evaluator checks every computed spread against the pair's thresholds.
// There is no debounce: a spread that stays above its threshold fires on
// every evaluation, so the notification cadence tracks the poll cadence.
type Evaluator struct {
	logger zerolog.Logger
}

// NewEvaluator 构造告警判定器。
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With().Str("component", "alert_evaluator").Logger()}
}

// Evaluate returns one event per venue/direction whose value meets its
// threshold. Pairs with alerting disabled or without usable thresholds
// produce nothing.
func (e *Evaluator) Evaluate(snapshot spread.Snapshot, watched []pairs.Pair) []Event {
	if snapshot.Empty() {
		return nil
	}

	byName := make(map[string]pairs.Pair, len(watched))
	for _, p := range watched {
		byName[p.Name] = p
	}

	var events []Event
	for pairName, pairSnap := range snapshot.Pairs {
		p, ok := byName[pairName]
		if !ok || !p.Alertable() {
			continue
		}
		directThr, reverseThr := p.ResolveThresholds()
		if directThr == nil && reverseThr == nil {
			continue
		}

		for venue, vs := range pairSnap.Spreads {
			if p.AlertDirect && directThr != nil && vs.Direct != nil && *vs.Direct >= *directThr {
				events = append(events, e.event(p, venue, vs, DirectionDirect, *vs.Direct, *directThr, pairSnap))
			}
			if p.AlertReverse && reverseThr != nil && vs.Reverse != nil && *vs.Reverse >= *reverseThr {
				events = append(events, e.event(p, venue, vs, DirectionReverse, *vs.Reverse, *reverseThr, pairSnap))
			}
		}
	}
	return events
}

func (e *Evaluator) event(p pairs.Pair, venue pairs.Venue, vs spread.VenueSpread, dir Direction, value, threshold float64, pairSnap spread.PairSnapshot) Event {
	var cexPrice float64
	switch dir {
	case DirectionDirect:
		if pairSnap.CexBid != nil {
			cexPrice = *pairSnap.CexBid
		}
	case DirectionReverse:
		if pairSnap.CexAsk != nil {
			cexPrice = *pairSnap.CexAsk
		}
	}

	return Event{
		At:           time.Now(),
		Pair:         p.Name,
		Base:         p.Base,
		Quote:        p.Quote,
		Venue:        venue,
		ChainName:    venue.ChainName(),
		Direction:    dir,
		Value:        value,
		Threshold:    threshold,
		DexPrice:     vs.DexPrice,
		CexPrice:     cexPrice,
		TokenAddress: p.VenueAddress(venue),
	}
}
