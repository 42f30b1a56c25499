package alerting

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cryptospread/internal/pairs"
	"cryptospread/internal/spread"
)

func fptr(v float64) *float64 { return &v }

func watchedPair(direct, reverse *float64) pairs.Pair {
	p := pairs.New("ABC", "USDT")
	p.Pancake = &pairs.PancakeLeg{Address: "0xabc"}
	p.DirectThreshold = direct
	p.ReverseThreshold = reverse
	return p
}

func snapshotWith(direct, reverse *float64) spread.Snapshot {
	return spread.Snapshot{
		TakenAt: time.Now(),
		Pairs: map[string]spread.PairSnapshot{
			"ABC-USDT": {
				CexBid: fptr(1.05),
				CexAsk: fptr(1.06),
				Spreads: map[pairs.Venue]spread.VenueSpread{
					pairs.VenuePancake: {Direct: direct, Reverse: reverse, DexPrice: 1.0},
				},
			},
		},
	}
}

func TestEvaluateFiresAtThreshold(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	watched := []pairs.Pair{watchedPair(fptr(5.0), nil)}

	events := e.Evaluate(snapshotWith(fptr(5.0), nil), watched)
	if len(events) != 1 {
		t.Fatalf("达到阈值应触发告警: %d", len(events))
	}
	ev := events[0]
	if ev.Direction != DirectionDirect || ev.Value != 5.0 || ev.Threshold != 5.0 {
		t.Fatalf("事件内容不正确: %+v", ev)
	}
	if ev.Venue != pairs.VenuePancake || ev.ChainName != "BSC" || ev.TokenAddress != "0xabc" {
		t.Fatalf("venue 上下文不正确: %+v", ev)
	}
	if ev.CexPrice != 1.05 {
		t.Fatalf("direct 方向应携带 bid: %v", ev.CexPrice)
	}
}

func TestEvaluateNoDebounce(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	watched := []pairs.Pair{watchedPair(fptr(5.0), nil)}
	snap := snapshotWith(fptr(7.5), nil)

	total := 0
	for i := 0; i < 3; i++ {
		total += len(e.Evaluate(snap, watched))
	}
	if total != 3 {
		t.Fatalf("持续超阈值应每轮都触发, 共 %d", total)
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	watched := []pairs.Pair{watchedPair(fptr(5.0), fptr(5.0))}

	events := e.Evaluate(snapshotWith(fptr(4.99), fptr(-10)), watched)
	if len(events) != 0 {
		t.Fatalf("低于阈值不应触发: %d", len(events))
	}
}

func TestEvaluateLegacyThresholdFallback(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	p := watchedPair(nil, nil)
	p.LegacyThreshold = fptr(3.0)

	events := e.Evaluate(snapshotWith(fptr(3.5), fptr(3.5)), []pairs.Pair{p})
	if len(events) != 2 {
		t.Fatalf("单阈值应回退到两个方向: %d", len(events))
	}
}

func TestEvaluateNoUsableThreshold(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	p := watchedPair(fptr(0), fptr(-1))

	events := e.Evaluate(snapshotWith(fptr(100), fptr(100)), []pairs.Pair{p})
	if len(events) != 0 {
		t.Fatalf("无有效阈值的 pair 应被跳过: %d", len(events))
	}
}

func TestEvaluateDirectionFlags(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	p := watchedPair(fptr(1.0), fptr(1.0))
	p.AlertReverse = false

	events := e.Evaluate(snapshotWith(fptr(2.0), fptr(2.0)), []pairs.Pair{p})
	if len(events) != 1 {
		t.Fatalf("关闭的方向不应触发: %d", len(events))
	}
	if events[0].Direction != DirectionDirect {
		t.Fatalf("应只触发 direct: %+v", events[0])
	}
}

func TestEvaluateNilComponents(t *testing.T) {
	e := NewEvaluator(zerolog.Nop())
	watched := []pairs.Pair{watchedPair(fptr(1.0), fptr(1.0))}

	events := e.Evaluate(snapshotWith(nil, nil), watched)
	if len(events) != 0 {
		t.Fatalf("nil 价差不应触发: %d", len(events))
	}
}
