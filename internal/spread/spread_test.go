package spread

import (
	"math"
	"testing"
	"time"

	"cryptospread/internal/pairs"
)

func fptr(v float64) *float64 { return &v }

func TestComputeBothSides(t *testing.T) {
	direct, reverse := Compute(fptr(1.0), fptr(1.02), 0.98)
	if direct == nil || reverse == nil {
		t.Fatalf("两个方向都应有值: direct=%v reverse=%v", direct, reverse)
	}
	if math.Abs(*direct-2.0408163265) > 1e-6 {
		t.Fatalf("direct 价差不正确: %v", *direct)
	}
	if math.Abs(*reverse-(-3.9215686274)) > 1e-6 {
		t.Fatalf("reverse 价差不正确: %v", *reverse)
	}
}

func TestComputeDexPriceNonPositive(t *testing.T) {
	if d, r := Compute(fptr(1), fptr(1), 0); d != nil || r != nil {
		t.Fatalf("dex 价格为 0 应返回 nil/nil")
	}
	if d, r := Compute(fptr(1), fptr(1), -0.5); d != nil || r != nil {
		t.Fatalf("dex 价格为负应返回 nil/nil")
	}
}

func TestComputeMissingSides(t *testing.T) {
	direct, reverse := Compute(nil, fptr(1.02), 0.98)
	if direct != nil {
		t.Fatalf("无 bid 时 direct 应为 nil")
	}
	if reverse == nil {
		t.Fatalf("有 ask 时 reverse 应有值")
	}

	direct, reverse = Compute(fptr(1.0), nil, 0.98)
	if direct == nil || reverse != nil {
		t.Fatalf("无 ask 时应只有 direct: direct=%v reverse=%v", direct, reverse)
	}

	// Zero prices behave like missing ones.
	direct, reverse = Compute(fptr(0), fptr(0), 0.98)
	if direct != nil || reverse != nil {
		t.Fatalf("bid/ask 为 0 时应返回 nil/nil")
	}
}

func TestComputeNoClamping(t *testing.T) {
	direct, _ := Compute(fptr(1000), nil, 0.001)
	if direct == nil {
		t.Fatal("direct 应有值")
	}
	if *direct < 9999 {
		t.Fatalf("极端价差不应被截断: %v", *direct)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	s := Snapshot{TakenAt: time.Now()}
	if !s.Empty() {
		t.Fatal("无 pair 的快照应为空")
	}

	s.Pairs = map[string]PairSnapshot{
		"AAA-USDT": {CexBid: fptr(1)},
	}
	if !s.Empty() {
		t.Fatal("仅有 CEX 报价、无 venue 数据的快照仍应为空")
	}

	s.Pairs["AAA-USDT"] = PairSnapshot{
		Spreads: map[pairs.Venue]VenueSpread{
			pairs.VenuePancake: {DexPrice: 1},
		},
	}
	if s.Empty() {
		t.Fatal("有 venue 数据的快照不应为空")
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(nil); got != "-" {
		t.Fatalf("nil 应显示为 -: %q", got)
	}
	if got := FormatPercent(fptr(2.345)); got != "2.35%" {
		t.Fatalf("格式化结果不正确: %q", got)
	}
	if got := FormatPercent(fptr(123456)); got != ">9999%" {
		t.Fatalf("超大值应显示溢出标记: %q", got)
	}
	if got := FormatPercent(fptr(-123456)); got != ">9999%" {
		t.Fatalf("超大负值应显示溢出标记: %q", got)
	}
}
