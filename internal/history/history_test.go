package history

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cryptospread/internal/pairs"
	"cryptospread/internal/spread"
)

func fptr(v float64) *float64 { return &v }

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	s := NewStore(Options{
		Window: 48 * time.Hour,
		Path:   filepath.Join(t.TempDir(), "history.json"),
	}, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestAppendPrunesBeyondWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, now)

	old := float64(now.Add(-49 * time.Hour).Unix())
	fresh := float64(now.Add(-time.Hour).Unix())

	s.Append("AAA-USDT", pairs.VenuePancake, spread.Sample{Timestamp: old, Direct: fptr(1)})
	s.Append("AAA-USDT", pairs.VenuePancake, spread.Sample{Timestamp: fresh, Direct: fptr(2)})

	got := s.Query("AAA-USDT", pairs.VenuePancake, 0)
	if len(got) != 1 {
		t.Fatalf("48 小时窗口外的样本应被清除, 剩余 %d", len(got))
	}
	if got[0].Timestamp != fresh {
		t.Fatalf("保留的应是窗口内样本: %v", got[0].Timestamp)
	}
}

func TestAppendSkipsEmptySample(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, now)

	s.Append("AAA-USDT", pairs.VenueJupiter, spread.Sample{Timestamp: float64(now.Unix())})
	if got := s.Query("AAA-USDT", pairs.VenueJupiter, 0); len(got) != 0 {
		t.Fatalf("两个分量都为 nil 的样本不应入库: %d", len(got))
	}

	s.Append("AAA-USDT", pairs.VenueJupiter, spread.Sample{Timestamp: float64(now.Unix()), Reverse: fptr(-1)})
	if got := s.Query("AAA-USDT", pairs.VenueJupiter, 0); len(got) != 1 {
		t.Fatalf("单分量样本应入库: %d", len(got))
	}
}

func TestQuerySince(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, now)

	for i := 0; i < 5; i++ {
		ts := float64(now.Add(time.Duration(-i) * time.Hour).Unix())
		s.Append("AAA-USDT", pairs.VenueMatcha, spread.Sample{Timestamp: ts, Direct: fptr(float64(i))})
	}

	since := float64(now.Add(-2*time.Hour - time.Minute).Unix())
	got := s.Query("AAA-USDT", pairs.VenueMatcha, since)
	if len(got) != 3 {
		t.Fatalf("since 过滤不正确: %d", len(got))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, now)

	ts := float64(now.Unix())
	s.Append("AAA-USDT", pairs.VenuePancake, spread.Sample{Timestamp: ts, Direct: fptr(1.5), Reverse: fptr(-0.5)})
	s.Append("AAA-USDT", pairs.VenueJupiter, spread.Sample{Timestamp: ts, Direct: fptr(2.5)})
	s.Append("BBB-USDT", pairs.VenueMatcha, spread.Sample{Timestamp: ts, Reverse: fptr(3.5)})

	if err := s.Save(); err != nil {
		t.Fatalf("Save 应成功: %v", err)
	}

	reloaded := NewStore(s.opts, zerolog.Nop())
	reloaded.now = s.now
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}

	got := reloaded.Query("AAA-USDT", pairs.VenuePancake, 0)
	if len(got) != 1 || got[0].Direct == nil || *got[0].Direct != 1.5 || got[0].Reverse == nil || *got[0].Reverse != -0.5 {
		t.Fatalf("pancake 序列往返不一致: %+v", got)
	}
	jup := reloaded.Query("AAA-USDT", pairs.VenueJupiter, 0)
	if len(jup) != 1 || jup[0].Reverse != nil {
		t.Fatalf("nil 分量应保持 nil: %+v", jup)
	}
	if venues := reloaded.Venues("BBB-USDT"); len(venues) != 1 {
		t.Fatalf("BBB-USDT 应有一个 venue: %v", venues)
	}
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	path := filepath.Join(t.TempDir(), "history.json")
	fresh := float64(now.Add(-time.Hour).Unix())
	stale := float64(now.Add(-72 * time.Hour).Unix())

	raw := []byte(`{
		"AAA-USDT": {
			"pancake": [
				[` + formatFloat(fresh) + `, 1.5, null],
				[` + formatFloat(stale) + `, 9.9, null],
				[` + formatFloat(fresh) + `],
				[null, 1.0, 2.0],
				["oops", 1.0, 2.0],
				{"ts": ` + formatFloat(fresh) + `}
			]
		}
	}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(Options{Window: 48 * time.Hour, Path: path}, zerolog.Nop())
	s.now = func() time.Time { return now }
	if err := s.Load(); err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}

	got := s.Query("AAA-USDT", pairs.VenuePancake, 0)
	if len(got) != 1 {
		t.Fatalf("畸形与过期条目应被跳过, 不应拖垮整个加载, 剩余 %d", len(got))
	}
	if got[0].Direct == nil || *got[0].Direct != 1.5 {
		t.Fatalf("保留的样本不正确: %+v", got[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(Options{Window: 48 * time.Hour, Path: filepath.Join(t.TempDir(), "absent.json")}, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("文件不存在不是错误: %v", err)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}
