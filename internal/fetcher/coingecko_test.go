package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newCoingecko(t *testing.T, handler http.HandlerFunc) *Coingecko {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCoingecko(CoingeckoOptions{
		BaseURL: srv.URL,
		Timeout: time.Second,
	}, nil, zerolog.Nop())
}

func TestPickCoinID(t *testing.T) {
	coins := []coingeckoCoin{
		{ID: "wrapped-solana", Symbol: "SOL", Name: "Wrapped Solana"},
		{ID: "solana", Symbol: "SOL", Name: "Solana"},
		{ID: "solana-wormhole", Symbol: "sol", Name: "Solana (Wormhole)"},
		{ID: "other-coin", Symbol: "OTH", Name: "Other"},
	}

	if got := pickCoinID(coins, "SOL"); got != "solana" {
		t.Fatalf("应选 id 与符号一致的币: %q", got)
	}
	if got := pickCoinID(coins, "DOGE"); got != "" {
		t.Fatalf("无匹配符号时应返回空: %q", got)
	}
}

func TestPickCoinIDPenalisesVariants(t *testing.T) {
	coins := []coingeckoCoin{
		{ID: "binance-peg-cardano", Symbol: "ADA", Name: "Binance-Peg Cardano"},
		{ID: "cardano", Symbol: "ADA", Name: "Cardano"},
	}
	if got := pickCoinID(coins, "ada"); got != "cardano" {
		t.Fatalf("应惩罚桥接/锚定变体: %q", got)
	}
}

func TestResolveIDCachesList(t *testing.T) {
	var listCalls atomic.Int32
	c := newCoingecko(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/list" {
			t.Fatalf("意外的请求路径: %s", r.URL.Path)
		}
		listCalls.Add(1)
		_ = json.NewEncoder(w).Encode([]coingeckoCoin{
			{ID: "api3", Symbol: "API3", Name: "API3"},
			{ID: "solana", Symbol: "SOL", Name: "Solana"},
		})
	})

	if got := c.ResolveID(context.Background(), "api3"); got != "api3" {
		t.Fatalf("ResolveID 结果不正确: %q", got)
	}
	if got := c.ResolveID(context.Background(), "SOL"); got != "solana" {
		t.Fatalf("ResolveID 结果不正确: %q", got)
	}
	if got := c.ResolveID(context.Background(), "SOL"); got != "solana" {
		t.Fatalf("缓存命中后结果应一致: %q", got)
	}
	if n := listCalls.Load(); n != 1 {
		t.Fatalf("coins list 只应加载一次, 实际 %d 次", n)
	}
}

func TestResolveIDListFailureDoesNotRetry(t *testing.T) {
	var listCalls atomic.Int32
	c := newCoingecko(t, func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	if got := c.ResolveID(context.Background(), "SOL"); got != "" {
		t.Fatalf("列表加载失败时应返回空: %q", got)
	}
	if got := c.ResolveID(context.Background(), "SOL"); got != "" {
		t.Fatalf("列表加载失败时应返回空: %q", got)
	}
	if n := listCalls.Load(); n != 1 {
		t.Fatalf("失败的列表不应重试, 实际请求 %d 次", n)
	}
}

func TestMarketCap(t *testing.T) {
	c := newCoingecko(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Fatalf("意外的请求路径: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "solana" {
			t.Fatalf("ids 参数不正确: %q", got)
		}
		_, _ = w.Write([]byte(`[{"id":"solana","market_cap":12345678900}]`))
	})

	mcap, err := c.MarketCap(context.Background(), "solana")
	if err != nil {
		t.Fatalf("MarketCap 应成功: %v", err)
	}
	if mcap == nil || *mcap != 12345678900 {
		t.Fatalf("市值不正确: %v", mcap)
	}
}

func TestMarketCapEmptyResult(t *testing.T) {
	c := newCoingecko(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	mcap, err := c.MarketCap(context.Background(), "no-such-coin")
	if err != nil {
		t.Fatalf("空结果不应报错: %v", err)
	}
	if mcap != nil {
		t.Fatalf("空结果应返回 nil 市值: %v", mcap)
	}
}

func TestMarketCapRequiresID(t *testing.T) {
	c := NewCoingecko(CoingeckoOptions{}, nil, zerolog.Nop())
	if _, err := c.MarketCap(context.Background(), "  "); err == nil {
		t.Fatal("空 id 应报错")
	}
}
