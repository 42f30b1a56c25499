package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newDexscreener(t *testing.T, handler http.HandlerFunc) *Dexscreener {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDexscreener(DexscreenerOptions{
		TokensURL: srv.URL + "/tokens",
		SearchURL: srv.URL + "/search",
		Timeout:   time.Second,
	}, nil, zerolog.Nop())
}

func searchPayload() map[string]any {
	pair := func(dex, chain, base, quote, price string, liq float64) map[string]any {
		return map[string]any{
			"dexId":      dex,
			"chainId":    chain,
			"baseToken":  map[string]string{"symbol": base},
			"quoteToken": map[string]string{"symbol": quote},
			"priceUsd":   price,
			"liquidity":  map[string]any{"usd": liq},
		}
	}
	return map[string]any{
		"pairs": []map[string]any{
			pair("pancakeswap-v2", "bsc", "ABC", "USDT", "1.10", 50_000),
			pair("pancakeswap-v3", "bsc", "ABC", "USDT", "1.20", 250_000),
			pair("uniswap", "ethereum", "ABC", "USDT", "1.30", 900_000),
			pair("raydium", "solana", "ABC", "USDT", "1.40", 100_000),
			pair("pancakeswap-v3", "bsc", "XYZ", "USDT", "9.99", 999_999),
		},
	}
}

func TestFetchSymbolPricePancake(t *testing.T) {
	d := newDexscreener(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "ABC/USDT" {
			t.Fatalf("搜索词不正确: %q", got)
		}
		_ = json.NewEncoder(w).Encode(searchPayload())
	})

	price, err := d.FetchSymbolPrice(context.Background(), "abc", "usdt", "pancake")
	if err != nil {
		t.Fatalf("FetchSymbolPrice 应成功: %v", err)
	}
	if price == nil || *price != 1.20 {
		t.Fatalf("应选流动性最深的 pancakeswap 池 (1.20): %v", price)
	}
}

func TestFetchSymbolPriceJupiter(t *testing.T) {
	d := newDexscreener(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(searchPayload())
	})

	price, err := d.FetchSymbolPrice(context.Background(), "ABC", "USDT", "jupiter")
	if err != nil {
		t.Fatalf("FetchSymbolPrice 应成功: %v", err)
	}
	if price == nil || *price != 1.40 {
		t.Fatalf("jupiter 应只看 solana 链: %v", price)
	}
}

func TestFetchSymbolPriceMatcha(t *testing.T) {
	d := newDexscreener(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(searchPayload())
	})

	price, err := d.FetchSymbolPrice(context.Background(), "ABC", "USDT", "matcha")
	if err != nil {
		t.Fatalf("FetchSymbolPrice 应成功: %v", err)
	}
	if price == nil || *price != 1.30 {
		t.Fatalf("matcha 应选 ethereum 系链上的池: %v", price)
	}
}

func TestFetchSymbolPriceNoMatch(t *testing.T) {
	d := newDexscreener(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"pairs": []map[string]any{}})
	})

	price, err := d.FetchSymbolPrice(context.Background(), "ABC", "USDT", "pancake")
	if err != nil {
		t.Fatalf("无结果不是错误: %v", err)
	}
	if price != nil {
		t.Fatalf("无匹配池应返回 nil: %v", *price)
	}
}

func TestTokenPoolsParsesNumbers(t *testing.T) {
	d := newDexscreener(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tokens/0xabc" {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pairs": []map[string]any{
				{
					"dexId":      "PancakeSwap-V2",
					"chainId":    "BSC",
					"baseToken":  map[string]string{"symbol": "abc"},
					"quoteToken": map[string]string{"symbol": "usdt"},
					"priceUsd":   "0.5",
					"liquidity":  map[string]any{"usd": 123.45},
				},
				{
					// priceUsd missing entirely; pool still listed.
					"dexId":      "biswap",
					"chainId":    "bsc",
					"baseToken":  map[string]string{"symbol": "ABC"},
					"quoteToken": map[string]string{"symbol": "USDT"},
				},
			},
		})
	})

	pools, err := d.TokenPools(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("TokenPools 应成功: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("应返回 2 个池: %d", len(pools))
	}
	if pools[0].DexID != "pancakeswap-v2" || pools[0].BaseSymbol != "ABC" {
		t.Fatalf("标识应统一大小写: %+v", pools[0])
	}
	if pools[0].PriceUSD != 0.5 || pools[0].Liquidity != 123.45 {
		t.Fatalf("数字解析不正确: %+v", pools[0])
	}
	if pools[1].PriceUSD != 0 {
		t.Fatalf("缺失价格应为 0: %+v", pools[1])
	}
}
