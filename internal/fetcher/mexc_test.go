package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func intptr(v int) *int { return &v }

func newMexcServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Mexc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m := NewMexc(MexcOptions{BaseURL: srv.URL, Timeout: time.Second}, nil, zerolog.Nop())
	return srv, m
}

func TestMexcFetchBookRoundsToScale(t *testing.T) {
	_, m := newMexcServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "ABC_USDT" {
			t.Fatalf("symbol 参数不正确: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"code":    0,
			"data":    map[string]any{"symbol": "ABC_USDT", "bid1": 1.23456, "ask1": 1.23789},
		})
	})

	book, err := m.FetchBook(context.Background(), "abc", "usdt", intptr(2))
	if err != nil {
		t.Fatalf("FetchBook 应成功: %v", err)
	}
	if book.Bid == nil || *book.Bid != 1.23 {
		t.Fatalf("bid 应按小数位四舍五入为 1.23: %v", book.Bid)
	}
	if book.Ask == nil || *book.Ask != 1.24 {
		t.Fatalf("ask 应按小数位四舍五入为 1.24: %v", book.Ask)
	}
}

func TestMexcFetchBookNoScale(t *testing.T) {
	_, m := newMexcServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"code":    0,
			"data":    map[string]any{"bid1": 1.23456, "ask1": 1.23789},
		})
	})

	book, err := m.FetchBook(context.Background(), "ABC", "USDT", nil)
	if err != nil {
		t.Fatalf("FetchBook 应成功: %v", err)
	}
	if *book.Bid != 1.23456 || *book.Ask != 1.23789 {
		t.Fatalf("无 scale 时不应改动价格: %v/%v", *book.Bid, *book.Ask)
	}
}

func TestMexcFetchBookMissingSides(t *testing.T) {
	_, m := newMexcServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"code":    0,
			"data":    map[string]any{"lastPrice": 5.0},
		})
	})

	book, err := m.FetchBook(context.Background(), "ABC", "USDT", intptr(2))
	if err != nil {
		t.Fatalf("缺少盘口不是错误: %v", err)
	}
	if book.Bid != nil || book.Ask != nil {
		t.Fatalf("缺少盘口时 bid/ask 应为 nil: %+v", book)
	}
}

func TestMexcContractNotFound(t *testing.T) {
	_, m := newMexcServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"code":    1001,
			"message": "contract not exists",
		})
	})

	err := m.ContractExists(context.Background(), "NOPE", "USDT")
	if !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("code 1001 应映射为 ErrContractNotFound: %v", err)
	}
}

func TestMexcTickerErrorPaths(t *testing.T) {
	_, m := newMexcServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("oops"))
	})
	if _, err := m.FetchBook(context.Background(), "ABC", "USDT", nil); err == nil {
		t.Fatal("非 200 响应应报错")
	} else if !strings.Contains(err.Error(), "HTTP 502") {
		t.Fatalf("错误应包含状态码: %v", err)
	}

	_, m = newMexcServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 9999, "message": "rate limited"})
	})
	if _, err := m.FetchBook(context.Background(), "ABC", "USDT", nil); err == nil {
		t.Fatal("业务失败应报错")
	} else if errors.Is(err, ErrContractNotFound) {
		t.Fatalf("非 1001 不应映射为 ErrContractNotFound: %v", err)
	}
}

func TestMexcTicker24h(t *testing.T) {
	_, m := newMexcServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"code":    0,
			"data":    map[string]any{"lastPrice": 2.5, "amount24": 1000000.0},
		})
	})

	last, amount, err := m.Ticker24h(context.Background(), "ABC", "USDT")
	if err != nil {
		t.Fatalf("Ticker24h 应成功: %v", err)
	}
	if last == nil || *last != 2.5 || amount == nil || *amount != 1000000.0 {
		t.Fatalf("Ticker24h 数据不正确: %v %v", last, amount)
	}
}
