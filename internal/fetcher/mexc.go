package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cryptospread/internal/proxy"
)

const mexcContractNotFoundCode = 1001

// ErrContractNotFound indicates the futures contract is not listed on MEXC.
var ErrContractNotFound = errors.New("mexc: contract not found")

// MexcOptions parameterise the centralized venue client.
type MexcOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Mexc fetches the futures contract ticker from MEXC.
type Mexc struct {
	opts    MexcOptions
	rotator *proxy.Rotator
	logger  zerolog.Logger
	baseURL string
}

// NewMexc constructs the MEXC client. rotator may be nil (direct egress).
func NewMexc(opts MexcOptions, rotator *proxy.Rotator, logger zerolog.Logger) *Mexc {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://contract.mexc.com"
	}

	return &Mexc{
		opts:    opts,
		rotator: rotator,
		logger:  logger.With().Str("component", "mexc_fetcher").Logger(),
		baseURL: baseURL,
	}
}

type contractTickerData struct {
	Symbol    string   `json:"symbol"`
	Bid1      *float64 `json:"bid1"`
	Ask1      *float64 `json:"ask1"`
	LastPrice *float64 `json:"lastPrice"`
	Amount24  *float64 `json:"amount24"`
}

type contractTickerResponse struct {
	Success bool                `json:"success"`
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Data    *contractTickerData `json:"data"`
}

// FetchBook retrieves best bid/ask for BASE_QUOTE. priceScale rounds to that
// many decimal places; MEXC's priceScale is a digit count, not a multiplier,
// so the value is never divided by 10^scale.
func (m *Mexc) FetchBook(ctx context.Context, base, quote string, priceScale *int) (BookQuote, error) {
	data, err := m.ticker(ctx, base, quote)
	if err != nil {
		return BookQuote{}, err
	}

	q := BookQuote{Bid: data.Bid1, Ask: data.Ask1}
	if priceScale != nil && *priceScale >= 0 {
		q.Bid = roundPlaces(q.Bid, *priceScale)
		q.Ask = roundPlaces(q.Ask, *priceScale)
	}

	m.logger.Debug().
		Str("symbol", contractSymbol(base, quote)).
		Interface("bid", q.Bid).
		Interface("ask", q.Ask).
		Msg("mexc book fetched")
	return q, nil
}

// Ticker24h returns last price and 24h quote turnover for the market lookup.
func (m *Mexc) Ticker24h(ctx context.Context, base, quote string) (lastPrice, amount24 *float64, err error) {
	data, err := m.ticker(ctx, base, quote)
	if err != nil {
		return nil, nil, err
	}
	return data.LastPrice, data.Amount24, nil
}

// ContractExists probes the ticker endpoint for a pair. MEXC answers code
// 1001 for unknown contracts.
func (m *Mexc) ContractExists(ctx context.Context, base, quote string) error {
	_, err := m.ticker(ctx, base, quote)
	return err
}

func (m *Mexc) ticker(ctx context.Context, base, quote string) (*contractTickerData, error) {
	symbol := contractSymbol(base, quote)
	endpoint := fmt.Sprintf("%s/api/v1/contract/ticker?symbol=%s", m.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	client, route := m.rotator.Client(m.opts.Timeout)
	resp, err := client.Do(req)
	if err != nil {
		m.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("mexc ticker %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		m.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("mexc ticker %s: read body: %w", symbol, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mexc ticker %s: HTTP %d: %s", symbol, resp.StatusCode, trimBody(payload))
	}

	var tr contractTickerResponse
	if err := json.Unmarshal(payload, &tr); err != nil {
		return nil, fmt.Errorf("mexc ticker %s: %w", symbol, err)
	}

	if !tr.Success || tr.Code != 0 || tr.Data == nil {
		if tr.Code == mexcContractNotFoundCode {
			return nil, fmt.Errorf("%w: %s", ErrContractNotFound, symbol)
		}
		return nil, fmt.Errorf("mexc ticker %s: code=%d msg=%s", symbol, tr.Code, tr.Message)
	}

	return tr.Data, nil
}

func contractSymbol(base, quote string) string {
	if quote == "" {
		quote = "USDT"
	}
	return strings.ToUpper(base) + "_" + strings.ToUpper(quote)
}

func roundPlaces(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	pow := math.Pow10(places)
	r := math.Round(*v*pow) / pow
	return &r
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

var _ BookFetcher = (*Mexc)(nil)
