package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptospread/internal/proxy"
)

// MatchaOptions parameterise the 0x gasless price client.
type MatchaOptions struct {
	PriceURL     string
	ChainID      int
	USDTAddress  string
	USDTDecimals int
	NotionalUSDT decimal.Decimal
	Timeout      time.Duration
}

// Matcha prices a token through the 0x gasless /price endpoint, spending a
// fixed USDT notional (sell side) and reading how many tokens come back.
type Matcha struct {
	opts    MatchaOptions
	rotator *proxy.Rotator
	logger  zerolog.Logger
}

// NewMatcha constructs the 0x gasless client.
func NewMatcha(opts MatchaOptions, rotator *proxy.Rotator, logger zerolog.Logger) *Matcha {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PriceURL == "" {
		opts.PriceURL = "https://matcha.xyz/api/gasless/price"
	}
	if opts.ChainID == 0 {
		opts.ChainID = 8453
	}
	if opts.USDTDecimals <= 0 {
		opts.USDTDecimals = 6
	}
	if opts.NotionalUSDT.IsZero() {
		opts.NotionalUSDT = decimal.NewFromInt(100)
	}

	return &Matcha{
		opts:    opts,
		rotator: rotator,
		logger:  logger.With().Str("component", "matcha_fetcher").Logger(),
	}
}

type matchaPriceResponse struct {
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
}

// FetchMatchaPrice returns the USDT price of one token unit, or (nil, nil)
// when the quote yields no usable amounts.
func (m *Matcha) FetchMatchaPrice(ctx context.Context, address string, decimals int) (*float64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("matcha: token address required")
	}
	if decimals < 0 {
		return nil, fmt.Errorf("matcha: negative decimals")
	}

	sellRaw := m.opts.NotionalUSDT.Shift(int32(m.opts.USDTDecimals)).Round(0)
	if sellRaw.IsZero() {
		return nil, fmt.Errorf("matcha: notional rounded to zero")
	}

	params := url.Values{}
	params.Set("chainId", strconv.Itoa(m.opts.ChainID))
	params.Set("sellToken", m.opts.USDTAddress)
	params.Set("buyToken", address)
	params.Set("sellAmount", sellRaw.StringFixed(0))
	params.Set("useIntents", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.PriceURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req)

	client, route := m.rotator.Client(m.opts.Timeout)
	resp, err := client.Do(req)
	if err != nil {
		m.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("matcha price %s: %w", address, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		m.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("matcha price %s: read body: %w", address, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("matcha price %s: HTTP %d: %s", address, resp.StatusCode, trimBody(payload))
	}

	var pr matchaPriceResponse
	if err := json.Unmarshal(payload, &pr); err != nil {
		return nil, fmt.Errorf("matcha price %s: %w", address, err)
	}
	if pr.SellAmount == "" || pr.BuyAmount == "" {
		return nil, fmt.Errorf("matcha price %s: missing sellAmount/buyAmount", address)
	}

	sellAmt, err := decimal.NewFromString(pr.SellAmount)
	if err != nil {
		return nil, fmt.Errorf("matcha price %s: bad sellAmount: %w", address, err)
	}
	buyAmt, err := decimal.NewFromString(pr.BuyAmount)
	if err != nil {
		return nil, fmt.Errorf("matcha price %s: bad buyAmount: %w", address, err)
	}
	if sellAmt.Sign() <= 0 || buyAmt.Sign() <= 0 {
		return nil, nil
	}

	tokenAmount := buyAmt.Shift(-int32(decimals))
	if tokenAmount.Sign() <= 0 {
		return nil, nil
	}

	price := m.opts.NotionalUSDT.Div(tokenAmount).InexactFloat64()
	m.logger.Debug().
		Str("address", address).
		Float64("price", price).
		Msg("matcha price fetched")
	return &price, nil
}

// setBrowserHeaders mimics a desktop browser; the endpoint rejects bare
// clients.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Origin", "https://matcha.xyz")
	req.Header.Set("Referer", "https://matcha.xyz/")
}

var _ MatchaPriceFetcher = (*Matcha)(nil)
