package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptospread/internal/proxy"
)

// JupiterOptions parameterise the Solana quote-engine client.
type JupiterOptions struct {
	OrderURL     string
	USDTMint     string
	USDTDecimals int
	NotionalUSDT decimal.Decimal
	Timeout      time.Duration
}

// Jupiter prices a token by asking the ultra /order endpoint how many tokens
// a fixed USDT notional buys (ExactIn). The fixed-size probe gives a
// comparable spot-ish price without order-book depth.
type Jupiter struct {
	opts    JupiterOptions
	rotator *proxy.Rotator
	logger  zerolog.Logger
}

// NewJupiter constructs the Jupiter client.
func NewJupiter(opts JupiterOptions, rotator *proxy.Rotator, logger zerolog.Logger) *Jupiter {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.OrderURL == "" {
		opts.OrderURL = "https://ultra-api.jup.ag/order"
	}
	if opts.USDTDecimals <= 0 {
		opts.USDTDecimals = 6
	}
	if opts.NotionalUSDT.IsZero() {
		opts.NotionalUSDT = decimal.NewFromInt(100)
	}

	return &Jupiter{
		opts:    opts,
		rotator: rotator,
		logger:  logger.With().Str("component", "jupiter_fetcher").Logger(),
	}
}

type jupiterOrderResponse struct {
	OutAmount string `json:"outAmount"`
}

// FetchJupiterPrice returns the USDT price of one token unit, or (nil, nil)
// when the quote yields no usable amount.
func (j *Jupiter) FetchJupiterPrice(ctx context.Context, mint string, decimals int) (*float64, error) {
	mint = strings.TrimSpace(mint)
	if mint == "" || decimals < 0 {
		return nil, fmt.Errorf("jupiter: mint and non-negative decimals required")
	}

	// Raw USDT amount for the probe: notional * 10^usdtDecimals, exact.
	sellRaw := j.opts.NotionalUSDT.Shift(int32(j.opts.USDTDecimals)).Round(0)
	if sellRaw.IsZero() {
		return nil, fmt.Errorf("jupiter: notional rounded to zero")
	}

	params := url.Values{}
	params.Set("inputMint", j.opts.USDTMint)
	params.Set("outputMint", mint)
	params.Set("amount", sellRaw.StringFixed(0))
	params.Set("swapMode", "ExactIn")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.opts.OrderURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	client, route := j.rotator.Client(j.opts.Timeout)
	resp, err := client.Do(req)
	if err != nil {
		j.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("jupiter order %s: %w", mint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		j.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("jupiter order %s: read body: %w", mint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter order %s: HTTP %d: %s", mint, resp.StatusCode, trimBody(payload))
	}

	var or jupiterOrderResponse
	if err := json.Unmarshal(payload, &or); err != nil {
		return nil, fmt.Errorf("jupiter order %s: %w", mint, err)
	}
	if or.OutAmount == "" {
		return nil, fmt.Errorf("jupiter order %s: no outAmount", mint)
	}

	outRaw, err := decimal.NewFromString(or.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("jupiter order %s: bad outAmount %q: %w", mint, or.OutAmount, err)
	}
	if outRaw.Sign() <= 0 {
		return nil, nil
	}

	tokenAmount := outRaw.Shift(-int32(decimals))
	if tokenAmount.Sign() <= 0 {
		return nil, nil
	}

	price := j.opts.NotionalUSDT.Div(tokenAmount).InexactFloat64()
	j.logger.Debug().
		Str("mint", mint).
		Float64("price", price).
		Msg("jupiter price fetched")
	return &price, nil
}

var _ JupiterPriceFetcher = (*Jupiter)(nil)
