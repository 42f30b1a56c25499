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

	"cryptospread/internal/proxy"
)

// DexscreenerOptions parameterise the aggregator lookup client.
type DexscreenerOptions struct {
	TokensURL string
	SearchURL string
	Timeout   time.Duration
}

// Dexscreener queries the DexScreener aggregator, both by token address and
// by symbol search. It also implements the legacy symbol-only price path.
type Dexscreener struct {
	opts    DexscreenerOptions
	rotator *proxy.Rotator
	logger  zerolog.Logger
}

// NewDexscreener constructs the aggregator client.
func NewDexscreener(opts DexscreenerOptions, rotator *proxy.Rotator, logger zerolog.Logger) *Dexscreener {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TokensURL == "" {
		opts.TokensURL = "https://api.dexscreener.com/latest/dex/tokens"
	}
	if opts.SearchURL == "" {
		opts.SearchURL = "https://api.dexscreener.com/latest/dex/search"
	}

	return &Dexscreener{
		opts:    opts,
		rotator: rotator,
		logger:  logger.With().Str("component", "dexscreener_fetcher").Logger(),
	}
}

// Pool is one aggregator market entry, reduced to the fields the pickers
// need.
type Pool struct {
	DexID       string
	ChainID     string
	BaseSymbol  string
	QuoteSymbol string
	PriceUSD    float64
	Liquidity   float64
}

type dsToken struct {
	Symbol string `json:"symbol"`
}

type dsLiquidity struct {
	USD json.Number `json:"usd"`
}

type dsPair struct {
	DexID      string       `json:"dexId"`
	ChainID    string       `json:"chainId"`
	BaseToken  dsToken      `json:"baseToken"`
	QuoteToken dsToken      `json:"quoteToken"`
	PriceUSD   *json.Number `json:"priceUsd"`
	Liquidity  *dsLiquidity `json:"liquidity"`
}

type dsResponse struct {
	Pairs []dsPair `json:"pairs"`
}

// TokenPools lists pools holding the given token address.
func (d *Dexscreener) TokenPools(ctx context.Context, address string) ([]Pool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("dexscreener: token address required")
	}
	endpoint := strings.TrimRight(d.opts.TokensURL, "/") + "/" + url.PathEscape(address)
	return d.fetchPools(ctx, endpoint, address)
}

// SearchPools searches pools by "BASE/QUOTE" symbol query.
func (d *Dexscreener) SearchPools(ctx context.Context, base, quote string) ([]Pool, error) {
	q := strings.ToUpper(base) + "/" + strings.ToUpper(quote)
	endpoint := d.opts.SearchURL + "?q=" + url.QueryEscape(q)
	return d.fetchPools(ctx, endpoint, q)
}

func (d *Dexscreener) fetchPools(ctx context.Context, endpoint, subject string) ([]Pool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	client, route := d.rotator.Client(d.opts.Timeout)
	resp, err := client.Do(req)
	if err != nil {
		d.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("dexscreener %s: %w", subject, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		d.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("dexscreener %s: read body: %w", subject, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener %s: HTTP %d: %s", subject, resp.StatusCode, trimBody(payload))
	}

	var dr dsResponse
	if err := json.Unmarshal(payload, &dr); err != nil {
		return nil, fmt.Errorf("dexscreener %s: %w", subject, err)
	}

	pools := make([]Pool, 0, len(dr.Pairs))
	for _, p := range dr.Pairs {
		pool := Pool{
			DexID:       strings.ToLower(p.DexID),
			ChainID:     strings.ToLower(p.ChainID),
			BaseSymbol:  strings.ToUpper(p.BaseToken.Symbol),
			QuoteSymbol: strings.ToUpper(p.QuoteToken.Symbol),
		}
		if p.PriceUSD != nil {
			if v, err := strconv.ParseFloat(p.PriceUSD.String(), 64); err == nil {
				pool.PriceUSD = v
			}
		}
		if p.Liquidity != nil {
			if v, err := strconv.ParseFloat(p.Liquidity.USD.String(), 64); err == nil {
				pool.Liquidity = v
			}
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// FetchSymbolPrice implements the legacy symbol-only lookup: search pools by
// symbol and pick the deepest one matching the venue's chain/dex family.
func (d *Dexscreener) FetchSymbolPrice(ctx context.Context, base, quote, venue string) (*float64, error) {
	pools, err := d.SearchPools(ctx, base, quote)
	if err != nil {
		return nil, err
	}
	return pickPriceForVenue(pools, base, quote, venue), nil
}

// pickPriceForVenue filters search results to the venue's family and returns
// the price of the most liquid candidate, or nil.
func pickPriceForVenue(pools []Pool, base, quote, venue string) *float64 {
	baseU := strings.ToUpper(base)
	quoteU := strings.ToUpper(quote)

	var best *Pool
	for i := range pools {
		p := &pools[i]
		if p.BaseSymbol != baseU {
			continue
		}
		if quoteU != "" && p.QuoteSymbol != quoteU {
			continue
		}

		switch venue {
		case "pancake":
			if !strings.HasPrefix(p.DexID, "pancakeswap") {
				continue
			}
		case "jupiter":
			if p.ChainID != "solana" {
				continue
			}
		case "matcha":
			switch p.ChainID {
			case "ethereum", "arbitrum", "optimism", "polygon":
			default:
				continue
			}
		}

		if p.PriceUSD <= 0 {
			continue
		}
		if best == nil || p.Liquidity > best.Liquidity {
			best = p
		}
	}

	if best == nil {
		return nil
	}
	price := best.PriceUSD
	return &price
}

var _ SymbolPriceFetcher = (*Dexscreener)(nil)
