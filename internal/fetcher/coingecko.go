package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cryptospread/internal/proxy"
)

// CoingeckoOptions parameterise the market-cap lookup.
type CoingeckoOptions struct {
	BaseURL string
	Timeout time.Duration
}

// Coingecko resolves coin ids by symbol and fetches market caps. The full
// coins list is loaded once per process and the symbol index is cached; both
// caches live on the instance, not in package state.
type Coingecko struct {
	opts    CoingeckoOptions
	rotator *proxy.Rotator
	logger  zerolog.Logger

	mu          sync.Mutex
	coins       []coingeckoCoin
	listLoaded  bool
	symbolIndex map[string]string
}

type coingeckoCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// NewCoingecko constructs the CoinGecko client.
func NewCoingecko(opts CoingeckoOptions, rotator *proxy.Rotator, logger zerolog.Logger) *Coingecko {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.coingecko.com/api/v3"
	}

	return &Coingecko{
		opts:        opts,
		rotator:     rotator,
		logger:      logger.With().Str("component", "coingecko_fetcher").Logger(),
		symbolIndex: make(map[string]string),
	}
}

// ResolveID picks the most plausible coin id for a ticker symbol
// (SOL -> solana, API3 -> api3). Returns "" when nothing matches.
func (c *Coingecko) ResolveID(ctx context.Context, symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ""
	}

	c.mu.Lock()
	if id, ok := c.symbolIndex[symbol]; ok {
		c.mu.Unlock()
		return id
	}
	c.mu.Unlock()

	coins := c.coinsList(ctx)
	if len(coins) == 0 {
		return ""
	}

	id := pickCoinID(coins, symbol)
	if id != "" {
		c.mu.Lock()
		c.symbolIndex[symbol] = id
		c.mu.Unlock()
		c.logger.Info().Str("symbol", symbol).Str("id", id).Msg("coingecko id resolved")
	} else {
		c.logger.Warn().Str("symbol", symbol).Msg("no coingecko id for symbol")
	}
	return id
}

// MarketCap fetches the USD market cap for a coin id. Nil when unavailable.
func (c *Coingecko) MarketCap(ctx context.Context, id string) (*float64, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("coingecko: coin id required")
	}

	endpoint := fmt.Sprintf("%s/coins/markets?vs_currency=usd&ids=%s",
		strings.TrimRight(c.opts.BaseURL, "/"), url.QueryEscape(id))

	payload, err := c.get(ctx, endpoint, id)
	if err != nil {
		return nil, err
	}

	var items []struct {
		MarketCap *float64 `json:"market_cap"`
	}
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("coingecko markets %s: %w", id, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0].MarketCap, nil
}

// coinsList loads the full coin catalogue once. An error leaves the list
// empty but marks it loaded so every tick does not retry a dead endpoint.
func (c *Coingecko) coinsList(ctx context.Context) []coingeckoCoin {
	c.mu.Lock()
	if c.listLoaded {
		defer c.mu.Unlock()
		return c.coins
	}
	c.mu.Unlock()

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + "/coins/list"
	payload, err := c.get(ctx, endpoint, "coins list")

	var coins []coingeckoCoin
	if err != nil {
		c.logger.Error().Err(err).Msg("coingecko list failed")
	} else if err := json.Unmarshal(payload, &coins); err != nil {
		c.logger.Error().Err(err).Msg("coingecko list malformed")
		coins = nil
	} else {
		c.logger.Info().Int("coins", len(coins)).Msg("coingecko list loaded")
	}

	c.mu.Lock()
	c.coins = coins
	c.listLoaded = true
	c.mu.Unlock()
	return coins
}

func (c *Coingecko) get(ctx context.Context, endpoint, subject string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	client, route := c.rotator.Client(c.opts.Timeout)
	resp, err := client.Do(req)
	if err != nil {
		c.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("coingecko %s: %w", subject, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.rotator.ReportFailure(route, err.Error())
		return nil, fmt.Errorf("coingecko %s: read body: %w", subject, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko %s: HTTP %d: %s", subject, resp.StatusCode, trimBody(payload))
	}
	return payload, nil
}

// pickCoinID scores candidates sharing the symbol: an id equal to the
// lower-cased symbol is near-certain, names matching or prefixed help,
// wrapped/bridged/staked variants are penalised, shorter ids win ties.
func pickCoinID(coins []coingeckoCoin, symbol string) string {
	symLower := strings.ToLower(symbol)

	badWords := []string{
		"wrapped", "bridge", "bridged", "staked",
		"wormhole", "peg", "binance", "binance-peg",
		"weth", "leveraged", "bull", "bear",
	}

	bestID := ""
	bestScore := 0.0
	haveBest := false

	for _, coin := range coins {
		if !strings.EqualFold(coin.Symbol, symbol) {
			continue
		}

		idLower := strings.ToLower(coin.ID)
		nameLower := strings.ToLower(coin.Name)

		score := 0.0
		if idLower == symLower {
			score += 100.0
		}
		if nameLower == symLower {
			score += 50.0
		}
		if strings.HasPrefix(nameLower, symLower) {
			score += 25.0
		}
		if !strings.ContainsAny(coin.ID, "- ") {
			score += 10.0
		}
		for _, w := range badWords {
			if strings.Contains(idLower, w) || strings.Contains(nameLower, w) {
				score -= 30.0
				break
			}
		}
		score -= float64(len(coin.ID)) * 0.01

		if !haveBest || score > bestScore {
			haveBest = true
			bestScore = score
			bestID = coin.ID
		}
	}

	return bestID
}
