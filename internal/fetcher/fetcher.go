package fetcher

import (
	"context"
)

// BookQuote is the centralized venue's best bid/ask. A nil side means no
// usable price this tick; that alone is not an error.
type BookQuote struct {
	Bid *float64
	Ask *float64
}

// BookFetcher retrieves the centralized futures order-book top for a pair.
// priceScale, when set, is the number of decimal places bid/ask are rounded
// to (never a divisor).
type BookFetcher interface {
	FetchBook(ctx context.Context, base, quote string, priceScale *int) (BookQuote, error)
}

// PancakePriceFetcher retrieves a BSC token price in USDT by contract
// address. A nil price with a nil error means no suitable pool exists.
type PancakePriceFetcher interface {
	FetchPancakePrice(ctx context.Context, address string) (*float64, error)
}

// JupiterPriceFetcher retrieves a Solana token price in USDT by mint via a
// fixed-notional ExactIn quote probe.
type JupiterPriceFetcher interface {
	FetchJupiterPrice(ctx context.Context, mint string, decimals int) (*float64, error)
}

// MatchaPriceFetcher retrieves a token price in USDT via the 0x gasless
// price endpoint, again as a fixed-notional probe.
type MatchaPriceFetcher interface {
	FetchMatchaPrice(ctx context.Context, address string, decimals int) (*float64, error)
}

// SymbolPriceFetcher resolves a venue price purely by symbol, for pairs
// configured without any venue addresses (legacy mode).
type SymbolPriceFetcher interface {
	FetchSymbolPrice(ctx context.Context, base, quote, venue string) (*float64, error)
}
