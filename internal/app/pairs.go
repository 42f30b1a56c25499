package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"cryptospread/internal/fetcher"
	"cryptospread/internal/pairs"
)

// AddPairOptions describe a pair to watch. Venue legs are optional; a pair
// with no legs falls back to symbol search on every venue.
type AddPairOptions struct {
	Base             string
	Quote            string
	PancakeAddress   string
	JupiterMint      string
	JupiterDecimals  int
	MatchaAddress    string
	MatchaDecimals   int
	PriceScale       *int
	DirectThreshold  *float64
	ReverseThreshold *float64
	Favorite         bool
}

// AddPair validates the pair against the centralized venue and stores it.
// The CoinGecko id is resolved best effort; failure to resolve never blocks
// the add.
func (a *App) AddPair(ctx context.Context, opts AddPairOptions) error {
	comps, err := a.buildComponents()
	if err != nil {
		return err
	}

	p := pairs.New(strings.ToUpper(opts.Base), strings.ToUpper(opts.Quote))
	if opts.PancakeAddress != "" {
		p.Pancake = &pairs.PancakeLeg{Address: opts.PancakeAddress}
	}
	if opts.JupiterMint != "" {
		p.Jupiter = &pairs.JupiterLeg{Mint: opts.JupiterMint, Decimals: opts.JupiterDecimals}
	}
	if opts.MatchaAddress != "" {
		p.Matcha = &pairs.MatchaLeg{Address: opts.MatchaAddress, Decimals: opts.MatchaDecimals}
	}
	p.PriceScale = opts.PriceScale
	p.DirectThreshold = opts.DirectThreshold
	p.ReverseThreshold = opts.ReverseThreshold

	if err := comps.registry.Add(ctx, p); err != nil {
		if errors.Is(err, fetcher.ErrContractNotFound) {
			return fmt.Errorf("%s_%s 合约不存在: %w", p.Base, p.Quote, err)
		}
		return err
	}
	if opts.Favorite {
		comps.registry.SetFavorite(p.Name, true)
	}

	if id := comps.coingecko.ResolveID(ctx, p.Base); id != "" {
		comps.registry.SetCoingeckoID(p.Name, id)
	}

	a.Logger.Info().Str("pair", p.Name).Msg("pair added")
	return nil
}

// UpdatePairOptions carry partial edits to an existing pair. Nil fields are
// left untouched; setting a venue leg replaces that leg.
type UpdatePairOptions struct {
	Name             string
	PancakeAddress   *string
	JupiterMint      *string
	JupiterDecimals  *int
	MatchaAddress    *string
	MatchaDecimals   *int
	PriceScale       *int
	DirectThreshold  *float64
	ReverseThreshold *float64
	AlertDirect      *bool
	AlertReverse     *bool
}

// UpdatePair edits an existing pair in place and persists the registry.
func (a *App) UpdatePair(ctx context.Context, opts UpdatePairOptions) error {
	_ = ctx

	comps, err := a.buildComponents()
	if err != nil {
		return err
	}
	name := strings.ToUpper(opts.Name)
	p, ok := comps.registry.Get(name)
	if !ok {
		return fmt.Errorf("pair %s not found", name)
	}

	if opts.PancakeAddress != nil {
		p.Pancake = &pairs.PancakeLeg{Address: *opts.PancakeAddress}
	}
	if opts.JupiterMint != nil {
		leg := &pairs.JupiterLeg{Mint: *opts.JupiterMint}
		if p.Jupiter != nil {
			leg.Decimals = p.Jupiter.Decimals
		}
		p.Jupiter = leg
	}
	if opts.JupiterDecimals != nil {
		if p.Jupiter == nil {
			return fmt.Errorf("pair %s: jupiter decimals set without a mint", name)
		}
		p.Jupiter.Decimals = *opts.JupiterDecimals
	}
	if opts.MatchaAddress != nil {
		leg := &pairs.MatchaLeg{Address: *opts.MatchaAddress}
		if p.Matcha != nil {
			leg.Decimals = p.Matcha.Decimals
		}
		p.Matcha = leg
	}
	if opts.MatchaDecimals != nil {
		if p.Matcha == nil {
			return fmt.Errorf("pair %s: matcha decimals set without an address", name)
		}
		p.Matcha.Decimals = *opts.MatchaDecimals
	}
	if opts.PriceScale != nil {
		p.PriceScale = opts.PriceScale
	}
	if opts.DirectThreshold != nil {
		p.DirectThreshold = opts.DirectThreshold
	}
	if opts.ReverseThreshold != nil {
		p.ReverseThreshold = opts.ReverseThreshold
	}
	if opts.AlertDirect != nil {
		p.AlertDirect = *opts.AlertDirect
	}
	if opts.AlertReverse != nil {
		p.AlertReverse = *opts.AlertReverse
	}

	if err := comps.registry.Update(p); err != nil {
		return err
	}
	a.Logger.Info().Str("pair", name).Msg("pair updated")
	return nil
}

// RemovePair drops a pair from the registry.
func (a *App) RemovePair(name string) error {
	comps, err := a.buildComponents()
	if err != nil {
		return err
	}
	name = strings.ToUpper(name)
	if _, ok := comps.registry.Get(name); !ok {
		return fmt.Errorf("pair %s not found", name)
	}
	comps.registry.Remove(name)
	a.Logger.Info().Str("pair", name).Msg("pair removed")
	return nil
}

// SetFavorite toggles the favorite flag for a pair.
func (a *App) SetFavorite(name string, fav bool) error {
	comps, err := a.buildComponents()
	if err != nil {
		return err
	}
	name = strings.ToUpper(name)
	if _, ok := comps.registry.Get(name); !ok {
		return fmt.Errorf("pair %s not found", name)
	}
	comps.registry.SetFavorite(name, fav)
	return nil
}

// ListPairsOptions tune the pair listing.
type ListPairsOptions struct {
	// WithMarketCap fetches the CoinGecko market cap and the 24h futures
	// turnover per pair.
	WithMarketCap bool
}

// ListPairs prints the configured pairs.
func (a *App) ListPairs(ctx context.Context, opts ListPairsOptions) error {
	comps, err := a.buildComponents()
	if err != nil {
		return err
	}

	watched := comps.registry.Snapshot()
	if len(watched) == 0 {
		fmt.Fprintln(os.Stdout, "no pairs configured")
		return nil
	}

	favorites := make(map[string]struct{})
	for _, name := range comps.registry.Favorites() {
		favorites[name] = struct{}{}
	}

	names := make([]string, 0, len(watched))
	for name := range watched {
		names = append(names, name)
	}
	sort.Strings(names)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := "Pair\tFav\tVenues\tScale\tDirect Thr\tReverse Thr"
	if opts.WithMarketCap {
		header += "\tMarket Cap\tVol 24h"
	}
	fmt.Fprintln(writer, header)

	for _, name := range names {
		p := watched[name]
		fav := ""
		if _, ok := favorites[name]; ok {
			fav = "*"
		}
		venues := make([]string, 0, 3)
		for _, v := range p.EnabledVenues() {
			venues = append(venues, string(v))
		}
		scale := "-"
		if p.PriceScale != nil {
			scale = fmt.Sprintf("%d", *p.PriceScale)
		}
		directThr, reverseThr := p.ResolveThresholds()

		row := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
			name, fav, strings.Join(venues, ","), scale,
			formatThreshold(directThr), formatThreshold(reverseThr))

		if opts.WithMarketCap {
			row += "\t" + a.marketCapCell(ctx, comps, p)
			row += "\t" + a.volumeCell(ctx, comps, p)
		}
		fmt.Fprintln(writer, row)
	}
	return writer.Flush()
}

func (a *App) marketCapCell(ctx context.Context, comps *components, p pairs.Pair) string {
	id := p.CoingeckoID
	if id == "" {
		id = comps.coingecko.ResolveID(ctx, p.Base)
		if id != "" {
			comps.registry.SetCoingeckoID(p.Name, id)
		}
	}
	if id == "" {
		return "-"
	}
	mcap, err := comps.coingecko.MarketCap(ctx, id)
	if err != nil || mcap == nil {
		return "-"
	}
	return formatMarketCap(*mcap)
}

func (a *App) volumeCell(ctx context.Context, comps *components, p pairs.Pair) string {
	_, amount24, err := comps.mexc.Ticker24h(ctx, p.Base, p.Quote)
	if err != nil || amount24 == nil {
		return "-"
	}
	return formatMarketCap(*amount24)
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func formatMarketCap(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
