package fetcher

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	routerABIJSON = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`
	erc20ABIJSON  = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}]`

	// BSC USDT carries 18 decimals, unlike most USDT deployments.
	bscUSDTDecimals = 18

	// Pools pricing a token above this are treated as junk data.
	maxSanePriceUSD = 1_000_000
)

var (
	routerABI abi.ABI
	erc20ABI  abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic("failed to parse router ABI: " + err.Error())
	}
	routerABI = parsed

	parsed, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// PancakeOptions parameterise the BSC price lookup.
type PancakeOptions struct {
	// On-chain router fallback; disabled when RPCURL is empty.
	RPCURL        string
	RouterAddress string
	USDTAddress   string
	NotionalUSDT  decimal.Decimal
	Timeout       time.Duration
}

// Pancake prices a BSC token in USDT. The primary path asks DexScreener for
// the token's pools, preferring PancakeSwap ones by liquidity; when no
// usable pool exists and an RPC endpoint is configured, it falls back to the
// router's getAmountsOut with the fixed USDT notional.
type Pancake struct {
	opts   PancakeOptions
	ds     *Dexscreener
	logger zerolog.Logger

	clientMux sync.Mutex
	client    *ethclient.Client

	decimalsMux   sync.Mutex
	decimalsCache map[string]int
}

// NewPancake constructs the BSC price client.
func NewPancake(opts PancakeOptions, ds *Dexscreener, logger zerolog.Logger) *Pancake {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.NotionalUSDT.IsZero() {
		opts.NotionalUSDT = decimal.NewFromInt(100)
	}

	return &Pancake{
		opts:          opts,
		ds:            ds,
		logger:        logger.With().Str("component", "pancake_fetcher").Logger(),
		decimalsCache: make(map[string]int),
	}
}

// FetchPancakePrice returns the USDT price of one token unit, or (nil, nil)
// when no pool carries usable data and no fallback is available.
func (p *Pancake) FetchPancakePrice(ctx context.Context, address string) (*float64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("pancake: token address required")
	}

	pools, err := p.ds.TokenPools(ctx, address)
	if err != nil {
		p.logger.Warn().Err(err).Str("address", address).Msg("dexscreener lookup failed")
	} else if price := pickPancakePool(pools); price != nil {
		return price, nil
	}

	if p.opts.RPCURL == "" {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	price, chainErr := p.routerPrice(ctx, address)
	if chainErr != nil {
		if err != nil {
			return nil, err
		}
		return nil, chainErr
	}
	return price, nil
}

// pickPancakePool chooses the deepest PancakeSwap pool; failing that, the
// deepest pool on any dex. Pools with no liquidity or implausible prices are
// discarded.
func pickPancakePool(pools []Pool) *float64 {
	var bestPancake *Pool
	var bestAny *Pool

	for i := range pools {
		pool := &pools[i]
		if pool.PriceUSD <= 0 || pool.PriceUSD > maxSanePriceUSD {
			continue
		}
		if pool.Liquidity <= 0 {
			continue
		}

		if strings.Contains(pool.DexID, "pancake") {
			if bestPancake == nil || pool.Liquidity > bestPancake.Liquidity {
				bestPancake = pool
			}
		}
		if bestAny == nil || pool.Liquidity > bestAny.Liquidity {
			bestAny = pool
		}
	}

	best := bestPancake
	if best == nil {
		best = bestAny
	}
	if best == nil {
		return nil
	}
	price := best.PriceUSD
	return &price
}

// routerPrice quotes the fixed notional through getAmountsOut on the
// PancakeSwap router: path [USDT, token], price = notional / tokensOut.
func (p *Pancake) routerPrice(ctx context.Context, address string) (*float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	tokenAddr := common.HexToAddress(address)
	usdtAddr := common.HexToAddress(p.opts.USDTAddress)
	routerAddr := common.HexToAddress(p.opts.RouterAddress)

	dec, err := p.tokenDecimals(ctx, client, tokenAddr)
	if err != nil {
		return nil, err
	}

	amountIn := p.opts.NotionalUSDT.Shift(bscUSDTDecimals).BigInt()
	payload, err := routerABI.Pack("getAmountsOut", amountIn, []common.Address{usdtAddr, tokenAddr})
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &routerAddr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("pancake router %s: %w", address, err)
	}

	outputs, err := routerABI.Unpack("getAmountsOut", res)
	if err != nil {
		return nil, fmt.Errorf("pancake router %s: %w", address, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("pancake router %s: unexpected getAmountsOut response", address)
	}
	amounts, ok := outputs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("pancake router %s: failed to decode amounts", address)
	}

	tokensOut := amounts[len(amounts)-1]
	if tokensOut.Sign() <= 0 {
		return nil, nil
	}

	tokenAmount := decimal.NewFromBigInt(tokensOut, -int32(dec))
	if tokenAmount.Sign() <= 0 {
		return nil, nil
	}

	price := p.opts.NotionalUSDT.Div(tokenAmount).InexactFloat64()
	p.logger.Debug().
		Str("address", address).
		Float64("price", price).
		Msg("pancake router price fetched")
	return &price, nil
}

func (p *Pancake) tokenDecimals(ctx context.Context, client *ethclient.Client, token common.Address) (int, error) {
	key := strings.ToLower(token.Hex())

	p.decimalsMux.Lock()
	if dec, ok := p.decimalsCache[key]; ok {
		p.decimalsMux.Unlock()
		return dec, nil
	}
	p.decimalsMux.Unlock()

	payload, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return 0, fmt.Errorf("token decimals %s: %w", token.Hex(), err)
	}

	outputs, err := erc20ABI.Unpack("decimals", res)
	if err != nil {
		return 0, fmt.Errorf("token decimals %s: %w", token.Hex(), err)
	}
	if len(outputs) != 1 {
		return 0, fmt.Errorf("token decimals %s: unexpected response", token.Hex())
	}
	dec, ok := outputs[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("token decimals %s: failed to decode output", token.Hex())
	}

	p.decimalsMux.Lock()
	p.decimalsCache[key] = int(dec)
	p.decimalsMux.Unlock()
	return int(dec), nil
}

func (p *Pancake) getClient(ctx context.Context) (*ethclient.Client, error) {
	p.clientMux.Lock()
	defer p.clientMux.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	client, err := ethclient.DialContext(ctx, p.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

var _ PancakePriceFetcher = (*Pancake)(nil)
