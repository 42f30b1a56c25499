package cli

import (
	"github.com/spf13/cobra"

	"cryptospread/internal/app"
)

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Manage the watched pair registry",
}

var (
	addPancakeAddress  string
	addJupiterMint     string
	addJupiterDecimals int
	addMatchaAddress   string
	addMatchaDecimals  int
	addPriceScale      int
	addDirectThr       float64
	addReverseThr      float64
	addFavorite        bool
)

var pairsAddCmd = &cobra.Command{
	Use:   "add BASE QUOTE",
	Short: "Add a pair after validating it against the futures venue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AddPairOptions{
			Base:            args[0],
			Quote:           args[1],
			PancakeAddress:  addPancakeAddress,
			JupiterMint:     addJupiterMint,
			JupiterDecimals: addJupiterDecimals,
			MatchaAddress:   addMatchaAddress,
			MatchaDecimals:  addMatchaDecimals,
			Favorite:        addFavorite,
		}
		if cmd.Flags().Changed("price-scale") {
			scale := addPriceScale
			opts.PriceScale = &scale
		}
		if cmd.Flags().Changed("direct-threshold") {
			thr := addDirectThr
			opts.DirectThreshold = &thr
		}
		if cmd.Flags().Changed("reverse-threshold") {
			thr := addReverseThr
			opts.ReverseThreshold = &thr
		}
		return getApp().AddPair(cmd.Context(), opts)
	},
}

var (
	setPancakeAddress string
	setJupiterMint    string
	setJupiterDec     int
	setMatchaAddress  string
	setMatchaDec      int
	setPriceScale     int
	setDirectThr      float64
	setReverseThr     float64
	setAlertDirect    bool
	setAlertReverse   bool
)

var pairsSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Edit venue legs, thresholds, or alert flags of an existing pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.UpdatePairOptions{Name: args[0]}
		flags := cmd.Flags()
		if flags.Changed("pancake-address") {
			opts.PancakeAddress = &setPancakeAddress
		}
		if flags.Changed("jupiter-mint") {
			opts.JupiterMint = &setJupiterMint
		}
		if flags.Changed("jupiter-decimals") {
			opts.JupiterDecimals = &setJupiterDec
		}
		if flags.Changed("matcha-address") {
			opts.MatchaAddress = &setMatchaAddress
		}
		if flags.Changed("matcha-decimals") {
			opts.MatchaDecimals = &setMatchaDec
		}
		if flags.Changed("price-scale") {
			opts.PriceScale = &setPriceScale
		}
		if flags.Changed("direct-threshold") {
			opts.DirectThreshold = &setDirectThr
		}
		if flags.Changed("reverse-threshold") {
			opts.ReverseThreshold = &setReverseThr
		}
		if flags.Changed("alert-direct") {
			opts.AlertDirect = &setAlertDirect
		}
		if flags.Changed("alert-reverse") {
			opts.AlertReverse = &setAlertReverse
		}
		return getApp().UpdatePair(cmd.Context(), opts)
	},
}

var pairsRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemovePair(args[0])
	},
}

var listMarketCap bool

var pairsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPairs(cmd.Context(), app.ListPairsOptions{WithMarketCap: listMarketCap})
	},
}

var favoriteOff bool

var pairsFavoriteCmd = &cobra.Command{
	Use:   "favorite NAME",
	Short: "Mark or unmark a pair as favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetFavorite(args[0], !favoriteOff)
	},
}

func init() {
	pairsAddCmd.Flags().StringVar(&addPancakeAddress, "pancake-address", "", "BSC token contract address")
	pairsAddCmd.Flags().StringVar(&addJupiterMint, "jupiter-mint", "", "Solana token mint")
	pairsAddCmd.Flags().IntVar(&addJupiterDecimals, "jupiter-decimals", 0, "Solana token decimals")
	pairsAddCmd.Flags().StringVar(&addMatchaAddress, "matcha-address", "", "Token contract address for the 0x venue")
	pairsAddCmd.Flags().IntVar(&addMatchaDecimals, "matcha-decimals", 0, "Token decimals for the 0x venue")
	pairsAddCmd.Flags().IntVar(&addPriceScale, "price-scale", 0, "Decimal places used to round futures bid/ask")
	pairsAddCmd.Flags().Float64Var(&addDirectThr, "direct-threshold", 0, "Alert threshold for the direct spread (%)")
	pairsAddCmd.Flags().Float64Var(&addReverseThr, "reverse-threshold", 0, "Alert threshold for the reverse spread (%)")
	pairsAddCmd.Flags().BoolVar(&addFavorite, "favorite", false, "Mark the pair as favorite")

	pairsSetCmd.Flags().StringVar(&setPancakeAddress, "pancake-address", "", "BSC token contract address")
	pairsSetCmd.Flags().StringVar(&setJupiterMint, "jupiter-mint", "", "Solana token mint")
	pairsSetCmd.Flags().IntVar(&setJupiterDec, "jupiter-decimals", 0, "Solana token decimals")
	pairsSetCmd.Flags().StringVar(&setMatchaAddress, "matcha-address", "", "Token contract address for the 0x venue")
	pairsSetCmd.Flags().IntVar(&setMatchaDec, "matcha-decimals", 0, "Token decimals for the 0x venue")
	pairsSetCmd.Flags().IntVar(&setPriceScale, "price-scale", 0, "Decimal places used to round futures bid/ask")
	pairsSetCmd.Flags().Float64Var(&setDirectThr, "direct-threshold", 0, "Alert threshold for the direct spread (%)")
	pairsSetCmd.Flags().Float64Var(&setReverseThr, "reverse-threshold", 0, "Alert threshold for the reverse spread (%)")
	pairsSetCmd.Flags().BoolVar(&setAlertDirect, "alert-direct", true, "Enable direct-spread alerts")
	pairsSetCmd.Flags().BoolVar(&setAlertReverse, "alert-reverse", true, "Enable reverse-spread alerts")

	pairsListCmd.Flags().BoolVar(&listMarketCap, "market-cap", false, "Include CoinGecko market caps and 24h futures volume")
	pairsFavoriteCmd.Flags().BoolVar(&favoriteOff, "off", false, "Remove the favorite mark")

	pairsCmd.AddCommand(pairsAddCmd)
	pairsCmd.AddCommand(pairsSetCmd)
	pairsCmd.AddCommand(pairsRemoveCmd)
	pairsCmd.AddCommand(pairsListCmd)
	pairsCmd.AddCommand(pairsFavoriteCmd)
}
