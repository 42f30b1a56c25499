package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"cryptospread/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Mexc      MexcConfig      `mapstructure:"mexc"`
	Jupiter   JupiterConfig   `mapstructure:"jupiter"`
	Matcha    MatchaConfig    `mapstructure:"matcha"`
	Pancake   PancakeConfig   `mapstructure:"pancake"`
	Coingecko CoingeckoConfig `mapstructure:"coingecko"`
	Files     FilesConfig     `mapstructure:"files"`
	History   HistoryConfig   `mapstructure:"history"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional PostgreSQL archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	Retention       time.Duration `mapstructure:"retention"`
}

// SchedulerConfig governs polling cadence. Interval is only the initial
// value; the live value comes from the settings store and may change at
// runtime.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	MaxWorkers   int           `mapstructure:"max_workers"`
}

// MexcConfig covers the centralized futures venue.
type MexcConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// JupiterConfig covers the Solana quote engine.
type JupiterConfig struct {
	OrderURL       string        `mapstructure:"order_url"`
	USDTMint       string        `mapstructure:"usdt_mint"`
	USDTDecimals   int           `mapstructure:"usdt_decimals"`
	NotionalUSDT   float64       `mapstructure:"notional_usdt"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MatchaConfig covers the 0x gasless price endpoint.
type MatchaConfig struct {
	PriceURL       string        `mapstructure:"price_url"`
	ChainID        int           `mapstructure:"chain_id"`
	USDTAddress    string        `mapstructure:"usdt_address"`
	USDTDecimals   int           `mapstructure:"usdt_decimals"`
	NotionalUSDT   float64       `mapstructure:"notional_usdt"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PancakeConfig covers the BSC liquidity-aggregator lookup plus the
// optional on-chain router fallback.
type PancakeConfig struct {
	TokensURL      string        `mapstructure:"tokens_url"`
	SearchURL      string        `mapstructure:"search_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BscRPCURL      string        `mapstructure:"bsc_rpc_url"`
	RouterAddress  string        `mapstructure:"router_address"`
	USDTAddress    string        `mapstructure:"usdt_address"`
	NotionalUSDT   float64       `mapstructure:"notional_usdt"`
}

// CoingeckoConfig covers the market-cap lookup.
type CoingeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FilesConfig locates the durable JSON state files.
type FilesConfig struct {
	Tokens   string `mapstructure:"tokens"`
	Settings string `mapstructure:"settings"`
	History  string `mapstructure:"history"`
}

// HistoryConfig bounds the spread history store.
type HistoryConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// AlertingConfig defines alert routing. Per-pair thresholds live in the
// pair registry, not here.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRYPTOSPREAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cryptospread")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "3s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.max_workers", 8)

	v.SetDefault("mexc.base_url", "https://contract.mexc.com")
	v.SetDefault("mexc.request_timeout", "10s")

	v.SetDefault("jupiter.order_url", "https://ultra-api.jup.ag/order")
	v.SetDefault("jupiter.usdt_mint", "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	v.SetDefault("jupiter.usdt_decimals", 6)
	v.SetDefault("jupiter.notional_usdt", 100.0)
	v.SetDefault("jupiter.request_timeout", "2s")

	v.SetDefault("matcha.price_url", "https://matcha.xyz/api/gasless/price")
	v.SetDefault("matcha.chain_id", 8453)
	v.SetDefault("matcha.usdt_address", "0xfde4c96c8593536e31f229ea8f37b2ada2699bb2")
	v.SetDefault("matcha.usdt_decimals", 6)
	v.SetDefault("matcha.notional_usdt", 100.0)
	v.SetDefault("matcha.request_timeout", "10s")

	v.SetDefault("pancake.tokens_url", "https://api.dexscreener.com/latest/dex/tokens")
	v.SetDefault("pancake.search_url", "https://api.dexscreener.com/latest/dex/search")
	v.SetDefault("pancake.request_timeout", "10s")
	v.SetDefault("pancake.router_address", "0x10ED43C718714eb63d5aA57B78B54704E256024E")
	v.SetDefault("pancake.usdt_address", "0x55d398326f99059fF775485246999027B3197955")
	v.SetDefault("pancake.notional_usdt", 100.0)

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.request_timeout", "20s")

	v.SetDefault("files.tokens", "tokens.json")
	v.SetDefault("files.settings", "settings.json")
	v.SetDefault("files.history", "spread_history_2d.json")

	v.SetDefault("history.window", "48h")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "720h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.MaxWorkers <= 0 {
		return fmt.Errorf("scheduler.max_workers must be greater than zero")
	}
	if c.History.Window <= 0 {
		return fmt.Errorf("history.window must be greater than zero")
	}
	if c.Jupiter.NotionalUSDT <= 0 || c.Matcha.NotionalUSDT <= 0 || c.Pancake.NotionalUSDT <= 0 {
		return fmt.Errorf("venue notional_usdt must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
