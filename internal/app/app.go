package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptospread/internal/alerting"
	"cryptospread/internal/config"
	"cryptospread/internal/fetcher"
	"cryptospread/internal/history"
	"cryptospread/internal/pairs"
	"cryptospread/internal/proxy"
	"cryptospread/internal/scheduler"
	"cryptospread/internal/service"
	"cryptospread/internal/settings"
	"cryptospread/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// components are the long-lived collaborators shared by the commands.
type components struct {
	settings  *settings.Store
	rotator   *proxy.Rotator
	registry  *pairs.Registry
	history   *history.Store
	mexc      *fetcher.Mexc
	pancake   *fetcher.Pancake
	jupiter   *fetcher.Jupiter
	matcha    *fetcher.Matcha
	symbols   *fetcher.Dexscreener
	coingecko *fetcher.Coingecko
}

func (a *App) buildComponents() (*components, error) {
	cfg := a.Config

	settingsStore := settings.NewStore(cfg.Files.Settings, a.Logger)
	if err := settingsStore.Load(); err != nil {
		return nil, err
	}
	values := settingsStore.Get()

	rotator := proxy.NewRotator(a.Logger)
	rotator.Configure(values.ProxyEnabled, values.ProxyProtocol, values.ProxyFilePath)

	mexc := fetcher.NewMexc(fetcher.MexcOptions{
		BaseURL: cfg.Mexc.BaseURL,
		Timeout: cfg.Mexc.RequestTimeout,
	}, rotator, a.Logger)

	ds := fetcher.NewDexscreener(fetcher.DexscreenerOptions{
		TokensURL: cfg.Pancake.TokensURL,
		SearchURL: cfg.Pancake.SearchURL,
		Timeout:   cfg.Pancake.RequestTimeout,
	}, rotator, a.Logger)

	pancake := fetcher.NewPancake(fetcher.PancakeOptions{
		RPCURL:        cfg.Pancake.BscRPCURL,
		RouterAddress: cfg.Pancake.RouterAddress,
		USDTAddress:   cfg.Pancake.USDTAddress,
		NotionalUSDT:  decimal.NewFromFloat(cfg.Pancake.NotionalUSDT),
		Timeout:       cfg.Pancake.RequestTimeout,
	}, ds, a.Logger)

	jupiter := fetcher.NewJupiter(fetcher.JupiterOptions{
		OrderURL:     cfg.Jupiter.OrderURL,
		USDTMint:     cfg.Jupiter.USDTMint,
		USDTDecimals: cfg.Jupiter.USDTDecimals,
		NotionalUSDT: decimal.NewFromFloat(cfg.Jupiter.NotionalUSDT),
		Timeout:      cfg.Jupiter.RequestTimeout,
	}, rotator, a.Logger)

	matcha := fetcher.NewMatcha(fetcher.MatchaOptions{
		PriceURL:     cfg.Matcha.PriceURL,
		ChainID:      cfg.Matcha.ChainID,
		USDTAddress:  cfg.Matcha.USDTAddress,
		USDTDecimals: cfg.Matcha.USDTDecimals,
		NotionalUSDT: decimal.NewFromFloat(cfg.Matcha.NotionalUSDT),
		Timeout:      cfg.Matcha.RequestTimeout,
	}, rotator, a.Logger)

	coingecko := fetcher.NewCoingecko(fetcher.CoingeckoOptions{
		BaseURL: cfg.Coingecko.BaseURL,
		Timeout: cfg.Coingecko.RequestTimeout,
	}, rotator, a.Logger)

	registry := pairs.NewRegistry(pairs.NewFileStore(cfg.Files.Tokens), mexc, a.Logger)
	if err := registry.Load(); err != nil {
		return nil, err
	}

	historyStore := history.NewStore(history.Options{
		Window: cfg.History.Window,
		Path:   cfg.Files.History,
	}, a.Logger)
	if err := historyStore.Load(); err != nil {
		a.Logger.Warn().Err(err).Msg("spread history unreadable, starting empty")
	}

	return &components{
		settings:  settingsStore,
		rotator:   rotator,
		registry:  registry,
		history:   historyStore,
		mexc:      mexc,
		pancake:   pancake,
		jupiter:   jupiter,
		matcha:    matcha,
		symbols:   ds,
		coingecko: coingecko,
	}, nil
}

// newNotifier prefers settings.json credentials so they can be rotated
// without touching the config file.
func (a *App) newNotifier(values settings.Values) alerting.Notifier {
	token := values.TelegramToken
	chatID := values.TelegramChatID
	if token == "" || chatID == "" {
		if !a.Config.Alerting.Telegram.Enabled {
			return nil
		}
		token = a.Config.Alerting.Telegram.BotToken
		chatID = a.Config.Alerting.Telegram.ChatID
	}
	if token == "" || chatID == "" {
		return nil
	}
	return alerting.NewTelegramNotifier(token, chatID, a.Config.Alerting.Telegram.APIBase, 10*time.Second, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running polling service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comps, err := a.buildComponents()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Info().Msg("database.dsn not configured; archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}
	if store != nil && a.Config.Database.Retention > 0 {
		cutoff := time.Now().Add(-a.Config.Database.Retention)
		if err := store.PruneBefore(ctx, cutoff); err != nil {
			a.Logger.Warn().Err(err).Time("cutoff", cutoff).Msg("archive prune failed")
		}
	}

	values := comps.settings.Get()
	interval := time.Duration(values.IntervalSec * float64(time.Second))
	if interval <= 0 {
		interval = a.Config.Scheduler.Interval
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	comps.settings.OnChange(func(v settings.Values) {
		sched.SetInterval(time.Duration(v.IntervalSec * float64(time.Second)))
		comps.rotator.Configure(v.ProxyEnabled, v.ProxyProtocol, v.ProxyFilePath)
	})
	go func() {
		if err := comps.settings.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn().Err(err).Msg("settings watcher stopped")
		}
	}()

	var notifier alerting.Notifier
	if a.Config.Alerting.Enabled {
		notifier = a.newNotifier(values)
	}
	if notifier == nil {
		a.Logger.Info().Msg("telegram not configured; alerts will only be logged")
	}

	var archive service.Archiver
	if store != nil {
		archive = store
	}

	svc := service.New(service.Options{
		MaxWorkers: a.Config.Scheduler.MaxWorkers,
	}, service.Deps{
		Registry:  comps.registry,
		Book:      comps.mexc,
		Pancake:   comps.pancake,
		Jupiter:   comps.jupiter,
		Matcha:    comps.matcha,
		Symbols:   comps.symbols,
		History:   comps.history,
		Evaluator: alerting.NewEvaluator(a.Logger),
		Notifier:  notifier,
		Archive:   archive,
		Settings:  comps.settings,
	}, sched, a.Logger)

	go comps.history.RunSaver(ctx)
	go a.logStatusTransitions(ctx, svc)

	a.Logger.Info().Dur("interval", interval).Msg("starting spread polling service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("spread polling service stopped")
	return nil
}

func (a *App) logStatusTransitions(ctx context.Context, svc *service.Service) {
	last := service.Status("")
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-svc.Updates():
			if update.Status == last {
				continue
			}
			last = update.Status
			switch update.Status {
			case service.StatusOnline:
				a.Logger.Info().Int("pairs", len(update.Snapshot.Pairs)).Msg("数据已更新, 状态 online")
			case service.StatusWaiting:
				a.Logger.Info().Msg("等待数据, 状态 waiting")
			}
		}
	}
}
