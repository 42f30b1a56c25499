package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cryptospread/internal/alerting"
	"cryptospread/internal/fetcher"
	"cryptospread/internal/history"
	"cryptospread/internal/pairs"
	"cryptospread/internal/scheduler"
	"cryptospread/internal/settings"
	"cryptospread/internal/spread"
)

// Status reflects what the latest polling cycle produced.
type Status string

const (
	// StatusWaiting means the cycle yielded no data: either no pairs are
	// configured or every fetch came back empty.
	StatusWaiting Status = "waiting"
	// StatusOnline means the cycle produced at least one spread.
	StatusOnline Status = "online"
)

// Update is one polling cycle's outcome, delivered to consumers.
type Update struct {
	Status   Status
	Snapshot spread.Snapshot
}

// Archiver persists completed snapshots and triggered alerts. A nil Archiver
// disables archival.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, snapshot spread.Snapshot) error
	ArchiveAlerts(ctx context.Context, events []alerting.Event) error
}

// Options tune the service.
type Options struct {
	// MaxWorkers caps the polling pool; the effective size is the smaller
	// of this and the pair count.
	MaxWorkers int
}

// Deps are the service's collaborators. Notifier and Archive may be nil.
type Deps struct {
	Registry  *pairs.Registry
	Book      fetcher.BookFetcher
	Pancake   fetcher.PancakePriceFetcher
	Jupiter   fetcher.JupiterPriceFetcher
	Matcha    fetcher.MatchaPriceFetcher
	Symbols   fetcher.SymbolPriceFetcher
	History   *history.Store
	Evaluator *alerting.Evaluator
	Notifier  alerting.Notifier
	Archive   Archiver
	Settings  *settings.Store
}

// Service orchestrates polling, spread computation, history, and alerting.
type Service struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger

	sched *scheduler.Scheduler

	mu     sync.RWMutex
	latest Update

	updates chan Update
}

// New constructs the polling service.
func New(opts Options, deps Deps, sched *scheduler.Scheduler, logger zerolog.Logger) *Service {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	return &Service{
		opts:    opts,
		deps:    deps,
		sched:   sched,
		logger:  logger.With().Str("component", "service").Logger(),
		latest:  Update{Status: StatusWaiting},
		updates: make(chan Update, 16),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.sched.Run(ctx, s.Tick)
}

// Updates delivers each cycle's outcome. Slow consumers lose intermediate
// updates rather than stalling the loop; Latest always has the newest one.
func (s *Service) Updates() <-chan Update {
	return s.updates
}

// Latest returns the most recent cycle outcome.
func (s *Service) Latest() Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Tick 执行一次完整的轮询周期。
func (s *Service) Tick(ctx context.Context, startedAt time.Time) error {
	watched := s.deps.Registry.Snapshot()
	if len(watched) == 0 {
		s.publish(Update{Status: StatusWaiting, Snapshot: spread.Snapshot{TakenAt: startedAt}})
		return nil
	}

	names := make([]string, 0, len(watched))
	for name := range watched {
		names = append(names, name)
	}
	sort.Strings(names)

	workers := s.opts.MaxWorkers
	if len(names) < workers {
		workers = len(names)
	}

	jobs := make(chan string)
	results := make(map[string]spread.PairSnapshot, len(names))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				snap := s.processPair(ctx, watched[name])
				resultsMu.Lock()
				results[name] = snap
				resultsMu.Unlock()
			}
		}()
	}
	for _, name := range names {
		jobs <- name
	}
	close(jobs)
	wg.Wait()

	snapshot := spread.Snapshot{TakenAt: startedAt, Pairs: results}
	if snapshot.Empty() {
		s.logger.Warn().Int("pairs", len(names)).Msg("cycle produced no data, staying in waiting state")
		s.publish(Update{Status: StatusWaiting, Snapshot: snapshot})
		return nil
	}

	s.recordHistory(snapshot)
	s.dispatchAlerts(ctx, snapshot, watched)
	s.archive(ctx, snapshot)
	s.publish(Update{Status: StatusOnline, Snapshot: snapshot})
	return nil
}

// processPair polls the centralized book once, then fans out to every
// enabled venue. A panic in one venue's fetch loses that venue's number for
// the tick, nothing else.
func (s *Service) processPair(ctx context.Context, p pairs.Pair) spread.PairSnapshot {
	snap := spread.PairSnapshot{Spreads: make(map[pairs.Venue]spread.VenueSpread)}

	book, err := s.deps.Book.FetchBook(ctx, p.Base, p.Quote, p.PriceScale)
	if err != nil {
		s.logger.Warn().Err(err).Str("pair", p.Name).Msg("centralized book fetch failed")
	} else {
		snap.CexBid = book.Bid
		snap.CexAsk = book.Ask
	}

	venues := p.EnabledVenues()
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, venue := range venues {
		venue := venue
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Str("pair", p.Name).Str("venue", string(venue)).
						Interface("panic", r).Msg("venue fetch panicked")
				}
			}()

			price, err := s.fetchVenuePrice(ctx, p, venue)
			if err != nil {
				s.logger.Warn().Err(err).Str("pair", p.Name).Str("venue", string(venue)).Msg("venue price fetch failed")
				return
			}
			if price == nil || *price <= 0 {
				return
			}

			direct, reverse := spread.Compute(snap.CexBid, snap.CexAsk, *price)
			mu.Lock()
			snap.Spreads[venue] = spread.VenueSpread{
				Direct:   direct,
				Reverse:  reverse,
				DexPrice: *price,
				CexBid:   snap.CexBid,
				CexAsk:   snap.CexAsk,
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return snap
}

// fetchVenuePrice resolves a venue price through its configured leg, falling
// back to symbol search when the pair predates per-venue addressing.
func (s *Service) fetchVenuePrice(ctx context.Context, p pairs.Pair, venue pairs.Venue) (*float64, error) {
	switch venue {
	case pairs.VenuePancake:
		if p.Pancake != nil && p.Pancake.Address != "" {
			return s.deps.Pancake.FetchPancakePrice(ctx, p.Pancake.Address)
		}
	case pairs.VenueJupiter:
		if p.Jupiter != nil && p.Jupiter.Mint != "" {
			return s.deps.Jupiter.FetchJupiterPrice(ctx, p.Jupiter.Mint, p.Jupiter.Decimals)
		}
	case pairs.VenueMatcha:
		if p.Matcha != nil && p.Matcha.Address != "" {
			return s.deps.Matcha.FetchMatchaPrice(ctx, p.Matcha.Address, p.Matcha.Decimals)
		}
	default:
		return nil, fmt.Errorf("unknown venue %q", venue)
	}
	return s.deps.Symbols.FetchSymbolPrice(ctx, p.Base, p.Quote, string(venue))
}

func (s *Service) recordHistory(snapshot spread.Snapshot) {
	if s.deps.History == nil {
		return
	}
	ts := float64(snapshot.TakenAt.Unix())
	for pairName, pairSnap := range snapshot.Pairs {
		for venue, vs := range pairSnap.Spreads {
			s.deps.History.Append(pairName, venue, spread.Sample{
				Timestamp: ts,
				Direct:    vs.Direct,
				Reverse:   vs.Reverse,
			})
		}
	}
	s.deps.History.RequestSave()
}

// dispatchAlerts evaluates the snapshot and sends notifications without
// blocking the loop. Failed sends are logged and dropped.
func (s *Service) dispatchAlerts(ctx context.Context, snapshot spread.Snapshot, watched map[string]pairs.Pair) {
	if s.deps.Evaluator == nil {
		return
	}
	pairList := make([]pairs.Pair, 0, len(watched))
	for _, p := range watched {
		pairList = append(pairList, p)
	}

	events := s.deps.Evaluator.Evaluate(snapshot, pairList)
	if len(events) == 0 {
		return
	}

	notifyOn := true
	maxCount := len(events)
	if s.deps.Settings != nil {
		values := s.deps.Settings.Get()
		notifyOn = values.NotificationsEnabled
		if values.NotificationsMax > 0 && values.NotificationsMax < maxCount {
			maxCount = values.NotificationsMax
		}
	}

	if s.deps.Archive != nil {
		if err := s.deps.Archive.ArchiveAlerts(ctx, events); err != nil {
			s.logger.Error().Err(err).Msg("archive alerts failed")
		}
	}

	if !notifyOn || s.deps.Notifier == nil {
		return
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Value > events[j].Value })
	for _, event := range events[:maxCount] {
		event := event
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.deps.Notifier.Notify(sendCtx, event); err != nil {
				s.logger.Error().Err(err).Str("pair", event.Pair).Str("venue", string(event.Venue)).Msg("发送告警失败")
			}
		}()
	}
}

func (s *Service) archive(ctx context.Context, snapshot spread.Snapshot) {
	if s.deps.Archive == nil {
		return
	}
	if err := s.deps.Archive.ArchiveSnapshot(ctx, snapshot); err != nil {
		s.logger.Error().Err(err).Msg("archive snapshot failed")
	}
}

func (s *Service) publish(update Update) {
	s.mu.Lock()
	s.latest = update
	s.mu.Unlock()

	select {
	case s.updates <- update:
	default:
	}
}
