package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cryptospread/internal/pairs"
	"cryptospread/internal/spread"
)

// Options tune the history store.
type Options struct {
	// Window bounds retention; samples older than now-Window are dropped
	// on every mutation and on load.
	Window time.Duration
	Path   string
}

// Store keeps a time-windowed spread history per pair and venue, persisted
// to a JSON file. Appends happen only on the tick-completion path; any
// number of readers may query concurrently. Locking is per series, so a
// writer never holds up readers of other pairs.
type Store struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	series map[string]map[pairs.Venue]*series

	saveCh chan struct{}
}

type series struct {
	mu      sync.Mutex
	samples []spread.Sample
}

// NewStore constructs a history store. Window defaults to 48h.
func NewStore(opts Options, logger zerolog.Logger) *Store {
	if opts.Window <= 0 {
		opts.Window = 48 * time.Hour
	}

	return &Store{
		opts:   opts,
		logger: logger.With().Str("component", "spread_history").Logger(),
		now:    time.Now,
		series: make(map[string]map[pairs.Venue]*series),
		saveCh: make(chan struct{}, 1),
	}
}

// Append records a sample. Samples with neither component are dropped; the
// series is pruned to the retention window in the same critical section.
func (s *Store) Append(pairName string, venue pairs.Venue, sample spread.Sample) {
	if sample.Direct == nil && sample.Reverse == nil {
		return
	}

	ser := s.getOrCreate(pairName, venue)
	cutoff := s.cutoff()

	ser.mu.Lock()
	ser.samples = append(ser.samples, sample)
	ser.samples = pruneSamples(ser.samples, cutoff)
	ser.mu.Unlock()
}

// Prune drops samples older than the retention window from every series.
func (s *Store) Prune() {
	cutoff := s.cutoff()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, venues := range s.series {
		for _, ser := range venues {
			ser.mu.Lock()
			ser.samples = pruneSamples(ser.samples, cutoff)
			ser.mu.Unlock()
		}
	}
}

// Query returns the samples for a pair/venue at or after sinceSeconds, in
// timestamp order.
func (s *Store) Query(pairName string, venue pairs.Venue, sinceSeconds float64) []spread.Sample {
	s.mu.RLock()
	venues, ok := s.series[pairName]
	var ser *series
	if ok {
		ser = venues[venue]
	}
	s.mu.RUnlock()

	if ser == nil {
		return nil
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()

	out := make([]spread.Sample, 0, len(ser.samples))
	for _, sample := range ser.samples {
		if sample.Timestamp >= sinceSeconds {
			out = append(out, sample)
		}
	}
	return out
}

// Venues lists the venues with recorded history for a pair.
func (s *Store) Venues(pairName string) []pairs.Venue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	venues := s.series[pairName]
	out := make([]pairs.Venue, 0, len(venues))
	for v := range venues {
		out = append(out, v)
	}
	return out
}

// Load restores history from the file, pruning to the window and skipping
// malformed entries. A missing file is not an error.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.opts.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.opts.Path, err)
	}

	// Triples are decoded one by one so a single corrupt entry loses only
	// itself, not the whole file.
	var doc map[string]map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", s.opts.Path, err)
	}

	cutoff := s.cutoff()
	loaded := 0
	skipped := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = make(map[string]map[pairs.Venue]*series)

	for pairName, venues := range doc {
		for venueName, points := range venues {
			var samples []spread.Sample
			for _, rawTriple := range points {
				// Expected shape: [ts, direct, reverse].
				var triple []*float64
				if err := json.Unmarshal(rawTriple, &triple); err != nil {
					skipped++
					continue
				}
				if len(triple) != 3 || triple[0] == nil {
					skipped++
					continue
				}
				ts := *triple[0]
				if ts < cutoff {
					continue
				}
				samples = append(samples, spread.Sample{
					Timestamp: ts,
					Direct:    triple[1],
					Reverse:   triple[2],
				})
			}
			if len(samples) == 0 {
				continue
			}

			venuesMap := s.series[pairName]
			if venuesMap == nil {
				venuesMap = make(map[pairs.Venue]*series)
				s.series[pairName] = venuesMap
			}
			venuesMap[pairs.Venue(venueName)] = &series{samples: samples}
			loaded += len(samples)
		}
	}

	s.logger.Info().Int("samples", loaded).Int("skipped", skipped).Msg("spread history loaded")
	return nil
}

// Save writes the pruned history to the file atomically.
func (s *Store) Save() error {
	cutoff := s.cutoff()
	doc := make(map[string]map[string][][]*float64)

	s.mu.RLock()
	for pairName, venues := range s.series {
		for venue, ser := range venues {
			ser.mu.Lock()
			ser.samples = pruneSamples(ser.samples, cutoff)
			points := make([][]*float64, 0, len(ser.samples))
			for _, sample := range ser.samples {
				ts := sample.Timestamp
				points = append(points, []*float64{&ts, sample.Direct, sample.Reverse})
			}
			ser.mu.Unlock()

			if len(points) == 0 {
				continue
			}
			venuesMap := doc[pairName]
			if venuesMap == nil {
				venuesMap = make(map[string][][]*float64)
				doc[pairName] = venuesMap
			}
			venuesMap[string(venue)] = points
		}
	}
	s.mu.RUnlock()

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if dir := filepath.Dir(s.opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", s.opts.Path, err)
		}
	}
	tmp := s.opts.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.opts.Path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// RequestSave schedules an asynchronous save. Requests arriving while a
// save is already pending coalesce, so a slow disk never delays the caller.
func (s *Store) RequestSave() {
	select {
	case s.saveCh <- struct{}{}:
	default:
	}
}

// RunSaver services RequestSave until the context is cancelled, writing one
// final save on shutdown.
func (s *Store) RunSaver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if err := s.Save(); err != nil {
				s.logger.Error().Err(err).Msg("final history save failed")
			}
			return
		case <-s.saveCh:
			if err := s.Save(); err != nil {
				s.logger.Error().Err(err).Msg("history save failed")
			}
		}
	}
}

func (s *Store) getOrCreate(pairName string, venue pairs.Venue) *series {
	s.mu.RLock()
	if venues, ok := s.series[pairName]; ok {
		if ser, ok := venues[venue]; ok {
			s.mu.RUnlock()
			return ser
		}
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	venues := s.series[pairName]
	if venues == nil {
		venues = make(map[pairs.Venue]*series)
		s.series[pairName] = venues
	}
	ser := venues[venue]
	if ser == nil {
		ser = &series{}
		venues[venue] = ser
	}
	return ser
}

func (s *Store) cutoff() float64 {
	return float64(s.now().Add(-s.opts.Window).Unix())
}

func pruneSamples(samples []spread.Sample, cutoff float64) []spread.Sample {
	idx := 0
	for idx < len(samples) && samples[idx].Timestamp < cutoff {
		idx++
	}
	if idx == 0 {
		return samples
	}
	return append(samples[:0], samples[idx:]...)
}
