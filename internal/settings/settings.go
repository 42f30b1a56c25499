package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Values 描述运行期可调整的设置。
type Values struct {
	IntervalSec          float64 `json:"interval_sec"`
	ProxyEnabled         bool    `json:"proxy_enabled"`
	ProxyProtocol        string  `json:"proxy_protocol"`
	ProxyFilePath        string  `json:"proxy_file_path"`
	TelegramToken        string  `json:"telegram_token"`
	TelegramChatID       string  `json:"telegram_chat_id"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
	NotificationsMax     int     `json:"notifications_max_count"`
}

// Defaults returns the baseline applied when the file is missing or a field
// is absent.
func Defaults() Values {
	return Values{
		IntervalSec:          3,
		ProxyProtocol:        "socks5",
		NotificationsEnabled: true,
		NotificationsMax:     10,
	}
}

// Store owns the settings file. Reads and writes go through the store so
// fields unknown to this build survive a round trip.
type Store struct {
	path   string
	logger zerolog.Logger

	mu       sync.RWMutex
	values   Values
	extra    map[string]json.RawMessage
	onChange []func(Values)
}

// NewStore constructs a store; call Load before first use.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "settings").Logger(),
		values: Defaults(),
		extra:  make(map[string]json.RawMessage),
	}
}

// Load reads the settings file, applying defaults for absent fields. A
// missing file leaves the defaults in place.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	values := Defaults()
	known := knownFields()
	extra := make(map[string]json.RawMessage)
	for key, val := range doc {
		if !known[key] {
			extra[key] = val
		}
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	normalize(&values)

	s.mu.Lock()
	s.values = values
	s.extra = extra
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current values.
func (s *Store) Get() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

// Update mutates the values, persists them, and notifies subscribers.
// Subscribers run outside the lock.
func (s *Store) Update(mutate func(*Values)) error {
	s.mu.Lock()
	mutate(&s.values)
	normalize(&s.values)
	values := s.values
	callbacks := append([]func(Values){}, s.onChange...)
	err := s.saveLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, cb := range callbacks {
		cb(values)
	}
	return nil
}

// Reload re-reads the file and notifies subscribers when the values
// actually changed. An unchanged file fires nothing, so the store's own
// saves are harmless to reload.
func (s *Store) Reload() error {
	prev := s.Get()
	if err := s.Load(); err != nil {
		return err
	}
	next := s.Get()
	if next == prev {
		return nil
	}

	s.mu.RLock()
	callbacks := append([]func(Values){}, s.onChange...)
	s.mu.RUnlock()

	s.logger.Info().Float64("interval_sec", next.IntervalSec).Msg("settings reloaded from disk")
	for _, cb := range callbacks {
		cb(next)
	}
	return nil
}

// Watch reloads the store whenever the settings file changes on disk, so an
// edit made while the service runs takes effect without a restart. The
// parent directory is watched because saves replace the file by rename.
// Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn().Err(err).Msg("settings reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("settings watcher error")
		}
	}
}

// OnChange registers a callback invoked after every successful Update and
// after a Reload that changed the values.
func (s *Store) OnChange(cb func(Values)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, cb)
	s.mu.Unlock()
}

func (s *Store) saveLocked() error {
	valuesRaw, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	doc := make(map[string]json.RawMessage, len(s.extra)+8)
	for key, val := range s.extra {
		doc[key] = val
	}
	var knownDoc map[string]json.RawMessage
	if err := json.Unmarshal(valuesRaw, &knownDoc); err != nil {
		return fmt.Errorf("remarshal settings: %w", err)
	}
	for key, val := range knownDoc {
		doc[key] = val
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings doc: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", s.path, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func normalize(v *Values) {
	if v.IntervalSec <= 0 {
		v.IntervalSec = Defaults().IntervalSec
	}
	if v.ProxyProtocol == "" {
		v.ProxyProtocol = Defaults().ProxyProtocol
	}
	if v.NotificationsMax <= 0 {
		v.NotificationsMax = Defaults().NotificationsMax
	}
}

func knownFields() map[string]bool {
	return map[string]bool{
		"interval_sec":            true,
		"proxy_enabled":           true,
		"proxy_protocol":          true,
		"proxy_file_path":         true,
		"telegram_token":          true,
		"telegram_chat_id":        true,
		"notifications_enabled":   true,
		"notifications_max_count": true,
	}
}
