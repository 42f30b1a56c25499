package pairs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// SymbolValidator checks that the centralized venue lists a contract for a
// pair before it is accepted into the registry.
type SymbolValidator interface {
	ContractExists(ctx context.Context, base, quote string) error
}

// Registry owns the in-memory pair set. Mutations persist to the store
// immediately; a persistence failure keeps the in-memory change and is only
// logged.
type Registry struct {
	mu        sync.RWMutex
	pairs     map[string]Pair
	favorites map[string]struct{}

	store     *FileStore
	validator SymbolValidator
	logger    zerolog.Logger
}

// NewRegistry constructs a registry backed by the given store. The validator
// may be nil (no symbol validation on Add).
func NewRegistry(store *FileStore, validator SymbolValidator, logger zerolog.Logger) *Registry {
	return &Registry{
		pairs:     make(map[string]Pair),
		favorites: make(map[string]struct{}),
		store:     store,
		validator: validator,
		logger:    logger.With().Str("component", "pair_registry").Logger(),
	}
}

// Load replaces the registry content from the store.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}
	loaded, favs, err := r.store.Load()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.pairs = loaded
	r.favorites = favs
	r.mu.Unlock()

	r.logger.Info().Int("pairs", len(loaded)).Int("favorites", len(favs)).Msg("pair registry loaded")
	return nil
}

// Add validates and inserts a new pair, then persists.
func (r *Registry) Add(ctx context.Context, p Pair) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if r.validator != nil {
		if err := r.validator.ContractExists(ctx, p.Base, p.Quote); err != nil {
			return fmt.Errorf("validate %s: %w", p.Name, err)
		}
	}

	r.mu.Lock()
	if _, exists := r.pairs[p.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("pair %s already exists", p.Name)
	}
	r.pairs[p.Name] = p
	r.mu.Unlock()

	r.persist()
	return nil
}

// Update replaces an existing pair in place, then persists.
func (r *Registry) Update(p Pair) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.pairs[p.Name]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("pair %s not found", p.Name)
	}
	r.pairs[p.Name] = p
	r.mu.Unlock()

	r.persist()
	return nil
}

// Remove deletes a pair and its favorite mark, then persists.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.pairs, name)
	delete(r.favorites, name)
	r.mu.Unlock()

	r.persist()
}

// Get returns one pair by name.
func (r *Registry) Get(name string) (Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[name]
	return p, ok
}

// Snapshot returns a consistent copy of the registry, taken atomically.
// The scheduler iterates this copy so concurrent mutation cannot tear a
// record mid-tick.
func (r *Registry) Snapshot() map[string]Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Pair, len(r.pairs))
	for name, p := range r.pairs {
		out[name] = p
	}
	return out
}

// Names returns the pair names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.pairs))
	for name := range r.pairs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// SetFavorite marks or unmarks a pair as favorite, then persists.
func (r *Registry) SetFavorite(name string, fav bool) {
	r.mu.Lock()
	if fav {
		r.favorites[name] = struct{}{}
	} else {
		delete(r.favorites, name)
	}
	r.mu.Unlock()

	r.persist()
}

// Favorites returns the favorite pair names.
func (r *Registry) Favorites() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.favorites))
	for name := range r.favorites {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// SetCoingeckoID records a resolved coin id on a pair and persists. Unknown
// names are ignored.
func (r *Registry) SetCoingeckoID(name, id string) {
	r.mu.Lock()
	p, ok := r.pairs[name]
	if !ok || p.CoingeckoID == id {
		r.mu.Unlock()
		return
	}
	p.CoingeckoID = id
	r.pairs[name] = p
	r.mu.Unlock()

	r.persist()
}

func (r *Registry) persist() {
	if r.store == nil {
		return
	}

	r.mu.RLock()
	pairsCopy := make(map[string]Pair, len(r.pairs))
	for name, p := range r.pairs {
		pairsCopy[name] = p
	}
	favsCopy := make(map[string]struct{}, len(r.favorites))
	for name := range r.favorites {
		favsCopy[name] = struct{}{}
	}
	r.mu.RUnlock()

	if err := r.store.Save(pairsCopy, favsCopy); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist pair registry")
	}
}
