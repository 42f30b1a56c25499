package pairs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// pairDocument is the tokens.json wire form of one pair. Optional fields are
// omitted when unset so the file round-trips older layouts untouched.
type pairDocument struct {
	Name  string `json:"name"`
	Base  string `json:"base"`
	Quote string `json:"quote"`

	Dexes []string `json:"dexes,omitempty"`

	JupiterMint     string `json:"jupiter_mint,omitempty"`
	JupiterDecimals *int   `json:"jupiter_decimals,omitempty"`

	BscAddress string `json:"bsc_address,omitempty"`

	MexcPriceScale *int `json:"mexc_price_scale,omitempty"`

	MatchaAddress  string `json:"matcha_address,omitempty"`
	MatchaDecimals *int   `json:"matcha_decimals,omitempty"`

	CgID string `json:"cg_id,omitempty"`

	// Pointers so files written before these flags existed decode as
	// enabled rather than silently muting the pair.
	SpreadDirect  *bool `json:"spread_direct,omitempty"`
	SpreadReverse *bool `json:"spread_reverse,omitempty"`

	SpreadThreshold        *float64 `json:"spread_threshold,omitempty"`
	SpreadDirectThreshold  *float64 `json:"spread_direct_threshold,omitempty"`
	SpreadReverseThreshold *float64 `json:"spread_reverse_threshold,omitempty"`
}

type tokensDocument struct {
	Pairs     []pairDocument `json:"pairs"`
	Favorites []string       `json:"favorites"`
}

// FileStore persists the pair registry to a tokens.json file.
type FileStore struct {
	path string
}

// NewFileStore builds a store over the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the tokens file. A missing file yields an empty registry.
// Malformed pair entries are skipped, not fatal.
func (s *FileStore) Load() (map[string]Pair, map[string]struct{}, error) {
	out := make(map[string]Pair)
	favs := make(map[string]struct{})

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, favs, nil
		}
		return nil, nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, favs, nil
	}

	var doc tokensDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	for _, item := range doc.Pairs {
		p, ok := decodePair(item)
		if !ok {
			continue
		}
		out[p.Name] = p
	}

	for _, name := range doc.Favorites {
		if name != "" {
			favs[name] = struct{}{}
		}
	}

	return out, favs, nil
}

// Save writes the full registry and favorites set atomically (temp file and
// rename).
func (s *FileStore) Save(pairsByName map[string]Pair, favorites map[string]struct{}) error {
	doc := tokensDocument{
		Pairs:     make([]pairDocument, 0, len(pairsByName)),
		Favorites: make([]string, 0, len(favorites)),
	}

	names := make([]string, 0, len(pairsByName))
	for name := range pairsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Pairs = append(doc.Pairs, encodePair(pairsByName[name]))
	}

	favNames := make([]string, 0, len(favorites))
	for name := range favorites {
		favNames = append(favNames, name)
	}
	sort.Strings(favNames)
	doc.Favorites = favNames

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", s.path, err)
		}
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func boolOrTrue(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func decodePair(item pairDocument) (Pair, bool) {
	if item.Name == "" {
		return Pair{}, false
	}

	base := item.Base
	quote := item.Quote
	if base == "" {
		base, _, _ = strings.Cut(item.Name, "-")
	}
	if quote == "" {
		if _, rest, found := strings.Cut(item.Name, "-"); found {
			quote = rest
		} else {
			quote = "USDT"
		}
	}

	p := Pair{
		Name:             item.Name,
		Base:             strings.ToUpper(base),
		Quote:            strings.ToUpper(quote),
		PriceScale:       item.MexcPriceScale,
		CoingeckoID:      item.CgID,
		AlertDirect:      boolOrTrue(item.SpreadDirect),
		AlertReverse:     boolOrTrue(item.SpreadReverse),
		DirectThreshold:  item.SpreadDirectThreshold,
		ReverseThreshold: item.SpreadReverseThreshold,
		LegacyThreshold:  item.SpreadThreshold,
	}

	for _, d := range item.Dexes {
		p.Venues = append(p.Venues, Venue(d))
	}

	if item.BscAddress != "" {
		p.Pancake = &PancakeLeg{Address: item.BscAddress}
	}
	if item.JupiterMint != "" {
		dec := 0
		if item.JupiterDecimals != nil {
			dec = *item.JupiterDecimals
		}
		p.Jupiter = &JupiterLeg{Mint: item.JupiterMint, Decimals: dec}
	}
	if item.MatchaAddress != "" {
		dec := 18
		if item.MatchaDecimals != nil {
			dec = *item.MatchaDecimals
		}
		p.Matcha = &MatchaLeg{Address: item.MatchaAddress, Decimals: dec}
	}

	return p, true
}

func encodePair(p Pair) pairDocument {
	item := pairDocument{
		Name:                   p.Name,
		Base:                   p.Base,
		Quote:                  p.Quote,
		MexcPriceScale:         p.PriceScale,
		CgID:                   p.CoingeckoID,
		SpreadDirect:           &p.AlertDirect,
		SpreadReverse:          &p.AlertReverse,
		SpreadThreshold:        p.LegacyThreshold,
		SpreadDirectThreshold:  p.DirectThreshold,
		SpreadReverseThreshold: p.ReverseThreshold,
	}

	for _, v := range p.Venues {
		item.Dexes = append(item.Dexes, string(v))
	}

	if p.Pancake != nil {
		item.BscAddress = p.Pancake.Address
	}
	if p.Jupiter != nil {
		item.JupiterMint = p.Jupiter.Mint
		dec := p.Jupiter.Decimals
		item.JupiterDecimals = &dec
	}
	if p.Matcha != nil {
		item.MatchaAddress = p.Matcha.Address
		dec := p.Matcha.Decimals
		item.MatchaDecimals = &dec
	}

	return item
}
