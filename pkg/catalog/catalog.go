package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Age bands in display order.
var AgeBands = []string{"5-6", "7-8", "9-10"}

var bandAliases = map[string]string{
	"5-6": "5-6", "6-5": "5-6",
	"7-8": "7-8", "8-7": "7-8",
	"9-10": "9-10", "10-9": "9-10",
}

var imageExts = map[string]bool{".webp": true, ".jpg": true, ".png": true}

// Card is one sponsorable child. Availability is not part of the card; ask
// the availability store by ID.
type Card struct {
	ID          string `json:"id"`
	BackendRef  string `json:"ref,omitempty"`
	DisplayName string `json:"name"`
	AgeBand     string `json:"age_band"`
	Category    string `json:"category,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type Group struct {
	AgeBand string `json:"age_band"`
	Cards   []Card `json:"cards"`
}

// Catalog is an immutable set of cards keyed by ID.
type Catalog struct {
	cards []Card
	byID  map[string]Card
}

// New builds a catalog. Later duplicates of an ID are ignored.
func New(cards []Card) *Catalog {
	c := &Catalog{byID: make(map[string]Card, len(cards))}
	for _, card := range cards {
		if card.ID == "" {
			continue
		}
		if _, dup := c.byID[card.ID]; dup {
			continue
		}
		c.byID[card.ID] = card
		c.cards = append(c.cards, card)
	}
	sortCards(c.cards)
	return c
}

// AgeBandFromRef returns the canonical age band a ref or id starts with.
// Reversed bands such as "6-5" map to "5-6".
func AgeBandFromRef(ref string) (string, bool) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) < 3 || parts[2] == "" {
		return "", false
	}
	band, ok := bandAliases[parts[0]+"-"+parts[1]]
	return band, ok
}

// LoadAssets walks <ageBand>/<category>/<name>.(webp|jpg|png) and returns a
// catalog of the images found. Files that do not follow the layout are
// returned as skipped.
func LoadAssets(fsys fs.FS) (*Catalog, []string, error) {
	var cards []Card
	var skipped []string

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if !imageExts[ext] {
			return nil
		}
		parts := strings.Split(p, "/")
		if len(parts) != 3 {
			skipped = append(skipped, p)
			return nil
		}
		band, ok := bandAliases[parts[0]]
		if !ok {
			skipped = append(skipped, p)
			return nil
		}
		name := strings.TrimSuffix(parts[2], path.Ext(parts[2]))
		if strings.TrimSpace(name) == "" {
			skipped = append(skipped, p)
			return nil
		}
		cards = append(cards, Card{
			ID:          fmt.Sprintf("%s-%s-%s", band, parts[1], name),
			DisplayName: name,
			AgeBand:     band,
			Category:    parts[1],
			ImageURL:    p,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk assets: %w", err)
	}
	return New(cards), skipped, nil
}

// FromBackend builds a catalog from the backend card list, keyed by ref.
// Refs with no known age band are returned as skipped.
func FromBackend(list []backend.Card) (*Catalog, []string) {
	cards := make([]Card, 0, len(list))
	var skipped []string
	for _, bc := range list {
		band, ok := AgeBandFromRef(bc.Ref)
		if !ok {
			skipped = append(skipped, bc.Ref)
			continue
		}
		name := strings.TrimSpace(bc.Name)
		if name == "" {
			name = bc.Ref
		}
		cards = append(cards, Card{
			ID:          bc.Ref,
			BackendRef:  bc.Ref,
			DisplayName: name,
			AgeBand:     band,
			ImageURL:    bc.URL,
		})
	}
	return New(cards), skipped
}

func (c *Catalog) Len() int { return len(c.cards) }

func (c *Catalog) Cards() []Card {
	out := make([]Card, len(c.cards))
	copy(out, c.cards)
	return out
}

func (c *Catalog) Get(id string) (Card, bool) {
	card, ok := c.byID[id]
	return card, ok
}

func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.cards))
	for i, card := range c.cards {
		ids[i] = card.ID
	}
	return ids
}

// Names maps ids to display names, falling back to the id itself.
func (c *Catalog) Names(ids []string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		if card, ok := c.byID[id]; ok {
			names[i] = card.DisplayName
		} else {
			names[i] = id
		}
	}
	return names
}

// Groups returns the cards grouped by age band, known bands first.
func (c *Catalog) Groups() []Group {
	idx := map[string]int{}
	var groups []Group
	for _, card := range c.cards {
		i, ok := idx[card.AgeBand]
		if !ok {
			i = len(groups)
			idx[card.AgeBand] = i
			groups = append(groups, Group{AgeBand: card.AgeBand})
		}
		groups[i].Cards = append(groups[i].Cards, card)
	}
	return groups
}

// Registrar is satisfied by *availability.Store.
type Registrar interface {
	RegisterIfAbsent(ctx context.Context, cardIDs ...string) error
}

// Register makes every card known to the availability store in one batch.
func (c *Catalog) Register(ctx context.Context, r Registrar) error {
	if len(c.cards) == 0 {
		return nil
	}
	return r.RegisterIfAbsent(ctx, c.IDs()...)
}

type CardStore interface {
	UpsertCards(ctx context.Context, cards []storage.CardRecord) error
	ListCards(ctx context.Context) ([]storage.CardRecord, error)
}

func (c *Catalog) Save(ctx context.Context, s CardStore) error {
	recs := make([]storage.CardRecord, len(c.cards))
	for i, card := range c.cards {
		recs[i] = storage.CardRecord{
			ID:          card.ID,
			BackendRef:  card.BackendRef,
			DisplayName: card.DisplayName,
			AgeBand:     card.AgeBand,
			Category:    card.Category,
			ImageURL:    card.ImageURL,
		}
	}
	return s.UpsertCards(ctx, recs)
}

func Load(ctx context.Context, s CardStore) (*Catalog, error) {
	recs, err := s.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, len(recs))
	for i, r := range recs {
		cards[i] = Card{
			ID:          r.ID,
			BackendRef:  r.BackendRef,
			DisplayName: r.DisplayName,
			AgeBand:     r.AgeBand,
			Category:    r.Category,
			ImageURL:    r.ImageURL,
		}
	}
	return New(cards), nil
}

func bandRank(band string) int {
	for i, b := range AgeBands {
		if b == band {
			return i
		}
	}
	return len(AgeBands)
}

func sortCards(cards []Card) {
	col := collate.New(language.Spanish, collate.IgnoreCase)
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if ra, rb := bandRank(a.AgeBand), bandRank(b.AgeBand); ra != rb {
			return ra < rb
		}
		if a.AgeBand != b.AgeBand {
			return a.AgeBand < b.AgeBand
		}
		if c := col.CompareString(a.DisplayName, b.DisplayName); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
}
