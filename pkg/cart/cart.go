package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sw33tLie/sponsorcards/pkg/catalog"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

var (
	ErrBelowMinimum     = errors.New("pledge below the minimum donation")
	ErrCardUnavailable  = errors.New("card is no longer available")
	ErrNegativeDonation = errors.New("voluntary donation cannot be negative")
)

type BelowMinimumError struct {
	Amount  int64
	Minimum int64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("la donación mínima por carta es de %s (recibido %s)", FormatPrice(e.Minimum), FormatPrice(e.Amount))
}

func (e *BelowMinimumError) Is(target error) bool { return target == ErrBelowMinimum }

type UnavailableError struct {
	CardID string
	Name   string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("la carta de %s ya fue donada, por favor elige otra", e.Name)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrCardUnavailable }

// Item is one selected card and its pledge.
type Item struct {
	CardID string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

type Totals struct {
	CardsTotal     int64 `json:"cards_total"`
	VoluntaryTotal int64 `json:"voluntary_total"`
	GrandTotal     int64 `json:"grand_total"`
}

// AvailabilityChecker is satisfied by *availability.Store and by the reconciler.
type AvailabilityChecker interface {
	IsAvailable(cardID string) bool
}

type Persister interface {
	LoadCart(ctx context.Context) (storage.CartRecord, error)
	SaveCart(ctx context.Context, rec storage.CartRecord) error
	ClearCart(ctx context.Context) error
}

type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Listener receives the items and totals after every change.
type Listener func(items []Item, totals Totals)

// Cart is the persisted selection of cards plus one voluntary amount. At most
// one item exists per card id.
type Cart struct {
	mu        sync.Mutex
	items     []Item
	voluntary int64
	p         Persister
	avail     AvailabilityChecker
	minimum   int64
	log       Logger

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

type Option func(*Cart)

// WithMinimum overrides MinimumDonation.
func WithMinimum(amount int64) Option {
	return func(c *Cart) {
		if amount > 0 {
			c.minimum = amount
		}
	}
}

func WithLogger(l Logger) Option {
	return func(c *Cart) {
		if l != nil {
			c.log = l
		}
	}
}

// Load restores the persisted cart. Items whose card is no longer available
// are dropped and the pruned cart is saved back.
func Load(ctx context.Context, p Persister, avail AvailabilityChecker, opts ...Option) (*Cart, error) {
	c := &Cart{
		p:         p,
		avail:     avail,
		minimum:   MinimumDonation,
		log:       nopLogger{},
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		opt(c)
	}

	rec, err := p.LoadCart(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	seen := map[string]bool{}
	for _, it := range rec.Items {
		if it.CardID == "" || seen[it.CardID] {
			continue
		}
		seen[it.CardID] = true
		c.items = append(c.items, Item{CardID: it.CardID, Name: it.Name, Amount: it.Amount})
	}
	if rec.Voluntary > 0 {
		c.voluntary = rec.Voluntary
	}

	removed, err := c.Prune(ctx)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		c.log.Warnf("Removed %d already donated card(s) from the cart", len(removed))
	}
	return c, nil
}

func (c *Cart) Minimum() int64 { return c.minimum }

// Add upserts a card with its pledge. An existing item keeps its position
// and gets the new amount.
func (c *Cart) Add(ctx context.Context, card catalog.Card, amount int64) error {
	if amount < c.minimum {
		return &BelowMinimumError{Amount: amount, Minimum: c.minimum}
	}
	if !c.avail.IsAvailable(card.ID) {
		return &UnavailableError{CardID: card.ID, Name: card.DisplayName}
	}

	c.mu.Lock()
	next := c.copyItems()
	item := Item{CardID: card.ID, Name: card.DisplayName, Amount: amount}
	replaced := false
	for i := range next {
		if next[i].CardID == card.ID {
			next[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, item)
	}
	return c.commitLocked(ctx, next, c.voluntary)
}

// Remove drops a card. Removing an absent card is not an error.
func (c *Cart) Remove(ctx context.Context, cardID string) error {
	c.mu.Lock()
	next := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if it.CardID != cardID {
			next = append(next, it)
		}
	}
	if len(next) == len(c.items) {
		c.mu.Unlock()
		return nil
	}
	return c.commitLocked(ctx, next, c.voluntary)
}

// SetVoluntaryAmount accepts user input; anything that is not a non-negative
// amount becomes 0.
func (c *Cart) SetVoluntaryAmount(ctx context.Context, input string) error {
	return c.SetVoluntary(ctx, ParseAmount(input))
}

func (c *Cart) SetVoluntary(ctx context.Context, amount int64) error {
	if amount < 0 {
		return ErrNegativeDonation
	}
	c.mu.Lock()
	if amount == c.voluntary {
		c.mu.Unlock()
		return nil
	}
	return c.commitLocked(ctx, c.copyItems(), amount)
}

// Prune removes every item whose card is unavailable and returns them.
func (c *Cart) Prune(ctx context.Context) ([]Item, error) {
	c.mu.Lock()
	var keep, removed []Item
	for _, it := range c.items {
		if c.avail.IsAvailable(it.CardID) {
			keep = append(keep, it)
		} else {
			removed = append(removed, it)
		}
	}
	if len(removed) == 0 {
		c.mu.Unlock()
		return nil, nil
	}
	if err := c.commitLocked(ctx, keep, c.voluntary); err != nil {
		return nil, err
	}
	return removed, nil
}

// Clear empties the cart and wipes its persisted copy.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	if err := c.p.ClearCart(ctx); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("clear cart: %w", err)
	}
	c.items = nil
	c.voluntary = 0
	c.mu.Unlock()

	c.broadcast(nil, Totals{})
	return nil
}

func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyItems()
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) Contains(cardID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.CardID == cardID {
			return true
		}
	}
	return false
}

func (c *Cart) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return totals(c.items, c.voluntary)
}

// Snapshot returns the items and the totals they add up to, read together.
func (c *Cart) Snapshot() ([]Item, Totals) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyItems(), totals(c.items, c.voluntary)
}

// Subscribe registers l and returns a function that removes it.
func (c *Cart) Subscribe(l Listener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			delete(c.listeners, id)
			c.listenersMu.Unlock()
		})
	}
}

// commitLocked persists next, applies it and releases c.mu before notifying.
func (c *Cart) commitLocked(ctx context.Context, next []Item, voluntary int64) error {
	rec := storage.CartRecord{Voluntary: voluntary}
	for _, it := range next {
		rec.Items = append(rec.Items, storage.CartItemRecord{CardID: it.CardID, Name: it.Name, Amount: it.Amount})
	}
	if err := c.p.SaveCart(ctx, rec); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("save cart: %w", err)
	}
	c.items = next
	c.voluntary = voluntary
	items := c.copyItems()
	t := totals(items, voluntary)
	c.mu.Unlock()

	c.broadcast(items, t)
	return nil
}

func (c *Cart) copyItems() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) broadcast(items []Item, t Totals) {
	c.listenersMu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if l, ok := c.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	c.listenersMu.Unlock()

	for _, l := range ls {
		cp := make([]Item, len(items))
		copy(cp, items)
		l(cp, t)
	}
}

func totals(items []Item, voluntary int64) Totals {
	var t Totals
	for _, it := range items {
		t.CardsTotal += it.Amount
	}
	t.VoluntaryTotal = voluntary
	t.GrandTotal = t.CardsTotal + voluntary
	return t
}
