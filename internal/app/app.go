package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sync"
	"time"

	"github.com/sw33tLie/sponsorcards/internal/clock"
	"github.com/sw33tLie/sponsorcards/pkg/availability"
	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/sw33tLie/sponsorcards/pkg/catalog"
	"github.com/sw33tLie/sponsorcards/pkg/payment"
	"github.com/sw33tLie/sponsorcards/pkg/polling"
	"github.com/sw33tLie/sponsorcards/pkg/reservation"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

var (
	ErrUnknownCard = errors.New("unknown card")
	ErrNoCards     = errors.New("no cards to release")
)

// Persistence is everything the application stores locally. *storage.DB and
// *storage.Memory both satisfy it.
type Persistence interface {
	availability.Persister
	cart.Persister
	catalog.CardStore
	reservation.Recorder
	payment.InfoStore
	ListAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

// Backend is the remote card and donation API. *backend.Client satisfies it.
type Backend interface {
	polling.CardSource
	reservation.Submitter
}

type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type Options struct {
	Persistence Persistence
	Backend     Backend
	Payment     payment.Config
	SyncExpiry  time.Duration
	Minimum     int64
	Clock       clock.Clock
	Log         Logger
}

// App wires the availability store, catalog, cart, reconciler, checkout
// workflow and payment handler over one persistence backend.
type App struct {
	persist    Persistence
	clock      clock.Clock
	log        Logger
	Store      *availability.Store
	Cart       *cart.Cart
	Reconciler *polling.Reconciler
	Workflow   *reservation.Workflow
	Payment    payment.Config
	Outcomes   *payment.Handler

	mu  sync.RWMutex
	cat *catalog.Catalog
}

// CardView is a catalog card with its current availability.
type CardView struct {
	catalog.Card
	Available bool `json:"available"`
}

type Stats struct {
	availability.Stats
	Sync polling.Status `json:"sync"`
}

// CheckoutResult is a handoff plus where to send the donor.
type CheckoutResult struct {
	*reservation.Handoff
	RedirectURL string `json:"redirect_url"`
}

func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Persistence == nil || opts.Backend == nil {
		return nil, errors.New("app: persistence and backend are required")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}

	store, err := availability.New(ctx, opts.Persistence, availability.WithClock(clk), availability.WithLogger(log))
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Load(ctx, opts.Persistence)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := cat.Register(ctx, store); err != nil {
		return nil, fmt.Errorf("register catalog: %w", err)
	}

	rec := polling.New(polling.Config{
		Source: opts.Backend,
		Store:  store,
		Clock:  clk,
		Expiry: opts.SyncExpiry,
		Log:    log,
	})
	c, err := cart.Load(ctx, opts.Persistence, store, cart.WithMinimum(opts.Minimum), cart.WithLogger(log))
	if err != nil {
		return nil, err
	}

	return &App{
		persist:    opts.Persistence,
		clock:      clk,
		log:        log,
		Store:      store,
		cat:        cat,
		Cart:       c,
		Reconciler: rec,
		Workflow: reservation.New(c, store, opts.Backend, opts.Persistence,
			reservation.WithClock(clk), reservation.WithLogger(log)),
		Payment:  opts.Payment,
		Outcomes: payment.NewHandler(opts.Persistence, clk, log),
	}, nil
}

// Cards lists the catalog with availability. Reads never wait for the
// backend; a stale cache schedules a background sync.
func (a *App) Cards(onlyAvailable bool) []CardView {
	var out []CardView
	for _, c := range a.Catalog().Cards() {
		v := CardView{Card: c, Available: a.Reconciler.IsAvailable(c.ID)}
		if onlyAvailable && !v.Available {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (a *App) Stats() Stats {
	return Stats{Stats: a.Store.Stats(), Sync: a.Reconciler.Status()}
}

func (a *App) Sync(ctx context.Context) (*polling.Result, error) {
	return a.Reconciler.Sync(ctx)
}

// ImportFromBackend adds the backend card list to the catalog and merges its
// donated flags in the same sync. Backend data wins for ids already known.
func (a *App) ImportFromBackend(ctx context.Context) (*polling.Result, error) {
	return a.Reconciler.SyncWith(ctx, func(ctx context.Context, list []backend.Card) error {
		cat, skipped := catalog.FromBackend(list)
		for _, ref := range skipped {
			a.log.Warnf("Skipping backend card %q: no known age band", ref)
		}
		merged := catalog.New(append(cat.Cards(), a.Catalog().Cards()...))
		return a.useCatalog(ctx, merged)
	})
}

// ImportAssets adds the cards found in an asset tree to the catalog.
func (a *App) ImportAssets(ctx context.Context, fsys fs.FS) (int, error) {
	cat, skipped, err := catalog.LoadAssets(fsys)
	if err != nil {
		return 0, err
	}
	for _, p := range skipped {
		a.log.Warnf("Skipping %s: expected <age band>/<category>/<name>.(webp|jpg|png)", p)
	}
	merged := catalog.New(append(a.Catalog().Cards(), cat.Cards()...))
	if err := a.useCatalog(ctx, merged); err != nil {
		return 0, err
	}
	return cat.Len(), nil
}

func (a *App) useCatalog(ctx context.Context, cat *catalog.Catalog) error {
	if err := cat.Save(ctx, a.persist); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	if err := cat.Register(ctx, a.Store); err != nil {
		return fmt.Errorf("register catalog: %w", err)
	}
	a.mu.Lock()
	a.cat = cat
	a.mu.Unlock()
	return nil
}

// Catalog returns the current catalog. A catalog is immutable; imports
// swap in a new one.
func (a *App) Catalog() *catalog.Catalog {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cat
}

func (a *App) AddToCart(ctx context.Context, cardID string, amount int64) error {
	card, ok := a.Catalog().Get(cardID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
	}
	return a.Cart.Add(ctx, card, amount)
}

// RedirectError is a payment redirect failure after the donation was
// registered. The cards stay reserved under Reference.
type RedirectError struct {
	Reference string
	Err       error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("donation %s registered but the payment redirect failed: %v", e.Reference, e.Err)
}

func (e *RedirectError) Unwrap() error { return e.Err }

// Checkout runs the reservation workflow and builds the payment redirect.
// A checkout that cannot be paid for is refused before any card is reserved.
// If the redirect still fails after the handoff, the result is returned
// along with a *RedirectError.
func (a *App) Checkout(ctx context.Context, d reservation.Donor) (*CheckoutResult, error) {
	if err := a.Payment.Validate(); err != nil {
		return nil, err
	}
	h, err := a.Workflow.Checkout(ctx, d)
	if err != nil {
		return nil, err
	}
	redirect, err := a.Payment.CheckoutURL(h.Totals.GrandTotal, h.Reference)
	if err != nil {
		a.log.Errorf("Donation %s registered without a payment redirect: %v", h.Reference, err)
		return &CheckoutResult{Handoff: h}, &RedirectError{Reference: h.Reference, Err: err}
	}
	return &CheckoutResult{Handoff: h, RedirectURL: redirect}, nil
}

func (a *App) HandleCallback(ctx context.Context, q url.Values) (*payment.Outcome, error) {
	return a.Outcomes.Handle(ctx, payment.ParseCallback(q))
}

// Release makes stranded cards available again.
func (a *App) Release(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrNoCards
	}
	return a.Store.Release(ctx, ids)
}

func (a *App) Reset(ctx context.Context) error {
	return a.Store.Reset(ctx)
}

func (a *App) AuditLog(ctx context.Context, limit int) ([]storage.AuditEntry, error) {
	return a.persist.ListAudit(ctx, limit)
}

// PendingDonations lists the donations waiting for their payment callback,
// newest first.
func (a *App) PendingDonations(ctx context.Context) ([]storage.DonationInfo, error) {
	return a.persist.PendingDonations(ctx)
}

// Names resolves card ids to display names for messages.
func (a *App) Names(ids []string) []string {
	return a.Catalog().Names(ids)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}
