package reservation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sw33tLie/sponsorcards/internal/clock"
	"github.com/sw33tLie/sponsorcards/pkg/availability"
	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/sw33tLie/sponsorcards/pkg/catalog"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

var (
	cardZ = catalog.Card{ID: "5-6-ninos-Zuleta", DisplayName: "Zuleta", AgeBand: "5-6"}
	cardW = catalog.Card{ID: "7-8-ninas-Wendy", DisplayName: "Wendy", AgeBand: "7-8"}
)

type fakeSubmitter struct {
	mu    sync.Mutex
	ref   string
	err   error
	gate  chan struct{}
	calls []backend.DonationPayload
}

func (f *fakeSubmitter) CreateDonation(ctx context.Context, p backend.DonationPayload) (*backend.Donation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	gate, ref, err := f.gate, f.ref, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &backend.Donation{Reference: ref}, nil
}

type env struct {
	mem   *storage.Memory
	store *availability.Store
	clk   *clock.Manual
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := storage.NewMemory()
	clk := clock.NewManual(time.Date(2024, 12, 5, 18, 30, 0, 0, time.UTC))
	store, err := availability.New(context.Background(), mem, availability.WithClock(clk))
	if err != nil {
		t.Fatal(err)
	}
	return &env{mem: mem, store: store, clk: clk}
}

// session is one donor's cart on top of the shared availability store.
func (e *env) session(t *testing.T, sub Submitter, cards ...catalog.Card) (*cart.Cart, *Workflow, *[]State) {
	t.Helper()
	ctx := context.Background()
	c, err := cart.Load(ctx, storage.NewMemory(), e.store)
	if err != nil {
		t.Fatal(err)
	}
	for _, card := range cards {
		if err := c.Add(ctx, card, 100000); err != nil {
			t.Fatal(err)
		}
	}
	var states []State
	var mu sync.Mutex
	w := New(c, e.store, sub, e.mem,
		WithClock(e.clk),
		WithIDGenerator(func() string { return "attempt-1" }),
		OnTransition(func(from, to State) {
			mu.Lock()
			states = append(states, to)
			mu.Unlock()
		}),
	)
	return c, w, &states
}

func (e *env) audit(t *testing.T) []storage.AuditEntry {
	t.Helper()
	entries, err := e.mem.ListAudit(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestCheckoutHandsOff(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := &fakeSubmitter{ref: "DON-77"}
	c, w, states := e.session(t, sub, cardZ, cardW)
	if err := c.SetVoluntary(ctx, 20000); err != nil {
		t.Fatal(err)
	}

	h, err := w.Checkout(ctx, validDonor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Reference != "DON-77" || h.AttemptID != "attempt-1" || h.Totals.GrandTotal != 220000 {
		t.Fatalf("unexpected handoff %+v", h)
	}
	if !reflect.DeepEqual(h.Names, []string{"Zuleta", "Wendy"}) {
		t.Fatalf("unexpected names %v", h.Names)
	}
	if c.Len() != 0 || c.Totals().GrandTotal != 0 {
		t.Fatalf("cart not cleared: %+v", c.Items())
	}
	for _, id := range []string{cardZ.ID, cardW.ID} {
		if e.store.IsAvailable(id) {
			t.Fatalf("%s should be reserved", id)
		}
	}
	wantStates := []State{Validating, Reserving, Submitting, HandedOff}
	if !reflect.DeepEqual(*states, wantStates) {
		t.Fatalf("states = %v, want %v", *states, wantStates)
	}
	if len(sub.calls) != 1 || sub.calls[0].PeopleDonor != "Nombre: Zuleta, Valor: 100000 | Nombre: Wendy, Valor: 100000" {
		t.Fatalf("unexpected submissions %+v", sub.calls)
	}

	info, err := e.mem.LoadDonationInfo(ctx, "DON-77")
	if err != nil || info == nil {
		t.Fatalf("donation info not saved: %v", err)
	}
	if info.Reference != "DON-77" || info.Total != 220000 || info.Email != "ana.perez@example.com" {
		t.Fatalf("unexpected donation info %+v", info)
	}

	entries := e.audit(t)
	if len(entries) != 2 || entries[0].Action != storage.ActionHandedOff || entries[1].Action != storage.ActionMarkedAsDonated {
		t.Fatalf("unexpected audit log %+v", entries)
	}
	if entries[0].AttemptID != "attempt-1" || entries[0].Detail != "DON-77" {
		t.Fatalf("unexpected handoff entry %+v", entries[0])
	}
}

// Scenario D: the backend fails after the local reservation.
func TestSubmissionFailureKeepsReservation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := &fakeSubmitter{err: errors.New("dial tcp: connection refused")}
	c, w, _ := e.session(t, sub, cardZ, cardW)

	_, err := w.Checkout(ctx, validDonor())
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	var se *SubmissionError
	if !errors.As(err, &se) || !reflect.DeepEqual(se.Names, []string{"Zuleta", "Wendy"}) {
		t.Fatalf("expected the error to name the reserved cards, got %v", err)
	}
	if w.State() != SubmissionFailed {
		t.Fatalf("state = %s, want %s", w.State(), SubmissionFailed)
	}
	for _, id := range []string{cardZ.ID, cardW.ID} {
		if e.store.IsAvailable(id) {
			t.Fatalf("%s was released after a failed submission", id)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("cart should only be cleared on handoff, got %d items", c.Len())
	}
	entries := e.audit(t)
	if entries[0].Action != storage.ActionSubmissionFailed || entries[0].AttemptID != "attempt-1" {
		t.Fatalf("stranded cards not recorded: %+v", entries[0])
	}

	// Retrying finds its own cards taken and empties the cart.
	_, err = w.Checkout(ctx, validDonor())
	if !errors.Is(err, ErrCartEmptied) || !errors.Is(err, cart.ErrCardUnavailable) {
		t.Fatalf("expected an emptied cart on retry, got %v", err)
	}
	if w.State() != ValidationFailed {
		t.Fatalf("state = %s", w.State())
	}
}

func TestMissingReferenceIsFatal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := &fakeSubmitter{err: backend.ErrMissingReference}
	_, w, _ := e.session(t, sub, cardZ)

	_, err := w.Checkout(ctx, validDonor())
	if !errors.Is(err, ErrMissingReference) || !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected a missing reference failure, got %v", err)
	}
	if e.store.IsAvailable(cardZ.ID) {
		t.Fatalf("reservation must stay in place")
	}
	if got := e.audit(t)[0].Action; got != storage.ActionMissingReference {
		t.Fatalf("audit action = %q", got)
	}
	if pending, _ := e.mem.PendingDonations(ctx); len(pending) != 0 {
		t.Fatalf("donation info saved without a reference: %+v", pending)
	}
}

func TestValidationRemovesTakenCards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := &fakeSubmitter{ref: "DON-1"}
	c, w, states := e.session(t, sub, cardZ, cardW)

	if err := e.store.MarkUnavailable(ctx, []string{cardW.ID}); err != nil {
		t.Fatal(err)
	}

	_, err := w.Checkout(ctx, validDonor())
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnavailableError, got %v", err)
	}
	if !reflect.DeepEqual(ue.Names, []string{"Wendy"}) || ue.CartEmptied || errors.Is(err, ErrCartEmptied) {
		t.Fatalf("unexpected error %+v", ue)
	}
	if !reflect.DeepEqual(*states, []State{Validating, ValidationFailed}) {
		t.Fatalf("states = %v", *states)
	}
	if items := c.Items(); len(items) != 1 || items[0].CardID != cardZ.ID {
		t.Fatalf("unexpected cart %+v", items)
	}
	if !e.store.IsAvailable(cardZ.ID) || len(sub.calls) != 0 {
		t.Fatalf("nothing should be reserved or submitted on validation failure")
	}

	// The pruned cart can check out.
	if _, err := w.Checkout(ctx, validDonor()); err != nil {
		t.Fatalf("second checkout: %v", err)
	}
}

func TestCheckoutRejectsEmptyCartAndBadDonor(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := &fakeSubmitter{ref: "DON-1"}

	_, empty, _ := e.session(t, sub)
	if _, err := empty.Checkout(ctx, validDonor()); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if empty.State() != Idle {
		t.Fatalf("empty cart should not leave idle, got %s", empty.State())
	}

	_, w, _ := e.session(t, sub, cardZ)
	bad := validDonor()
	bad.Phone = "123"
	if _, err := w.Checkout(ctx, bad); !errors.Is(err, ErrInvalidDonor) {
		t.Fatalf("expected ErrInvalidDonor, got %v", err)
	}
	if !e.store.IsAvailable(cardZ.ID) || w.State() != ValidationFailed {
		t.Fatalf("invalid donor must not reserve anything")
	}
}

// barrierStore holds every MarkUnavailable call until all sessions have
// passed validation.
type barrierStore struct {
	*availability.Store
	arrived sync.WaitGroup
}

func (b *barrierStore) MarkUnavailable(ctx context.Context, ids []string) error {
	b.arrived.Done()
	b.arrived.Wait()
	return b.Store.MarkUnavailable(ctx, ids)
}

// Scenario C: two checkouts race for the same card.
func TestConcurrentCheckoutsOneWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	barrier := &barrierStore{Store: e.store}
	barrier.arrived.Add(2)

	var workflows []*Workflow
	var carts []*cart.Cart
	for i := 0; i < 2; i++ {
		c, err := cart.Load(ctx, storage.NewMemory(), e.store)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Add(ctx, cardZ, 90000); err != nil {
			t.Fatal(err)
		}
		carts = append(carts, c)
		sub := &fakeSubmitter{ref: fmt.Sprintf("DON-%d", i)}
		workflows = append(workflows, New(c, barrier, sub, e.mem))
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, w := range workflows {
		wg.Add(1)
		go func(i int, w *Workflow) {
			defer wg.Done()
			_, errs[i] = w.Checkout(ctx, validDonor())
		}(i, w)
	}
	wg.Wait()

	var wins, conflicts int
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrReservationConflict):
			conflicts++
			var ce *ConflictError
			if !errors.As(err, &ce) || !reflect.DeepEqual(ce.Names, []string{"Zuleta"}) {
				t.Fatalf("conflict should name Zuleta, got %v", err)
			}
			if carts[i].Len() != 1 {
				t.Fatalf("losing cart should be left intact")
			}
			if workflows[i].State() != SubmissionFailed {
				t.Fatalf("losing workflow state = %s", workflows[i].State())
			}
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins=%d conflicts=%d, want 1 and 1", wins, conflicts)
	}
	if e.store.IsAvailable(cardZ.ID) {
		t.Fatalf("Zuleta should be reserved")
	}
}

func TestCheckoutInProgress(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := &fakeSubmitter{ref: "DON-1", gate: make(chan struct{})}
	_, w, _ := e.session(t, sub, cardZ)

	done := make(chan error, 1)
	go func() {
		_, err := w.Checkout(ctx, validDonor())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for w.State() != Submitting {
		select {
		case <-deadline:
			t.Fatal("first checkout never reached submitting")
		case <-time.After(time.Millisecond):
		}
	}
	if _, err := w.Checkout(ctx, validDonor()); !errors.Is(err, ErrCheckoutInProgress) {
		t.Fatalf("expected ErrCheckoutInProgress, got %v", err)
	}
	close(sub.gate)
	if err := <-done; err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
}

// addDuringCheck adds a card to the cart the first time availability is
// checked, like a concurrent request landing mid-checkout.
type addDuringCheck struct {
	*availability.Store
	once sync.Once
	add  func()
}

func (a *addDuringCheck) IsAvailable(id string) bool {
	a.once.Do(a.add)
	return a.Store.IsAvailable(id)
}

func TestCheckoutChargesOnlyReservedCards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, err := cart.Load(ctx, storage.NewMemory(), e.store)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Add(ctx, cardZ, 100000); err != nil {
		t.Fatal(err)
	}
	if err := c.SetVoluntary(ctx, 10000); err != nil {
		t.Fatal(err)
	}

	store := &addDuringCheck{Store: e.store, add: func() {
		if err := c.Add(ctx, cardW, 250000); err != nil {
			t.Errorf("concurrent add: %v", err)
		}
	}}
	sub := &fakeSubmitter{ref: "DON-5"}
	w := New(c, store, sub, e.mem, WithClock(e.clk))

	h, err := w.Checkout(ctx, validDonor())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !reflect.DeepEqual(h.CardIDs, []string{cardZ.ID}) {
		t.Fatalf("reserved %v, want only %s", h.CardIDs, cardZ.ID)
	}
	want := cart.Totals{CardsTotal: 100000, VoluntaryTotal: 10000, GrandTotal: 110000}
	if h.Totals != want {
		t.Fatalf("charged %+v, want %+v", h.Totals, want)
	}
	if !e.store.IsAvailable(cardW.ID) {
		t.Fatalf("the card added mid-checkout must not be reserved")
	}
}
