package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sw33tLie/sponsorcards/internal/clock"
	"github.com/sw33tLie/sponsorcards/internal/utils"
	"github.com/sw33tLie/sponsorcards/pkg/availability"
	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

type State int

const (
	Idle State = iota
	Validating
	ValidationFailed
	Reserving
	Submitting
	SubmissionFailed
	HandedOff
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case ValidationFailed:
		return "validation_failed"
	case Reserving:
		return "reserving"
	case Submitting:
		return "submitting"
	case SubmissionFailed:
		return "submission_failed"
	case HandedOff:
		return "handed_off"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Resting reports whether a checkout may start from s.
func (s State) Resting() bool {
	return s == Idle || s == ValidationFailed || s == SubmissionFailed || s == HandedOff
}

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrCartEmptied         = errors.New("every card in the cart was taken, pick new cards")
	ErrCheckoutInProgress  = errors.New("a checkout is already in progress")
	ErrReservationConflict = errors.New("cards were reserved by another donation first")
	ErrSubmissionFailed    = errors.New("donation could not be registered")
	ErrMissingReference    = backend.ErrMissingReference
)

// UnavailableError lists cart cards found taken during validation. They
// have already been removed from the cart.
type UnavailableError struct {
	IDs         []string
	Names       []string
	CartEmptied bool
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("ya no están disponibles: %s", utils.JoinNames(e.Names))
	if e.CartEmptied {
		msg += "; el carrito quedó vacío, por favor elige otras cartas"
	}
	return msg
}

func (e *UnavailableError) Is(target error) bool {
	return target == cart.ErrCardUnavailable || (e.CartEmptied && target == ErrCartEmptied)
}

// ConflictError means the local reservation lost against a concurrent
// checkout. The cart is left as it was.
type ConflictError struct {
	IDs   []string
	Names []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrReservationConflict, utils.JoinNames(e.Names))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrReservationConflict || target == availability.ErrConflict
}

// SubmissionError is a failure after the cards were reserved locally. The
// reservation stays in place.
type SubmissionError struct {
	AttemptID string
	IDs       []string
	Names     []string
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s (cartas reservadas: %s): %v", ErrSubmissionFailed, utils.JoinNames(e.Names), e.Err)
}

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionFailed }

func (e *SubmissionError) Unwrap() error { return e.Err }

// Reserver is satisfied by *availability.Store.
type Reserver interface {
	IsAvailable(cardID string) bool
	MarkUnavailable(ctx context.Context, cardIDs []string) error
}

// Submitter is satisfied by *backend.Client.
type Submitter interface {
	CreateDonation(ctx context.Context, p backend.DonationPayload) (*backend.Donation, error)
}

// Recorder keeps the audit log and the donation info read by the payment callback.
type Recorder interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
	SaveDonationInfo(ctx context.Context, info storage.DonationInfo) error
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

// Handoff is what a successful checkout passes to the payment redirect.
type Handoff struct {
	Reference  string      `json:"reference"`
	DonationID string      `json:"donation_id,omitempty"`
	AttemptID  string      `json:"attempt_id"`
	CardIDs    []string    `json:"card_ids"`
	Names      []string    `json:"names"`
	Totals     cart.Totals `json:"totals"`
}

type Workflow struct {
	cart      *cart.Cart
	store     Reserver
	submitter Submitter
	rec       Recorder
	clock     clock.Clock
	log       Logger
	newID     func() string
	onChange  func(from, to State)

	mu      sync.Mutex
	state   State
	running bool
}

type Option func(*Workflow)

func WithClock(c clock.Clock) Option {
	return func(w *Workflow) {
		if c != nil {
			w.clock = c
		}
	}
}

func WithLogger(l Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.log = l
		}
	}
}

// WithIDGenerator replaces the UUID attempt ids.
func WithIDGenerator(f func() string) Option {
	return func(w *Workflow) {
		if f != nil {
			w.newID = f
		}
	}
}

// OnTransition registers a hook called on every state change, outside any lock.
func OnTransition(f func(from, to State)) Option {
	return func(w *Workflow) { w.onChange = f }
}

func New(c *cart.Cart, store Reserver, submitter Submitter, rec Recorder, opts ...Option) *Workflow {
	w := &Workflow{
		cart:      c,
		store:     store,
		submitter: submitter,
		rec:       rec,
		clock:     clock.NewSystem(),
		log:       nopLogger{},
		newID:     uuid.NewString,
		state:     Idle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Checkout runs validation, local reservation and backend submission. Once
// the cards are reserved locally the reservation is never undone here, even
// when the submission fails.
func (w *Workflow) Checkout(ctx context.Context, d Donor) (*Handoff, error) {
	w.mu.Lock()
	if w.running || !w.state.Resting() {
		w.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	if w.cart.Len() == 0 {
		w.mu.Unlock()
		return nil, ErrEmptyCart
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.transition(Validating)
	if err := d.Validate(); err != nil {
		w.transition(ValidationFailed)
		return nil, err
	}
	items, totals, err := w.validateCart(ctx)
	if err != nil {
		w.transition(ValidationFailed)
		return nil, err
	}

	ids := make([]string, len(items))
	names := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.CardID
		names[i] = it.Name
	}

	w.transition(Reserving)
	if err := w.store.MarkUnavailable(ctx, ids); err != nil {
		w.transition(SubmissionFailed)
		var ce *availability.ConflictError
		if errors.As(err, &ce) {
			w.log.Warnf("Reservation conflict on %v", ce.IDs)
			return nil, &ConflictError{IDs: ce.IDs, Names: namesFor(items, ce.IDs)}
		}
		return nil, fmt.Errorf("reserve cards: %w", err)
	}

	attemptID := w.newID()
	payload := BuildPayload(d, items)
	w.transition(Submitting)
	donation, err := w.submitter.CreateDonation(ctx, payload)
	if err != nil {
		action := storage.ActionSubmissionFailed
		if errors.Is(err, ErrMissingReference) {
			action = storage.ActionMissingReference
		}
		w.audit(ctx, attemptID, ids, action, err.Error())
		w.log.Errorf("Donation %s failed after reserving %v: %v", attemptID, ids, err)
		w.transition(SubmissionFailed)
		return nil, &SubmissionError{AttemptID: attemptID, IDs: ids, Names: names, Err: err}
	}

	if err := w.cart.Clear(ctx); err != nil {
		w.log.Errorf("Could not clear the cart after donation %s: %v", donation.Reference, err)
	}
	info := storage.DonationInfo{
		Reference:  donation.Reference,
		AttemptID:  attemptID,
		CardIDs:    ids,
		Names:      names,
		Email:      payload.Email,
		CardsTotal: totals.CardsTotal,
		Voluntary:  totals.VoluntaryTotal,
		Total:      totals.GrandTotal,
		CreatedAt:  w.clock.Now(),
	}
	if err := w.rec.SaveDonationInfo(ctx, info); err != nil {
		w.log.Warnf("Could not save donation info for %s: %v", donation.Reference, err)
	}
	w.audit(ctx, attemptID, ids, storage.ActionHandedOff, donation.Reference)
	w.transition(HandedOff)
	w.log.Infof("Donation %s registered for %s", donation.Reference, utils.JoinNames(names))

	return &Handoff{
		Reference:  donation.Reference,
		DonationID: donation.ID,
		AttemptID:  attemptID,
		CardIDs:    ids,
		Names:      names,
		Totals:     totals,
	}, nil
}

// validateCart re-checks every cart card against the store and removes the
// taken ones. The items and totals it returns come from one cart snapshot,
// so the charged amount covers exactly the cards that get reserved.
func (w *Workflow) validateCart(ctx context.Context) ([]cart.Item, cart.Totals, error) {
	items, totals := w.cart.Snapshot()
	var taken []cart.Item
	for _, it := range items {
		if !w.store.IsAvailable(it.CardID) {
			taken = append(taken, it)
		}
	}
	if len(taken) == 0 {
		return items, totals, nil
	}

	ue := &UnavailableError{}
	for _, it := range taken {
		ue.IDs = append(ue.IDs, it.CardID)
		ue.Names = append(ue.Names, it.Name)
		if err := w.cart.Remove(ctx, it.CardID); err != nil {
			return nil, cart.Totals{}, err
		}
	}
	ue.CartEmptied = w.cart.Len() == 0
	return nil, cart.Totals{}, ue
}

func (w *Workflow) transition(to State) {
	w.mu.Lock()
	from := w.state
	w.state = to
	hook := w.onChange
	w.mu.Unlock()

	w.log.Debugf("Checkout %s -> %s", from, to)
	if hook != nil {
		hook(from, to)
	}
}

func (w *Workflow) audit(ctx context.Context, attemptID string, ids []string, action, detail string) {
	err := w.rec.AppendAudit(ctx, storage.AuditEntry{
		OccurredAt: w.clock.Now(),
		AttemptID:  attemptID,
		CardIDs:    ids,
		Action:     action,
		Detail:     detail,
	})
	if err != nil {
		w.log.Warnf("Could not write %s audit entry: %v", action, err)
	}
}

func namesFor(items []cart.Item, ids []string) []string {
	byID := make(map[string]string, len(items))
	for _, it := range items {
		byID[it.CardID] = it.Name
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		if n, ok := byID[id]; ok {
			names[i] = n
		} else {
			names[i] = id
		}
	}
	return names
}
