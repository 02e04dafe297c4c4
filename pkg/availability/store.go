package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sw33tLie/sponsorcards/internal/clock"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

// ErrConflict is returned by MarkUnavailable when some card in the batch was
// already taken. Use errors.As with *ConflictError to get the ids.
var ErrConflict = errors.New("cards already taken")

// ConflictError names the ids that made a MarkUnavailable batch fail.
type ConflictError struct {
	IDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict, strings.Join(e.IDs, ", "))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Persister is the durable backend of a Store. storage.DB and storage.Memory
// both satisfy it.
type Persister interface {
	LoadAvailability(ctx context.Context) (map[string]bool, error)
	SaveAvailability(ctx context.Context, state map[string]bool) error
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Listener receives the full availability state after every change.
type Listener func(state map[string]bool)

// Stats summarizes the known cards.
type Stats struct {
	Donated   int `json:"donated"`
	Available int `json:"available"`
	Total     int `json:"total"`
}

// Store holds the available flag of every card id seen so far. Absence of an
// entry means available. All mutations persist before they become visible
// and are broadcast to listeners afterwards. Listeners see snapshots in
// write order; a snapshot older than one already delivered is dropped.
type Store struct {
	mu        sync.Mutex
	state     map[string]bool
	version   uint64
	persister Persister
	clock     clock.Clock
	log       Logger

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int

	notifyMu  sync.Mutex
	delivered uint64
}

type Option func(*Store)

// WithClock sets the clock used to stamp audit entries.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger. Audit write failures are reported through it.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New loads the persisted state and returns a ready Store.
func New(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	state, err := p.LoadAvailability(ctx)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if state == nil {
		state = map[string]bool{}
	}
	s := &Store{
		state:     state,
		persister: p,
		clock:     clock.NewSystem(),
		log:       nopLogger{},
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IsAvailable is false only when an explicit false entry exists.
func (s *Store) IsAvailable(cardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[cardID]
	return !ok || v
}

func (s *Store) has(cardID string) bool {
	_, ok := s.state[cardID]
	return ok
}

// MarkUnavailable reserves every id in the batch or none of them. If any id is
// already unavailable, it returns a *ConflictError naming them and changes nothing.
func (s *Store) MarkUnavailable(ctx context.Context, cardIDs []string) error {
	ids := dedupe(cardIDs)
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	var rejected []string
	for _, id := range ids {
		if v, ok := s.state[id]; ok && !v {
			rejected = append(rejected, id)
		}
	}
	if len(rejected) > 0 {
		s.mu.Unlock()
		return &ConflictError{IDs: rejected}
	}

	next := s.copyState()
	for _, id := range ids {
		next[id] = false
	}
	if err := s.persister.SaveAvailability(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist availability: %w", err)
	}
	s.state = next
	s.version++
	v, snapshot := s.version, s.copyState()
	s.mu.Unlock()

	s.audit(ctx, storage.ActionMarkedAsDonated, ids)
	s.broadcast(v, snapshot)
	return nil
}

// MergeUnavailable marks ids unavailable without the all-or-nothing check:
// the union of what the backend reports and what is already known locally.
// It returns the ids that actually changed.
func (s *Store) MergeUnavailable(ctx context.Context, cardIDs []string) ([]string, error) {
	ids := dedupe(cardIDs)

	s.mu.Lock()
	var changed []string
	for _, id := range ids {
		if v, ok := s.state[id]; !ok || v {
			changed = append(changed, id)
		}
	}
	if len(changed) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	next := s.copyState()
	for _, id := range changed {
		next[id] = false
	}
	if err := s.persister.SaveAvailability(ctx, next); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("persist availability: %w", err)
	}
	s.state = next
	s.version++
	v, snapshot := s.version, s.copyState()
	s.mu.Unlock()

	s.audit(ctx, storage.ActionSynced, changed)
	s.broadcast(v, snapshot)
	return changed, nil
}

// RegisterIfAbsent records ids as available if they were never seen, so the
// reconciler can match them before any sync happened. Idempotent.
func (s *Store) RegisterIfAbsent(ctx context.Context, cardIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []string
	for _, id := range dedupe(cardIDs) {
		if !s.has(id) {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	next := s.copyState()
	for _, id := range fresh {
		next[id] = true
	}
	if err := s.persister.SaveAvailability(ctx, next); err != nil {
		return fmt.Errorf("persist availability: %w", err)
	}
	s.state = next
	return nil
}

// Release makes specific cards available again. It is the administrative way
// out for stranded cards; nothing in the checkout path calls it.
func (s *Store) Release(ctx context.Context, cardIDs []string) error {
	ids := dedupe(cardIDs)
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	next := s.copyState()
	for _, id := range ids {
		next[id] = true
	}
	if err := s.persister.SaveAvailability(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist availability: %w", err)
	}
	s.state = next
	s.version++
	v, snapshot := s.version, s.copyState()
	s.mu.Unlock()

	s.audit(ctx, storage.ActionReleased, ids)
	s.broadcast(v, snapshot)
	return nil
}

// Reset forgets every entry: all ids become available by absence.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	if err := s.persister.SaveAvailability(ctx, map[string]bool{}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist availability: %w", err)
	}
	s.state = map[string]bool{}
	s.version++
	v := s.version
	s.mu.Unlock()

	s.audit(ctx, storage.ActionReset, nil)
	s.broadcast(v, map[string]bool{})
	return nil
}

// Subscribe registers l and returns the function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// Snapshot returns a copy of the explicit entries.
func (s *Store) Snapshot() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyState()
}

// KnownIDs returns every id with an entry, sorted.
func (s *Store) KnownIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.state))
	for id := range s.state {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DonatedIDs returns every id explicitly marked unavailable, sorted.
func (s *Store) DonatedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, v := range s.state {
		if !v {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Total: len(s.state)}
	for _, v := range s.state {
		if !v {
			st.Donated++
		}
	}
	st.Available = st.Total - st.Donated
	return st
}

func (s *Store) copyState() map[string]bool {
	out := make(map[string]bool, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// broadcast delivers the snapshot taken at version v. Listeners must not
// mutate the store.
func (s *Store) broadcast(v uint64, state map[string]bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if v <= s.delivered {
		return
	}
	s.delivered = v

	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, l := range ls {
		cp := make(map[string]bool, len(state))
		for k, v := range state {
			cp[k] = v
		}
		l(cp)
	}
}

func (s *Store) audit(ctx context.Context, action string, ids []string) {
	err := s.persister.AppendAudit(ctx, storage.AuditEntry{
		OccurredAt: s.clock.Now(),
		CardIDs:    ids,
		Action:     action,
	})
	if err != nil {
		s.log.Warnf("Could not write %s audit entry for %v: %v", action, ids, err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
