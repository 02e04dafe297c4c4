package polling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sw33tLie/sponsorcards/internal/clock"
	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/matching"
)

// ErrSyncFailure wraps every fetch or parse failure of a sync. The local
// availability state is never touched when it is returned.
var ErrSyncFailure = errors.New("sync with backend failed")

const (
	DefaultExpiry       = 5 * time.Minute
	DefaultRetryBackoff = 30 * time.Second
	defaultSyncTimeout  = 30 * time.Second
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// CardSource is the authoritative card list. *backend.Client satisfies it.
type CardSource interface {
	ListCards(ctx context.Context) ([]backend.Card, error)
}

// Store is the part of *availability.Store the reconciler writes to.
type Store interface {
	IsAvailable(cardID string) bool
	KnownIDs() []string
	MergeUnavailable(ctx context.Context, cardIDs []string) ([]string, error)
}

// Config holds everything a Reconciler needs. Source and Store are required.
type Config struct {
	Source       CardSource
	Store        Store
	Clock        clock.Clock   // defaults to the system clock
	Expiry       time.Duration // how long a successful sync stays fresh; defaults to 5m
	RetryBackoff time.Duration // minimum gap between background attempts; defaults to 30s
	SyncTimeout  time.Duration // bound on background syncs; defaults to 30s
	Log          Logger        // optional; nil = no logging
}

// Result is the outcome of one successful sync.
type Result struct {
	Fetched   int       `json:"fetched"`
	Donated   int       `json:"donated"`
	Marked    []string  `json:"marked"`    // local ids that changed to unavailable
	Unmatched []string  `json:"unmatched"` // donated refs with no registered local id
	SyncedAt  time.Time `json:"synced_at"`
}

// Status describes the cache.
type Status struct {
	LastSuccess time.Time `json:"last_success"`
	LastAttempt time.Time `json:"last_attempt"`
	LastError   string    `json:"last_error,omitempty"`
	Fresh       bool      `json:"fresh"`
}

// Reconciler merges the backend's donated cards into the local availability
// store. It never marks a card available again.
type Reconciler struct {
	cfg Config
	log Logger

	syncMu sync.Mutex

	mu          sync.Mutex
	lastSuccess time.Time
	lastAttempt time.Time
	lastErr     error
	inflight    bool
	wg          sync.WaitGroup
}

func New(cfg Config) *Reconciler {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Reconciler{cfg: cfg, log: log}
}

// Sync fetches the card list and applies it. On failure the store is left
// as it was and the error wraps ErrSyncFailure.
func (r *Reconciler) Sync(ctx context.Context) (*Result, error) {
	return r.SyncWith(ctx, nil)
}

// SyncWith is Sync with a hook that sees the fetched list before it is
// applied, e.g. to register new catalog cards so they can be matched.
func (r *Reconciler) SyncWith(ctx context.Context, prepare func(context.Context, []backend.Card) error) (*Result, error) {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	r.mu.Lock()
	r.lastAttempt = r.cfg.Clock.Now()
	r.mu.Unlock()

	cards, err := r.cfg.Source.ListCards(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSyncFailure, err)
		r.recordFailure(err)
		r.log.Warnf("Card sync failed, keeping local state: %v", err)
		return nil, err
	}

	if prepare != nil {
		if err := prepare(ctx, cards); err != nil {
			r.recordFailure(err)
			return nil, err
		}
	}

	res, err := r.Apply(ctx, cards)
	if err != nil {
		r.recordFailure(err)
		return nil, err
	}

	r.mu.Lock()
	r.lastSuccess = res.SyncedAt
	r.lastErr = nil
	r.mu.Unlock()
	return res, nil
}

// Apply merges an already fetched card list. For every donated backend card
// each registered local id matching its ref pattern is marked unavailable.
func (r *Reconciler) Apply(ctx context.Context, cards []backend.Card) (*Result, error) {
	known := r.cfg.Store.KnownIDs()

	res := &Result{Fetched: len(cards)}
	var toMark []string
	for _, c := range cards {
		if !c.Donated {
			continue
		}
		res.Donated++
		ids := matching.MatchAll(known, c.Ref)
		if len(ids) == 0 {
			res.Unmatched = append(res.Unmatched, c.Ref)
			continue
		}
		toMark = append(toMark, ids...)
	}

	changed, err := r.cfg.Store.MergeUnavailable(ctx, toMark)
	if err != nil {
		return nil, fmt.Errorf("merge donated cards: %w", err)
	}
	sort.Strings(changed)
	res.Marked = changed
	res.SyncedAt = r.cfg.Clock.Now()

	if len(res.Unmatched) > 0 {
		r.log.Debugf("%d donated refs matched no local card: %v", len(res.Unmatched), res.Unmatched)
	}
	r.log.Infof("Synced %d cards from backend (%d donated, %d newly marked)", res.Fetched, res.Donated, len(res.Marked))
	return res, nil
}

// IsAvailable answers from the local store without blocking. A stale cache
// schedules one background sync.
func (r *Reconciler) IsAvailable(cardID string) bool {
	available := r.cfg.Store.IsAvailable(cardID)
	r.RefreshIfStale()
	return available
}

// RefreshIfStale starts a background sync when the last success is older
// than the expiry window and no sync is already running. It reports whether
// one was started.
func (r *Reconciler) RefreshIfStale() bool {
	r.mu.Lock()
	now := r.cfg.Clock.Now()
	stale := r.lastSuccess.IsZero() || now.Sub(r.lastSuccess) >= r.cfg.Expiry
	backoff := !r.lastAttempt.IsZero() && now.Sub(r.lastAttempt) < r.cfg.RetryBackoff
	if !stale || r.inflight || backoff {
		r.mu.Unlock()
		return false
	}
	r.inflight = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			r.inflight = false
			r.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SyncTimeout)
		defer cancel()
		r.Sync(ctx)
	}()
	return true
}

// Wait blocks until background syncs started so far have finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		LastSuccess: r.lastSuccess,
		LastAttempt: r.lastAttempt,
		Fresh:       !r.lastSuccess.IsZero() && r.cfg.Clock.Now().Sub(r.lastSuccess) < r.cfg.Expiry,
	}
	if r.lastErr != nil {
		s.LastError = r.lastErr.Error()
	}
	return s
}

// Run syncs immediately and then every interval until ctx is done. Sync
// failures are logged and never stop the loop.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = r.cfg.RetryBackoff
	}
	r.log.Infof("Starting background card sync (interval: %s)", interval)

	r.Sync(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Wait()
			return nil
		case <-ticker.C:
			r.Sync(ctx)
		}
	}
}

func (r *Reconciler) recordFailure(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}
