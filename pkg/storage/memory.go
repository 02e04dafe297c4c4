package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process stand-in for DB with the same persistence methods.
// It is what tests and embedders without a disk use.
type Memory struct {
	mu           sync.Mutex
	availability map[string]bool
	cart         CartRecord
	cards        map[string]CardRecord
	audit        []AuditEntry
	pending      []DonationInfo // oldest first
}

func NewMemory() *Memory {
	return &Memory{
		availability: map[string]bool{},
		cards:        map[string]CardRecord{},
	}
}

func (m *Memory) LoadAvailability(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.availability))
	for k, v := range m.availability {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SaveAvailability(ctx context.Context, state map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availability = make(map[string]bool, len(state))
	for k, v := range state {
		m.availability[k] = v
	}
	return nil
}

func (m *Memory) LoadCart(ctx context.Context) (CartRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCart(m.cart), nil
}

func (m *Memory) SaveCart(ctx context.Context, rec CartRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = copyCart(rec)
	return nil
}

func (m *Memory) ClearCart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = CartRecord{}
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.CardIDs = append([]string(nil), e.CardIDs...)
	m.audit = append(m.audit, e)
	return nil
}

// ListAudit returns the most recent entries first.
func (m *Memory) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

func (m *Memory) UpsertCards(ctx context.Context, cards []CardRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cards {
		m.cards[c.ID] = c
	}
	return nil
}

func (m *Memory) ListCards(ctx context.Context) ([]CardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CardRecord, 0, len(m.cards))
	for _, c := range m.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgeBand != out[j].AgeBand {
			return out[i].AgeBand < out[j].AgeBand
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveDonationInfo(ctx context.Context, info DonationInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyInfo(info)
	for i := range m.pending {
		if m.pending[i].Reference == info.Reference {
			m.pending[i] = cp
			return nil
		}
	}
	m.pending = append(m.pending, cp)
	return nil
}

func (m *Memory) LoadDonationInfo(ctx context.Context, reference string) (*DonationInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.pending {
		if info.Reference == reference {
			cp := copyInfo(info)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) PendingDonations(ctx context.Context) ([]DonationInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DonationInfo
	for i := len(m.pending) - 1; i >= 0; i-- {
		out = append(out, copyInfo(m.pending[i]))
	}
	return out, nil
}

func (m *Memory) ClearDonationInfo(ctx context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pending {
		if m.pending[i].Reference == reference {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	return nil
}

func copyInfo(info DonationInfo) DonationInfo {
	cp := info
	cp.CardIDs = append([]string(nil), info.CardIDs...)
	cp.Names = append([]string(nil), info.Names...)
	return cp
}

func copyCart(rec CartRecord) CartRecord {
	return CartRecord{
		Items:     append([]CartItemRecord(nil), rec.Items...),
		Voluntary: rec.Voluntary,
	}
}
