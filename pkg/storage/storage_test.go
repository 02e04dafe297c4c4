package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAvailabilityRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	want := map[string]bool{"5-6-ninos-ana": true, "7-8-ninas-luis": false}
	if err := db.SaveAvailability(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := db.LoadAvailability(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}

	// Saving replaces, it does not merge.
	if err := db.SaveAvailability(ctx, map[string]bool{}); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, _ = db.LoadAvailability(ctx)
	if len(got) != 0 {
		t.Fatalf("expected empty map after replace, got %v", got)
	}
}

func TestCartRoundTripKeepsOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rec := CartRecord{
		Items: []CartItemRecord{
			{CardID: "b", Name: "Bea", Amount: 100000},
			{CardID: "a", Name: "Ana", Amount: 90000},
		},
		Voluntary: 10000,
	}
	if err := db.SaveCart(ctx, rec); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	got, err := db.LoadCart(ctx)
	if err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Fatalf("want %+v, got %+v", rec, got)
	}

	if err := db.ClearCart(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = db.LoadCart(ctx)
	if len(got.Items) != 0 || got.Voluntary != 0 {
		t.Fatalf("expected empty cart, got %+v", got)
	}
}

func TestAuditIsAppendOnlyAndNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	entries := []AuditEntry{
		{OccurredAt: t0, CardIDs: []string{"a", "b"}, Action: ActionMarkedAsDonated},
		{OccurredAt: t0.Add(time.Minute), AttemptID: "att-1", CardIDs: []string{"a", "b"}, Action: ActionSubmissionFailed, Detail: "backend unreachable"},
	}
	for _, e := range entries {
		if err := db.AppendAudit(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := db.ListAudit(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Action != ActionSubmissionFailed || got[0].AttemptID != "att-1" || got[0].Detail != "backend unreachable" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if !got[1].OccurredAt.Equal(t0) || !reflect.DeepEqual(got[1].CardIDs, []string{"a", "b"}) {
		t.Fatalf("unexpected oldest entry: %+v", got[1])
	}
}

func TestCardsUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertCards(ctx, []CardRecord{{ID: "5-6-anthony-upegui", BackendRef: "5-6-anthony-upegui", DisplayName: "Anthony", AgeBand: "5-6"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := db.UpsertCards(ctx, []CardRecord{{ID: "5-6-anthony-upegui", DisplayName: "Anthony Upegui", AgeBand: "5-6", ImageURL: "https://img/a.webp"}}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	cards, err := db.ListCards(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(cards))
	}
	if cards[0].DisplayName != "Anthony Upegui" || cards[0].ImageURL != "https://img/a.webp" || cards[0].BackendRef != "" {
		t.Fatalf("unexpected card after upsert: %+v", cards[0])
	}
}

func TestDonationInfoIsKeyedByReference(t *testing.T) {
	ctx := context.Background()
	stores := map[string]interface {
		SaveDonationInfo(context.Context, DonationInfo) error
		LoadDonationInfo(context.Context, string) (*DonationInfo, error)
		PendingDonations(context.Context) ([]DonationInfo, error)
		ClearDonationInfo(context.Context, string) error
	}{
		"sqlite": openTestDB(t),
		"memory": NewMemory(),
	}
	for name, db := range stores {
		t.Run(name, func(t *testing.T) {
			info, err := db.LoadDonationInfo(ctx, "REF-1")
			if err != nil || info != nil {
				t.Fatalf("expected no info, got %+v, %v", info, err)
			}

			first := DonationInfo{Reference: "REF-1", CardIDs: []string{"a"}, Names: []string{"Ana"}, Email: "x@gmail.com", Total: 100000}
			second := DonationInfo{Reference: "REF-2", CardIDs: []string{"b"}, Names: []string{"Luis"}, Total: 90000}
			for _, in := range []DonationInfo{first, second} {
				if err := db.SaveDonationInfo(ctx, in); err != nil {
					t.Fatalf("save: %v", err)
				}
			}

			info, err = db.LoadDonationInfo(ctx, "REF-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if info == nil || !reflect.DeepEqual(info.Names, []string{"Ana"}) {
				t.Fatalf("second save must not overwrite the first: %+v", info)
			}

			pending, err := db.PendingDonations(ctx)
			if err != nil {
				t.Fatalf("pending: %v", err)
			}
			if len(pending) != 2 || pending[0].Reference != "REF-2" || pending[1].Reference != "REF-1" {
				t.Fatalf("unexpected pending list %+v", pending)
			}

			if err := db.ClearDonationInfo(ctx, "REF-1"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if info, _ := db.LoadDonationInfo(ctx, "REF-1"); info != nil {
				t.Fatalf("expected cleared info, got %+v", info)
			}
			if info, _ := db.LoadDonationInfo(ctx, "REF-2"); info == nil {
				t.Fatalf("clearing REF-1 must keep REF-2")
			}
		})
	}
}

func TestMemoryAuditNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.AppendAudit(ctx, AuditEntry{Action: ActionReset})
	_ = m.AppendAudit(ctx, AuditEntry{Action: ActionReleased, CardIDs: []string{"a"}})

	got, _ := m.ListAudit(ctx, 1)
	if len(got) != 1 || got[0].Action != ActionReleased {
		t.Fatalf("unexpected audit: %+v", got)
	}
}
