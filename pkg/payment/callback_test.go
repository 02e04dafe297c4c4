package payment

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

func savedInfo(t *testing.T) *storage.Memory {
	t.Helper()
	mem := storage.NewMemory()
	err := mem.SaveDonationInfo(context.Background(), storage.DonationInfo{
		Reference: "DON-9",
		AttemptID: "att-9",
		CardIDs:   []string{"5-6-ninos-Dylan", "7-8-ninas-Ana"},
		Names:     []string{"Dylan", "Ana"},
		Total:     190000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mem
}

func TestParseCallback(t *testing.T) {
	q, _ := url.ParseQuery("reference=DON-9&id=1234-abc&status=approved&env=test")
	cb := ParseCallback(q)
	if cb.TransactionID != "1234-abc" || cb.Status != StatusApproved || cb.Reference != "DON-9" {
		t.Fatalf("unexpected callback %+v", cb)
	}
}

func TestHandleOutcomes(t *testing.T) {
	tests := []struct {
		status     Status
		kind       Kind
		redirect   time.Duration
		action     string
		keepsInfo  bool
		mentionsOf string
	}{
		{StatusApproved, KindSuccess, 5 * time.Second, storage.ActionPaymentApproved, false, "Has donado 2 carta(s)"},
		{StatusDeclined, KindFailed, 5 * time.Second, storage.ActionPaymentDeclined, true, "no se liberarán automáticamente"},
		{StatusError, KindFailed, 5 * time.Second, storage.ActionPaymentError, true, "Ocurrió un error"},
		{"PENDING", KindProcessing, 10 * time.Second, storage.ActionPaymentPending, true, "siendo procesado"},
		{"", KindProcessing, 10 * time.Second, storage.ActionPaymentPending, true, "siendo procesado"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			ctx := context.Background()
			mem := savedInfo(t)
			h := NewHandler(mem, nil, nil)

			out, err := h.Handle(ctx, Callback{TransactionID: "tx-1", Status: tt.status, Reference: "DON-9"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Kind != tt.kind || out.RedirectAfter != tt.redirect {
				t.Fatalf("unexpected outcome %+v", out)
			}
			if !strings.Contains(out.Message, tt.mentionsOf) {
				t.Fatalf("message %q does not contain %q", out.Message, tt.mentionsOf)
			}
			if tt.kind == KindFailed && !strings.Contains(out.Message, "Dylan y Ana") {
				t.Fatalf("failure message should name the cards: %q", out.Message)
			}

			info, _ := mem.LoadDonationInfo(ctx, "DON-9")
			if (info != nil) != tt.keepsInfo {
				t.Fatalf("donation info kept = %v, want %v", info != nil, tt.keepsInfo)
			}
			entries, _ := mem.ListAudit(ctx, 1)
			if len(entries) != 1 || entries[0].Action != tt.action || entries[0].AttemptID != "att-9" {
				t.Fatalf("unexpected audit %+v", entries)
			}
		})
	}
}

func TestHandleWithoutDonationInfo(t *testing.T) {
	mem := storage.NewMemory()
	out, err := NewHandler(mem, nil, nil).Handle(context.Background(), Callback{Status: StatusDeclined})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != KindFailed || !strings.Contains(out.Message, "las cartas ya fueron marcadas") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if entries, _ := mem.ListAudit(context.Background(), 0); len(entries) != 0 {
		t.Fatalf("nothing to audit without a pending donation, got %+v", entries)
	}
}

func TestHandleMatchesCallbackToItsDonation(t *testing.T) {
	ctx := context.Background()
	mem := savedInfo(t)
	err := mem.SaveDonationInfo(ctx, storage.DonationInfo{
		Reference: "DON-10",
		AttemptID: "att-10",
		CardIDs:   []string{"9-10-ninos-Luis"},
		Names:     []string{"Luis"},
	})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(mem, nil, nil)

	out, err := h.Handle(ctx, Callback{TransactionID: "tx-9", Status: StatusApproved, Reference: "DON-9"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Reference != "DON-9" || !strings.Contains(out.Message, "Dylan y Ana") {
		t.Fatalf("approval attributed to the wrong donation: %+v", out)
	}
	if info, _ := mem.LoadDonationInfo(ctx, "DON-9"); info != nil {
		t.Fatalf("approved donation should be cleared")
	}
	if info, _ := mem.LoadDonationInfo(ctx, "DON-10"); info == nil {
		t.Fatalf("the other pending donation must be kept")
	}

	// Two pending donations and no reference: nothing is attributed.
	if err := mem.SaveDonationInfo(ctx, storage.DonationInfo{Reference: "DON-11"}); err != nil {
		t.Fatal(err)
	}
	out, err = h.Handle(ctx, Callback{Status: StatusApproved})
	if err != nil {
		t.Fatal(err)
	}
	if out.Reference != "" {
		t.Fatalf("callback without reference must not pick a donation, got %s", out.Reference)
	}
	if pending, _ := mem.PendingDonations(ctx); len(pending) != 2 {
		t.Fatalf("nothing should be cleared, pending = %+v", pending)
	}
}

func TestHandleWithoutReferenceUsesSolePendingDonation(t *testing.T) {
	ctx := context.Background()
	mem := savedInfo(t)
	out, err := NewHandler(mem, nil, nil).Handle(ctx, Callback{Status: StatusDeclined})
	if err != nil {
		t.Fatal(err)
	}
	if out.Reference != "DON-9" {
		t.Fatalf("expected the only pending donation, got %+v", out)
	}
}
