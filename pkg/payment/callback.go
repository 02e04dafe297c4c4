package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sw33tLie/sponsorcards/internal/clock"
	"github.com/sw33tLie/sponsorcards/internal/utils"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
	StatusError    Status = "ERROR"
)

type Kind string

const (
	KindSuccess    Kind = "success"
	KindFailed     Kind = "error"
	KindProcessing Kind = "processing"
)

// Callback is what the hosted checkout appends to the redirect URL, plus
// the donation reference the redirect URL was built with.
type Callback struct {
	TransactionID string `json:"id"`
	Status        Status `json:"status"`
	Reference     string `json:"reference,omitempty"`
}

func ParseCallback(q url.Values) Callback {
	return Callback{
		TransactionID: strings.TrimSpace(q.Get("id")),
		Status:        Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Reference:     strings.TrimSpace(q.Get("reference")),
	}
}

// Outcome is what the donor is told after the redirect back.
type Outcome struct {
	Kind          Kind          `json:"kind"`
	Status        Status        `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Reference     string        `json:"reference,omitempty"`
	Names         []string      `json:"names,omitempty"`
	Message       string        `json:"message"`
	RedirectAfter time.Duration `json:"redirect_after"`
}

type InfoStore interface {
	LoadDonationInfo(ctx context.Context, reference string) (*storage.DonationInfo, error)
	PendingDonations(ctx context.Context) ([]storage.DonationInfo, error)
	ClearDonationInfo(ctx context.Context, reference string) error
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
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

// Handler turns a payment callback into an Outcome. It never releases cards:
// a declined or failed payment leaves the reservation in place and records
// it in the audit log.
type Handler struct {
	info  InfoStore
	clock clock.Clock
	log   Logger
}

func NewHandler(info InfoStore, c clock.Clock, log Logger) *Handler {
	if c == nil {
		c = clock.NewSystem()
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Handler{info: info, clock: c, log: log}
}

func (h *Handler) Handle(ctx context.Context, cb Callback) (*Outcome, error) {
	info, err := h.lookup(ctx, cb.Reference)
	if err != nil {
		return nil, fmt.Errorf("load donation info: %w", err)
	}

	out := &Outcome{Status: cb.Status, TransactionID: cb.TransactionID}
	var cardIDs []string
	if info != nil {
		out.Reference = info.Reference
		out.Names = info.Names
		cardIDs = info.CardIDs
	}
	cards := "las cartas"
	if len(out.Names) > 0 {
		cards = "las cartas de " + utils.JoinNames(out.Names)
	}

	var action string
	switch cb.Status {
	case StatusApproved:
		out.Kind = KindSuccess
		out.RedirectAfter = 5 * time.Second
		out.Message = fmt.Sprintf("¡Gracias por tu donación! Has donado %d carta(s) exitosamente. %s ya han sido marcadas como donadas.",
			len(cardIDs), capitalize(cards))
		action = storage.ActionPaymentApproved
	case StatusDeclined, StatusError:
		out.Kind = KindFailed
		out.RedirectAfter = 5 * time.Second
		lead := "El pago fue rechazado."
		action = storage.ActionPaymentDeclined
		if cb.Status == StatusError {
			lead = "Ocurrió un error durante el pago."
			action = storage.ActionPaymentError
		}
		out.Message = fmt.Sprintf("%s IMPORTANTE: %s ya fueron marcadas como donadas al iniciar el proceso y no se liberarán automáticamente. Si deseas donar otras cartas, por favor selecciónalas nuevamente.",
			lead, cards)
	default:
		out.Kind = KindProcessing
		out.RedirectAfter = 10 * time.Second
		out.Message = "Tu pago está siendo procesado. Por favor espera..."
		action = storage.ActionPaymentPending
	}

	if info != nil {
		detail := string(cb.Status)
		if cb.TransactionID != "" {
			detail += " " + cb.TransactionID
		}
		err := h.info.AppendAudit(ctx, storage.AuditEntry{
			OccurredAt: h.clock.Now(),
			AttemptID:  info.AttemptID,
			CardIDs:    info.CardIDs,
			Action:     action,
			Detail:     detail,
		})
		if err != nil {
			h.log.Warnf("Could not record payment outcome for %s: %v", info.Reference, err)
		}
	}

	if cb.Status == StatusApproved && info != nil {
		if err := h.info.ClearDonationInfo(ctx, info.Reference); err != nil {
			h.log.Warnf("Could not clear donation info: %v", err)
		}
	} else if out.Kind == KindFailed {
		h.log.Warnf("Payment %s for %s ended %s, cards stay reserved: %v", cb.TransactionID, out.Reference, cb.Status, cardIDs)
	}
	return out, nil
}

// lookup finds the pending donation a callback belongs to. Without a
// reference it is only resolved when exactly one donation is pending.
func (h *Handler) lookup(ctx context.Context, reference string) (*storage.DonationInfo, error) {
	if reference != "" {
		return h.info.LoadDonationInfo(ctx, reference)
	}
	pending, err := h.info.PendingDonations(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) != 1 {
		if len(pending) > 1 {
			h.log.Warnf("Payment callback without a reference and %d pending donations, not attributing it", len(pending))
		}
		return nil, nil
	}
	return &pending[0], nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
