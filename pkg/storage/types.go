package storage

import "time"

// Audit actions recorded in the donation log.
const (
	ActionMarkedAsDonated  = "marked_as_donated"
	ActionSynced           = "synced_from_backend"
	ActionReleased         = "released"
	ActionReset            = "reset"
	ActionSubmissionFailed = "submission_failed"
	ActionMissingReference = "missing_reference"
	ActionHandedOff        = "handed_off"
	ActionPaymentApproved  = "payment_approved"
	ActionPaymentDeclined  = "payment_declined"
	ActionPaymentError     = "payment_error"
	ActionPaymentPending   = "payment_pending"
)

// AuditEntry is one append-only record of something that happened to a set of cards.
type AuditEntry struct {
	OccurredAt time.Time `json:"occurred_at"`
	AttemptID  string    `json:"attempt_id,omitempty"`
	CardIDs    []string  `json:"card_ids"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
}

// CartItemRecord is the persisted form of a cart line.
type CartItemRecord struct {
	CardID string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// CartRecord is the persisted cart: ordered items plus the voluntary amount.
type CartRecord struct {
	Items     []CartItemRecord `json:"items"`
	Voluntary int64            `json:"voluntary"`
}

// CardRecord is a catalog card as stored locally.
type CardRecord struct {
	ID          string `json:"id"`
	BackendRef  string `json:"backend_ref,omitempty"`
	DisplayName string `json:"name"`
	AgeBand     string `json:"age_band"`
	Category    string `json:"category,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// DonationInfo is the temporary record kept between the payment redirect and
// the payment callback.
type DonationInfo struct {
	Reference  string    `json:"reference"`
	AttemptID  string    `json:"attempt_id"`
	CardIDs    []string  `json:"card_ids"`
	Names      []string  `json:"names"`
	Email      string    `json:"email"`
	CardsTotal int64     `json:"cards_total"`
	Voluntary  int64     `json:"voluntary"`
	Total      int64     `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}
