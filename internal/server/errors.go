package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/sw33tLie/sponsorcards/pkg/payment"
	"github.com/sw33tLie/sponsorcards/pkg/polling"
	"github.com/sw33tLie/sponsorcards/pkg/reservation"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Cards  []string          `json:"cards,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`

	Reference string `json:"reference,omitempty"`
}

var errBadRequest = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to an HTTP status and a stable code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		ue  *reservation.UnavailableError
		cue *cart.UnavailableError
		ce  *reservation.ConflictError
		se  *reservation.SubmissionError
		ve  *reservation.ValidationError
		re  *app.RedirectError
	)
	switch {
	case errors.Is(err, errBadRequest):
		status, resp.Code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, cart.ErrBelowMinimum):
		status, resp.Code = http.StatusUnprocessableEntity, "below_minimum"
	case errors.Is(err, cart.ErrNegativeDonation):
		status, resp.Code = http.StatusBadRequest, "negative_amount"
	case errors.As(err, &ue):
		status, resp.Code, resp.Cards = http.StatusConflict, "card_unavailable", ue.Names
		if ue.CartEmptied {
			resp.Code = "cart_emptied"
		}
	case errors.As(err, &cue):
		status, resp.Code, resp.Cards = http.StatusConflict, "card_unavailable", []string{cue.Name}
	case errors.As(err, &ce):
		status, resp.Code, resp.Cards = http.StatusConflict, "reservation_conflict", ce.Names
	case errors.Is(err, reservation.ErrCheckoutInProgress):
		status, resp.Code = http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, reservation.ErrEmptyCart):
		status, resp.Code = http.StatusBadRequest, "empty_cart"
	case errors.As(err, &ve):
		status, resp.Code, resp.Fields = http.StatusBadRequest, "invalid_donor", ve.Fields
	case errors.As(err, &se):
		status, resp.Code, resp.Cards = http.StatusBadGateway, "submission_failed", se.Names
		if errors.Is(err, reservation.ErrMissingReference) {
			resp.Code = "missing_reference"
		}
	case errors.Is(err, polling.ErrSyncFailure):
		status, resp.Code = http.StatusBadGateway, "sync_failed"
	case errors.Is(err, app.ErrUnknownCard):
		status, resp.Code = http.StatusNotFound, "unknown_card"
	case errors.Is(err, app.ErrNoCards):
		status, resp.Code = http.StatusBadRequest, "no_cards"
	case errors.As(err, &re):
		resp.Code, resp.Reference = "payment_redirect_failed", re.Reference
	case errors.Is(err, payment.ErrInvalidCheckout):
		resp.Code = "payment_misconfigured"
	default:
		resp.Code = "internal"
		resp.Error = "internal error"
	}

	if status >= http.StatusInternalServerError {
		s.Log.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, resp)
}
