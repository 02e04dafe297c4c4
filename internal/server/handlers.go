package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/sw33tLie/sponsorcards/pkg/reservation"
)

type cartResponse struct {
	Items          []cart.Item `json:"items"`
	Totals         cart.Totals `json:"totals"`
	Minimum        int64       `json:"minimum"`
	FormattedTotal string      `json:"formatted_total"`
}

func (s *Server) cartResponse() cartResponse {
	c := s.App.Cart
	items := c.Items()
	if items == nil {
		items = []cart.Item{}
	}
	t := c.Totals()
	return cartResponse{
		Items:          items,
		Totals:         t,
		Minimum:        c.Minimum(),
		FormattedTotal: cart.FormatPrice(t.GrandTotal),
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	cards := s.App.Cards(r.URL.Query().Get("available") == "true")
	if cards == nil {
		cards = []app.CardView{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	card, ok := s.App.Catalog().Get(id)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: %s", app.ErrUnknownCard, id))
		return
	}
	writeJSON(w, http.StatusOK, app.CardView{Card: card, Available: s.App.Reconciler.IsAvailable(id)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.App.Stats())
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cartResponse())
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.App.Cart.Clear(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cartResponse())
}

type AddItemRequest struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.App.AddToCart(r.Context(), req.ID, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.cartResponse())
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := s.App.Cart.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cartResponse())
}

type VoluntaryRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleVoluntary(w http.ResponseWriter, r *http.Request) {
	var req VoluntaryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.App.Cart.SetVoluntaryAmount(r.Context(), req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cartResponse())
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var donor reservation.Donor
	if err := decode(r, &donor); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.App.Checkout(r.Context(), donor)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "form" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.App.Payment.RenderForm(w, res.Totals.GrandTotal, res.Reference); err != nil {
			s.Log.Errorf("Could not render checkout form for %s: %v", res.Reference, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	out, err := s.App.HandleCallback(r.Context(), r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	sync := s.App.Sync
	if r.URL.Query().Get("import") == "true" {
		sync = s.App.ImportFromBackend
	}
	res, err := sync(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.App.Reset(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.App.Stats())
}

type ReleaseRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.App.Release(r.Context(), req.IDs); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.App.Stats())
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.App.AuditLog(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
