package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvent accepts a normalized platform event from an external gateway
// and returns the reply owed to the actor.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := decodeBody(r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	switch ev.Kind {
	case event.KindButton, event.KindForm, event.KindDirectMessage, event.KindChannelMessage:
	default:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "unknown event kind")
		return
	}
	if ev.ActorID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "actorId is required")
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.now().UTC()
	}
	respondJSON(w, http.StatusOK, s.orch.Handle(r.Context(), ev))
}

func (s *Server) getDeal(w http.ResponseWriter, r *http.Request) {
	d, err := s.orch.Deal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		s.respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type listingRequest struct {
	ID                   string              `json:"id"`
	OrderID              string              `json:"orderId"`
	ProductName          string              `json:"productName"`
	SKU                  string              `json:"sku"`
	Size                 string              `json:"size"`
	Brand                string              `json:"brand"`
	ImageURL             string              `json:"imageUrl"`
	Status               deal.Status         `json:"status"`
	CurrentPayout        decimal.NullDecimal `json:"currentPayout"`
	CurrentPayoutVAT0    decimal.NullDecimal `json:"currentPayoutVat0"`
	RequesterID          string              `json:"requesterId"`
	BuyerCountry         string              `json:"buyerCountry"`
	BuyerVATID           string              `json:"buyerVatId"`
	LockedBuyerPrice     decimal.NullDecimal `json:"lockedBuyerPrice"`
	LockedBuyerPriceVAT0 decimal.NullDecimal `json:"lockedBuyerPriceVat0"`
	Advertise            bool                `json:"advertise"`
	ChannelID            string              `json:"channelId"`
}

func (req listingRequest) toDeal() *deal.Deal {
	return &deal.Deal{
		ID:                   req.ID,
		OrderID:              req.OrderID,
		ProductName:          req.ProductName,
		SKU:                  req.SKU,
		Size:                 req.Size,
		Brand:                req.Brand,
		ImageURL:             req.ImageURL,
		Status:               req.Status,
		CurrentPayout:        req.CurrentPayout,
		CurrentPayoutVAT0:    req.CurrentPayoutVAT0,
		RequesterID:          req.RequesterID,
		BuyerCountry:         strings.ToUpper(strings.TrimSpace(req.BuyerCountry)),
		BuyerVATID:           req.BuyerVATID,
		LockedBuyerPrice:     req.LockedBuyerPrice,
		LockedBuyerPriceVAT0: req.LockedBuyerPriceVAT0,
	}
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	d := req.toDeal()
	if err := s.orch.Ingest(r.Context(), d); err != nil {
		s.respondFault(w, err)
		return
	}
	if req.Advertise {
		advertised, err := s.orch.Advertise(r.Context(), d.ID, req.ChannelID)
		if err != nil {
			s.respondFault(w, err)
			return
		}
		d = advertised
	}
	respondJSON(w, http.StatusCreated, d)
}

type advertiseRequest struct {
	ChannelID string `json:"channelId"`
}

func (s *Server) advertiseListing(w http.ResponseWriter, r *http.Request) {
	var req advertiseRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
	}
	d, err := s.orch.Advertise(r.Context(), chi.URLParam(r, "dealID"), req.ChannelID)
	if err != nil {
		s.respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type repriceRequest struct {
	CurrentPayout     decimal.NullDecimal `json:"currentPayout"`
	CurrentPayoutVAT0 decimal.NullDecimal `json:"currentPayoutVat0"`
}

// repriceListing updates the current payouts of a listing.
func (s *Server) repriceListing(w http.ResponseWriter, r *http.Request) {
	var req repriceRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	d, err := s.orch.Reprice(r.Context(), chi.URLParam(r, "dealID"), req.CurrentPayout, req.CurrentPayoutVAT0)
	if err != nil {
		s.respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) runSweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.sweeper.RunOnce(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("manual sweep failed")
		respondError(w, http.StatusBadGateway, "EXTERNAL_IO", "sweep failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"expired": n})
}
