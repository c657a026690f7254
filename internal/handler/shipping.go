package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/packon/storefront/internal/shipping"
)

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DestinationPostalCode string          `json:"destinationPostalCode"`
		Items                 []shipping.Item `json:"items"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	options, err := h.shipper.Quote(r.Context(), req.DestinationPostalCode, req.Items)
	if err != nil {
		var invalidCode *shipping.InvalidPostalCodeError
		var invalidItem *shipping.InvalidItemError
		switch {
		case errors.As(err, &invalidCode), errors.As(err, &invalidItem),
			errors.Is(err, shipping.ErrEmptyItems):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, shipping.ErrNoOptions):
			writeError(w, http.StatusNotFound, "no shipping options for this destination")
		case errors.Is(err, shipping.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "shipping quotes are unavailable")
		default:
			zctx.From(r.Context()).Error("Shipping quote failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "could not reach the carrier, please try again")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"options": options})
}
