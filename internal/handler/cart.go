package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/packon/storefront/internal/session"
)

const sessionCookie = "storefront_session"

// store resolves the cart session store for the request, minting a session
// cookie on first contact.
func (h *Handler) store(w http.ResponseWriter, r *http.Request) *session.Store {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return h.sessions.Get(c.Value)
	}

	token := h.sessions.NewToken()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60 * 60 * 24 * 30,
	})
	return h.sessions.Get(token)
}

// restore rehydrates an Uninitialized store from its persisted cart id before
// a mutation runs. Without it, a returning session whose first request is a
// mutation would create a fresh cart and overwrite the persisted id, orphaning
// the customer's existing cart.
func (h *Handler) restore(w http.ResponseWriter, r *http.Request, s *session.Store) bool {
	if s.State() != session.StateUninitialized {
		return true
	}
	if err := s.Init(r.Context()); err != nil {
		h.writeMutationError(w, r, err, "restore cart")
		return false
	}
	return true
}

// cartResponse is the envelope for all cart endpoints. Cart is null for a
// session that holds no cart yet.
type cartResponse struct {
	State string `json:"state"`
	Cart  any    `json:"cart"`
}

func (h *Handler) writeCart(w http.ResponseWriter, s *session.Store) {
	resp := cartResponse{State: s.State().String()}
	if c := s.Cart(); c != nil {
		resp.Cart = c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s := h.store(w, r)
	if err := s.Init(r.Context()); err != nil && !errors.Is(err, session.ErrMutationInFlight) {
		zctx.From(r.Context()).Error("Cart init failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "cart is temporarily unavailable")
		return
	}
	h.writeCart(w, s)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MerchandiseID string `json:"merchandiseId"`
		Quantity      int    `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MerchandiseID == "" {
		writeError(w, http.StatusBadRequest, "merchandiseId is required")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	s := h.store(w, r)
	if !h.restore(w, r, s) {
		return
	}
	if err := s.AddItem(r.Context(), req.MerchandiseID, req.Quantity); err != nil {
		h.writeMutationError(w, r, err, "add item")
		return
	}
	h.writeCart(w, s)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	s := h.store(w, r)
	if !h.restore(w, r, s) {
		return
	}
	if err := s.UpdateItem(r.Context(), r.PathValue("id"), req.Quantity); err != nil {
		h.writeMutationError(w, r, err, "update item")
		return
	}
	h.writeCart(w, s)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	s := h.store(w, r)
	if !h.restore(w, r, s) {
		return
	}
	if err := s.RemoveItem(r.Context(), r.PathValue("id")); err != nil {
		h.writeMutationError(w, r, err, "remove item")
		return
	}
	h.writeCart(w, s)
}

func (h *Handler) writeMutationError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, session.ErrMutationInFlight):
		writeError(w, http.StatusConflict, "another cart change is in progress")
	case errors.Is(err, session.ErrCartUnavailable):
		writeError(w, http.StatusNotFound, "no cart in session")
	default:
		zctx.From(r.Context()).Error("Cart mutation failed",
			zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusBadGateway, "cart change failed, please try again")
	}
}
