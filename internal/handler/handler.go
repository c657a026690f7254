// Package handler exposes the storefront core over a small JSON API. It is
// the UI-facing surface: catalog reads, search suggestions, cookie-scoped
// cart sessions, and shipping quotes.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/packon/storefront/internal/catalog"
	"github.com/packon/storefront/internal/session"
	"github.com/packon/storefront/internal/shipping"
)

// Catalog is the read-only catalog surface the handler serves.
type Catalog interface {
	ListCollectionProducts(ctx context.Context, handle string, sort catalog.Sort) []catalog.Summary
	ListCollections(ctx context.Context) []catalog.Collection
	GetProduct(ctx context.Context, handle string) *catalog.Product
	Search(ctx context.Context, term string) []catalog.SearchResult
}

// Shipper quotes delivery options for a destination.
type Shipper interface {
	Quote(ctx context.Context, destination string, items []shipping.Item) ([]shipping.Option, error)
}

// Handler wires the storefront core to HTTP routes.
type Handler struct {
	catalog  Catalog
	sessions *session.Manager
	shipper  Shipper
}

// New creates a Handler.
func New(cat Catalog, sessions *session.Manager, shipper Shipper) *Handler {
	return &Handler{
		catalog:  cat,
		sessions: sessions,
		shipper:  shipper,
	}
}

// Register attaches all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/collections", h.listCollections)
	mux.HandleFunc("GET /api/collections/{handle}/products", h.listCollectionProducts)
	mux.HandleFunc("GET /api/products/{handle}", h.getProduct)
	mux.HandleFunc("GET /api/search", h.search)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/lines", h.addLine)
	mux.HandleFunc("PATCH /api/cart/lines/{id}", h.updateLine)
	mux.HandleFunc("DELETE /api/cart/lines/{id}", h.removeLine)

	mux.HandleFunc("POST /api/shipping/quote", h.quote)
}

// errorBody is the JSON error shape shared by all endpoints.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		zctx.From(r.Context()).Debug("Bad request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
