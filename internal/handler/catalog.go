package handler

import (
	"net/http"

	"github.com/packon/storefront/internal/catalog"
)

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	collections := h.catalog.ListCollections(r.Context())
	if collections == nil {
		collections = []catalog.Collection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
}

func (h *Handler) listCollectionProducts(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	sort := catalog.Sort(r.URL.Query().Get("sort"))

	products := h.catalog.ListCollectionProducts(r.Context(), handle, sort)
	if products == nil {
		products = []catalog.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p := h.catalog.GetProduct(r.Context(), r.PathValue("handle"))
	if p == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": p})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	results := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if results == nil {
		results = []catalog.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
