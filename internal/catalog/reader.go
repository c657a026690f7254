package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/packon/storefront/internal/commerce"
)

const (
	// Search terms shorter than this never reach the remote API.
	minSearchLen = 2
	// Longer terms are truncated before being sent.
	maxSearchLen = 100

	collectionPageSize = 100
	variantPageSize    = 250

	collectionTTL      = time.Hour
	collectionsListTTL = 24 * time.Hour
	productTTL         = 30 * time.Minute
	searchTTL          = 5 * time.Minute

	defaultPageDelay = 200 * time.Millisecond
	defaultMaxPages  = 20
)

// Reader answers catalog questions over the commerce client. It never
// propagates remote failures: every method logs the problem and returns the
// empty shape for its call, leaving user-facing messaging to the caller.
type Reader struct {
	client    *commerce.Client
	pageDelay time.Duration
	maxPages  int
}

// ReaderOption customizes a Reader.
type ReaderOption func(*Reader)

// WithPageDelay overrides the pause between variant pages. The default keeps
// sequential page fetches under the platform's rate limit.
func WithPageDelay(d time.Duration) ReaderOption {
	return func(r *Reader) { r.pageDelay = d }
}

// WithMaxVariantPages overrides the pagination safety bound.
func WithMaxVariantPages(n int) ReaderOption {
	return func(r *Reader) { r.maxPages = n }
}

// NewReader creates a Reader over the given client.
func NewReader(client *commerce.Client, opts ...ReaderOption) *Reader {
	r := &Reader{
		client:    client,
		pageDelay: defaultPageDelay,
		maxPages:  defaultMaxPages,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wire shapes for the query payloads.

type summaryNode struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Handle           string `json:"handle"`
	ProductType      string `json:"productType"`
	AvailableForSale bool   `json:"availableForSale"`
	PriceRange       struct {
		MinVariantPrice Money `json:"minVariantPrice"`
	} `json:"priceRange"`
	Images   commerce.Connection[Image]   `json:"images"`
	Variants commerce.Connection[Variant] `json:"variants"`
}

type collectionProductsData struct {
	CollectionByHandle *struct {
		Products commerce.Connection[summaryNode] `json:"products"`
	} `json:"collectionByHandle"`
}

type collectionsData struct {
	Collections commerce.Connection[Collection] `json:"collections"`
}

type productDetailData struct {
	ProductByHandle *struct {
		ID               string                     `json:"id"`
		Title            string                     `json:"title"`
		Handle           string                     `json:"handle"`
		Description      string                     `json:"description"`
		DescriptionHTML  string                     `json:"descriptionHtml"`
		ProductType      string                     `json:"productType"`
		AvailableForSale bool                       `json:"availableForSale"`
		Options          []Option                   `json:"options"`
		PriceRange       PriceRange                 `json:"priceRange"`
		Images           commerce.Connection[Image] `json:"images"`
	} `json:"productByHandle"`
}

type productVariantsData struct {
	ProductByHandle *struct {
		Variants commerce.Connection[Variant] `json:"variants"`
	} `json:"productByHandle"`
}

type searchData struct {
	Products commerce.Connection[struct {
		ID         string                     `json:"id"`
		Title      string                     `json:"title"`
		Handle     string                     `json:"handle"`
		Images     commerce.Connection[Image] `json:"images"`
		PriceRange struct {
			MinVariantPrice Money `json:"minVariantPrice"`
		} `json:"priceRange"`
	}] `json:"products"`
}

// ListCollectionProducts returns product summaries for one collection, in the
// requested order. Results are cached for an hour under the products tag and
// a per-collection tag.
func (r *Reader) ListCollectionProducts(ctx context.Context, handle string, sort Sort) []Summary {
	key, reverse := sort.remote()
	query := fmt.Sprintf(collectionProductsQuery, collectionPageSize, key, reverse)

	data, _, err := commerce.Query[collectionProductsData](ctx, r.client, query,
		map[string]any{"handle": handle},
		commerce.CacheFor(collectionTTL, "products", "collection-"+handle),
	)
	if err != nil {
		zctx.From(ctx).Error("List collection products failed",
			zap.String("collection", handle), zap.Error(err))
		return nil
	}
	if data.CollectionByHandle == nil {
		return nil
	}

	nodes := data.CollectionByHandle.Products.Nodes()
	summaries := make([]Summary, 0, len(nodes))
	for _, n := range nodes {
		summaries = append(summaries, summaryFromNode(n))
	}
	return summaries
}

// ListCollections returns all collection summaries, cached for a day.
func (r *Reader) ListCollections(ctx context.Context) []Collection {
	data, _, err := commerce.Query[collectionsData](ctx, r.client, collectionsQuery,
		nil, commerce.CacheFor(collectionsListTTL, "collections"))
	if err != nil {
		zctx.From(ctx).Error("List collections failed", zap.Error(err))
		return nil
	}
	return data.Collections.Nodes()
}

// GetProduct returns the full product for handle, including every variant,
// or nil when the handle does not resolve. The base product is a cacheable
// read; variants are stitched from always-fresh pages so one logical product
// never mixes stale and fresh pages.
func (r *Reader) GetProduct(ctx context.Context, handle string) *Product {
	data, _, err := commerce.Query[productDetailData](ctx, r.client, productDetailQuery,
		map[string]any{"handle": handle},
		commerce.CacheFor(productTTL, "product-"+handle),
	)
	if err != nil {
		zctx.From(ctx).Error("Get product failed",
			zap.String("handle", handle), zap.Error(err))
		return nil
	}
	if data.ProductByHandle == nil {
		return nil
	}

	p := data.ProductByHandle
	return &Product{
		ID:               p.ID,
		Title:            p.Title,
		Handle:           p.Handle,
		Description:      p.Description,
		DescriptionHTML:  p.DescriptionHTML,
		ProductType:      p.ProductType,
		AvailableForSale: p.AvailableForSale,
		Options:          p.Options,
		PriceRange:       p.PriceRange,
		Images:           p.Images.Nodes(),
		Variants:         r.allVariants(ctx, handle),
	}
}

// allVariants follows the variant connection cursor page by page until the
// remote reports no further pages, concatenating results in page order. The
// loop stops early at maxPages to guard against a misbehaving paginator.
func (r *Reader) allVariants(ctx context.Context, handle string) []Variant {
	lg := zctx.From(ctx)
	query := fmt.Sprintf(productVariantsQuery, variantPageSize)

	var (
		variants []Variant
		cursor   string
	)
	for page := 0; page < r.maxPages; page++ {
		if page > 0 && r.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return variants
			case <-time.After(r.pageDelay):
			}
		}

		vars := map[string]any{"handle": handle}
		if cursor != "" {
			vars["cursor"] = cursor
		}

		data, _, err := commerce.Query[productVariantsData](ctx, r.client, query, vars, commerce.Fresh())
		if err != nil {
			lg.Error("Fetch variant page failed",
				zap.String("handle", handle), zap.Int("page", page), zap.Error(err))
			return variants
		}
		if data.ProductByHandle == nil {
			return variants
		}

		conn := data.ProductByHandle.Variants
		variants = append(variants, conn.Nodes()...)

		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == "" {
			return variants
		}
		cursor = conn.PageInfo.EndCursor
	}

	lg.Warn("Variant pagination stopped at safety bound",
		zap.String("handle", handle), zap.Int("max_pages", r.maxPages))
	return variants
}

// Search returns up to five lightweight suggestions for a prefix-style title
// match. Terms shorter than two characters after trimming are rejected
// locally with no remote call; search is best-effort and any failure yields
// an empty result.
func (r *Reader) Search(ctx context.Context, term string) []SearchResult {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minSearchLen {
		return nil
	}
	if runes := []rune(term); len(runes) > maxSearchLen {
		term = string(runes[:maxSearchLen])
	}
	// Escape double quotes so the term cannot break out of the query string.
	term = strings.ReplaceAll(term, `"`, `\"`)

	data, _, err := commerce.Query[searchData](ctx, r.client, searchQuery,
		map[string]any{"query": "title:" + term + "*"},
		commerce.CacheFor(searchTTL, "search"),
	)
	if err != nil {
		zctx.From(ctx).Warn("Search failed", zap.String("term", term), zap.Error(err))
		return nil
	}

	nodes := data.Products.Nodes()
	results := make([]SearchResult, 0, len(nodes))
	for _, n := range nodes {
		res := SearchResult{
			ID:     n.ID,
			Title:  n.Title,
			Handle: n.Handle,
			Price:  n.PriceRange.MinVariantPrice,
		}
		if imgs := n.Images.Nodes(); len(imgs) > 0 {
			img := imgs[0]
			res.Image = &img
		}
		results = append(results, res)
	}
	return results
}

func summaryFromNode(n summaryNode) Summary {
	s := Summary{
		ID:               n.ID,
		Title:            n.Title,
		Handle:           n.Handle,
		ProductType:      n.ProductType,
		AvailableForSale: n.AvailableForSale,
		Price:            n.PriceRange.MinVariantPrice,
	}
	if imgs := n.Images.Nodes(); len(imgs) > 0 {
		img := imgs[0]
		s.Image = &img
	}
	if vars := n.Variants.Nodes(); len(vars) > 0 {
		v := vars[0]
		s.Variant = &v
	}
	return s
}
