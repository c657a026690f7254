package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packon/storefront/internal/commerce"
)

// graphqlStub routes incoming operations to a per-test handler and counts
// calls.
type graphqlStub struct {
	t      *testing.T
	calls  atomic.Int32
	handle func(query string, vars map[string]any) string
}

func (s *graphqlStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	var body struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
	_, _ = w.Write([]byte(s.handle(body.Query, body.Variables)))
}

func newTestReader(t *testing.T, stub *graphqlStub, opts ...ReaderOption) (*Reader, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	client, err := commerce.New(commerce.Config{
		Endpoint:    srv.URL,
		AccessToken: "test-token",
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
	})
	require.NoError(t, err)

	opts = append([]ReaderOption{WithPageDelay(0)}, opts...)
	return NewReader(client, opts...), srv
}

const productDetailBody = `{"data":{"productByHandle":{
	"id": "gid://product/1",
	"title": "Cardboard Box",
	"handle": "cardboard-box",
	"description": "A box.",
	"descriptionHtml": "<p>A box.</p>",
	"productType": "packaging",
	"availableForSale": true,
	"options": [{"name": "Size", "values": ["S", "M", "L"]}],
	"priceRange": {
		"minVariantPrice": {"amount": "10.00", "currencyCode": "BRL"},
		"maxVariantPrice": {"amount": "30.00", "currencyCode": "BRL"}
	},
	"images": {"edges": [{"node": {"url": "https://cdn/box.jpg", "altText": "box"}}]}
}}}`

func variantPage(from, to int, nextCursor string) string {
	var edges []string
	for i := from; i <= to; i++ {
		edges = append(edges, fmt.Sprintf(
			`{"node":{"id":"gid://variant/%d","title":"v%d","availableForSale":true,
			  "price":{"amount":"10.00","currencyCode":"BRL"},
			  "selectedOptions":[{"name":"Size","value":"S"}]}}`, i, i))
	}
	pageInfo := `{"hasNextPage":false,"endCursor":""}`
	if nextCursor != "" {
		pageInfo = fmt.Sprintf(`{"hasNextPage":true,"endCursor":%q}`, nextCursor)
	}
	return fmt.Sprintf(`{"data":{"productByHandle":{"variants":{"pageInfo":%s,"edges":[%s]}}}}`,
		pageInfo, strings.Join(edges, ","))
}

func TestGetProduct_StitchesVariantPages(t *testing.T) {
	var cursors []string
	stub := &graphqlStub{t: t}
	stub.handle = func(query string, vars map[string]any) string {
		if strings.Contains(query, "getProductDetails") {
			return productDetailBody
		}
		cursor, _ := vars["cursor"].(string)
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			return variantPage(1, 3, "c1")
		case "c1":
			return variantPage(4, 6, "c2")
		case "c2":
			return variantPage(7, 8, "")
		default:
			t.Fatalf("unexpected cursor %q", cursor)
			return ""
		}
	}

	r, _ := newTestReader(t, stub)
	p := r.GetProduct(context.Background(), "cardboard-box")

	require.NotNil(t, p)
	assert.Equal(t, "Cardboard Box", p.Title)
	assert.Equal(t, []string{"", "c1", "c2"}, cursors)

	require.Len(t, p.Variants, 8, "all three pages must be concatenated")
	for i, v := range p.Variants {
		assert.Equal(t, fmt.Sprintf("gid://variant/%d", i+1), v.ID, "variants must keep page order")
	}
}

func TestGetProduct_UnknownHandle(t *testing.T) {
	stub := &graphqlStub{t: t}
	stub.handle = func(string, map[string]any) string {
		return `{"data":{"productByHandle":null}}`
	}

	r, _ := newTestReader(t, stub)
	assert.Nil(t, r.GetProduct(context.Background(), "no-such-product"))
	assert.Equal(t, int32(1), stub.calls.Load(), "variant pagination must not run for a missing product")
}

func TestGetProduct_PaginationSafetyBound(t *testing.T) {
	stub := &graphqlStub{t: t}
	page := 0
	stub.handle = func(query string, vars map[string]any) string {
		if strings.Contains(query, "getProductDetails") {
			return productDetailBody
		}
		// A paginator that never terminates.
		page++
		return variantPage(page, page, fmt.Sprintf("c%d", page))
	}

	r, _ := newTestReader(t, stub, WithMaxVariantPages(4))
	p := r.GetProduct(context.Background(), "cardboard-box")

	require.NotNil(t, p)
	assert.Len(t, p.Variants, 4, "the loop must stop at the page bound")
}

func TestListCollectionProducts(t *testing.T) {
	stub := &graphqlStub{t: t}
	var gotQuery string
	stub.handle = func(query string, vars map[string]any) string {
		gotQuery = query
		assert.Equal(t, "boxes", vars["handle"])
		return `{"data":{"collectionByHandle":{"products":{"edges":[
			{"node":{
				"id":"gid://product/1","title":"Box","handle":"box","productType":"packaging",
				"availableForSale":true,
				"priceRange":{"minVariantPrice":{"amount":"10.00","currencyCode":"BRL"}},
				"images":{"edges":[{"node":{"url":"https://cdn/1.jpg","altText":""}}]},
				"variants":{"edges":[{"node":{"id":"gid://variant/1","availableForSale":true,
					"price":{"amount":"10.00","currencyCode":"BRL"},
					"selectedOptions":[{"name":"Size","value":"S"}]}}]}
			}}
		]}}}}`
	}

	r, _ := newTestReader(t, stub)
	products := r.ListCollectionProducts(context.Background(), "boxes", SortPriceDesc)

	require.Len(t, products, 1)
	assert.Equal(t, "Box", products[0].Title)
	assert.Equal(t, "10.00", products[0].Price.Amount.StringFixed(2))
	require.NotNil(t, products[0].Image)
	require.NotNil(t, products[0].Variant)
	assert.Equal(t, "gid://variant/1", products[0].Variant.ID)

	assert.Contains(t, gotQuery, "sortKey: PRICE")
	assert.Contains(t, gotQuery, "reverse: true")
}

func TestListCollectionProducts_UnknownCollection(t *testing.T) {
	stub := &graphqlStub{t: t}
	stub.handle = func(string, map[string]any) string {
		return `{"data":{"collectionByHandle":null}}`
	}

	r, _ := newTestReader(t, stub)
	assert.Empty(t, r.ListCollectionProducts(context.Background(), "nope", SortRelevance))
}

func TestListCollections(t *testing.T) {
	stub := &graphqlStub{t: t}
	stub.handle = func(string, map[string]any) string {
		return `{"data":{"collections":{"edges":[
			{"node":{"id":"gid://collection/1","title":"Boxes","handle":"boxes",
				"image":{"url":"https://cdn/c.jpg","altText":""}}}
		]}}}`
	}

	r, _ := newTestReader(t, stub)
	collections := r.ListCollections(context.Background())

	require.Len(t, collections, 1)
	assert.Equal(t, "boxes", collections[0].Handle)
}

func TestSearch_TermTooShortMakesNoRemoteCall(t *testing.T) {
	stub := &graphqlStub{t: t}
	stub.handle = func(string, map[string]any) string { return `{"data":{}}` }

	r, _ := newTestReader(t, stub)

	assert.Empty(t, r.Search(context.Background(), "a"))
	assert.Empty(t, r.Search(context.Background(), "  a  "))
	assert.Empty(t, r.Search(context.Background(), ""))
	assert.Equal(t, int32(0), stub.calls.Load())
}

func TestSearch_TwoCharsMakesExactlyOneCall(t *testing.T) {
	stub := &graphqlStub{t: t}
	stub.handle = func(query string, vars map[string]any) string {
		assert.Equal(t, "title:ab*", vars["query"])
		return `{"data":{"products":{"edges":[
			{"node":{"id":"gid://product/1","title":"abacate","handle":"abacate",
				"images":{"edges":[]},
				"priceRange":{"minVariantPrice":{"amount":"5.00","currencyCode":"BRL"}}}}
		]}}}`
	}

	r, _ := newTestReader(t, stub)
	results := r.Search(context.Background(), "ab")

	require.Len(t, results, 1)
	assert.Equal(t, "abacate", results[0].Title)
	assert.Nil(t, results[0].Image)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestSearch_EscapesQuotes(t *testing.T) {
	stub := &graphqlStub{t: t}
	stub.handle = func(query string, vars map[string]any) string {
		assert.Equal(t, `title:ab\"cd*`, vars["query"])
		return `{"data":{"products":{"edges":[]}}}`
	}

	r, _ := newTestReader(t, stub)
	assert.Empty(t, r.Search(context.Background(), `ab"cd`))
}

func TestSearch_FailureYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client, err := commerce.New(commerce.Config{
		Endpoint:    srv.URL,
		AccessToken: "test-token",
		MaxAttempts: 1,
	})
	require.NoError(t, err)

	r := NewReader(client, WithPageDelay(0))
	assert.Empty(t, r.Search(context.Background(), "boxes"))
}
