// Package catalog reads products, collections, and search suggestions from
// the remote commerce platform. All data here is fetched, never owned: every
// call returns a fresh caller-owned snapshot.
package catalog

import (
	"github.com/shopspring/decimal"
)

// Money is an amount with its currency code. Amounts come from the remote
// system and are never computed locally.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// Image is a catalog image with optional alt text.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

// Option is one configurable product dimension and its allowed values.
type Option struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// SelectedOption is one concrete option choice on a variant or cart line.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PriceRange spans the cheapest and most expensive variant of a product.
type PriceRange struct {
	MinVariantPrice Money `json:"minVariantPrice"`
	MaxVariantPrice Money `json:"maxVariantPrice"`
}

// Variant is one purchasable SKU of a product.
type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	AvailableForSale bool             `json:"availableForSale"`
	Price            Money            `json:"price"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
	Image            *Image           `json:"image,omitempty"`
}

// Product is a full catalog entity including every variant.
type Product struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Handle           string     `json:"handle"`
	Description      string     `json:"description"`
	DescriptionHTML  string     `json:"descriptionHtml"`
	ProductType      string     `json:"productType,omitempty"`
	AvailableForSale bool       `json:"availableForSale"`
	Options          []Option   `json:"options"`
	PriceRange       PriceRange `json:"priceRange"`
	Images           []Image    `json:"images"`
	Variants         []Variant  `json:"variants"`
}

// Summary is the lightweight product shape used in collection listings.
type Summary struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Handle           string   `json:"handle"`
	ProductType      string   `json:"productType,omitempty"`
	AvailableForSale bool     `json:"availableForSale"`
	Price            Money    `json:"price"`
	Image            *Image   `json:"image,omitempty"`
	Variant          *Variant `json:"variant,omitempty"`
}

// Collection is a navigable group of products.
type Collection struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
	Image  *Image `json:"image,omitempty"`
}

// SearchResult is one search suggestion.
type SearchResult struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
	Image  *Image `json:"image,omitempty"`
	Price  Money  `json:"price"`
}

// Sort enumerates the supported collection product orderings.
type Sort string

const (
	SortRelevance   Sort = "relevance"
	SortPriceAsc    Sort = "price_asc"
	SortPriceDesc   Sort = "price_desc"
	SortCreatedDesc Sort = "created_desc"
)

// remote maps the option to the API's sort key enum and direction flag.
// Unknown values fall back to newest-first, matching the default listing.
func (s Sort) remote() (key string, reverse bool) {
	switch s {
	case SortRelevance:
		return "RELEVANCE", false
	case SortPriceAsc:
		return "PRICE", false
	case SortPriceDesc:
		return "PRICE", true
	case SortCreatedDesc:
		return "CREATED", true
	default:
		return "CREATED", true
	}
}
