// Package cart holds the remote shopping-session aggregate and the GraphQL
// mutations that change it. The cart is owned by the remote commerce
// platform; this package only mirrors its authoritative snapshots.
package cart

import (
	"github.com/packon/storefront/internal/catalog"
	"github.com/packon/storefront/internal/commerce"
)

// Cart is a snapshot of the remote shopping session. Cost amounts are
// authoritative only from the remote system and are never recomputed locally.
type Cart struct {
	ID            string `json:"id"`
	CheckoutURL   string `json:"checkoutUrl"`
	TotalQuantity int    `json:"totalQuantity"`
	Cost          Cost   `json:"cost"`
	Lines         []Line `json:"lines"`
}

// Cost carries the cart's subtotal and total with currency.
type Cost struct {
	SubtotalAmount catalog.Money `json:"subtotalAmount"`
	TotalAmount    catalog.Money `json:"totalAmount"`
}

// Line is one quantity-bearing entry referencing a specific variant.
type Line struct {
	ID          string      `json:"id"`
	Quantity    int         `json:"quantity"`
	Merchandise Merchandise `json:"merchandise"`
}

// Merchandise is the read-only variant reference on a line.
type Merchandise struct {
	ID              string                   `json:"id"`
	Title           string                   `json:"title"`
	Price           catalog.Money            `json:"price"`
	SelectedOptions []catalog.SelectedOption `json:"selectedOptions"`
	Product         LineProduct              `json:"product"`
}

// LineProduct is the back-reference to the parent product of a line's variant.
type LineProduct struct {
	Title  string         `json:"title"`
	Handle string         `json:"handle"`
	Image  *catalog.Image `json:"image,omitempty"`
}

// Clone returns a deep copy. Snapshots handed to callers and rollback copies
// must not share slices with the store's own state.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Lines != nil {
		out.Lines = make([]Line, len(c.Lines))
		for i, ln := range c.Lines {
			out.Lines[i] = ln.clone()
		}
	}
	return &out
}

func (l Line) clone() Line {
	out := l
	if l.Merchandise.SelectedOptions != nil {
		opts := make([]catalog.SelectedOption, len(l.Merchandise.SelectedOptions))
		copy(opts, l.Merchandise.SelectedOptions)
		out.Merchandise.SelectedOptions = opts
	}
	if l.Merchandise.Product.Image != nil {
		img := *l.Merchandise.Product.Image
		out.Merchandise.Product.Image = &img
	}
	return out
}

// Wire shapes. The remote cart nests lines and product images in
// connections; these decode the fragment and flatten into the domain types.

type lineProductNode struct {
	Title  string                             `json:"title"`
	Handle string                             `json:"handle"`
	Images commerce.Connection[catalog.Image] `json:"images"`
}

type merchandiseNode struct {
	ID              string                   `json:"id"`
	Title           string                   `json:"title"`
	Price           catalog.Money            `json:"price"`
	SelectedOptions []catalog.SelectedOption `json:"selectedOptions"`
	Product         lineProductNode          `json:"product"`
}

type lineNode struct {
	ID          string          `json:"id"`
	Quantity    int             `json:"quantity"`
	Merchandise merchandiseNode `json:"merchandise"`
}

type cartNode struct {
	ID            string                        `json:"id"`
	CheckoutURL   string                        `json:"checkoutUrl"`
	TotalQuantity int                           `json:"totalQuantity"`
	Cost          Cost                          `json:"cost"`
	Lines         commerce.Connection[lineNode] `json:"lines"`
}

func (n *cartNode) toCart() *Cart {
	if n == nil {
		return nil
	}
	c := &Cart{
		ID:            n.ID,
		CheckoutURL:   n.CheckoutURL,
		TotalQuantity: n.TotalQuantity,
		Cost:          n.Cost,
	}
	for _, ln := range n.Lines.Nodes() {
		line := Line{
			ID:       ln.ID,
			Quantity: ln.Quantity,
			Merchandise: Merchandise{
				ID:              ln.Merchandise.ID,
				Title:           ln.Merchandise.Title,
				Price:           ln.Merchandise.Price,
				SelectedOptions: ln.Merchandise.SelectedOptions,
				Product: LineProduct{
					Title:  ln.Merchandise.Product.Title,
					Handle: ln.Merchandise.Product.Handle,
				},
			},
		}
		if imgs := ln.Merchandise.Product.Images.Nodes(); len(imgs) > 0 {
			img := imgs[0]
			line.Merchandise.Product.Image = &img
		}
		c.Lines = append(c.Lines, line)
	}
	return c
}
