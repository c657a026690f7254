package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/packon/storefront/internal/commerce"
)

// cartFragment is the shared response shape for every cart operation, so a
// caller always receives a complete, consistent snapshot and never needs a
// partial merge.
const cartFragment = `
  id
  checkoutUrl
  totalQuantity
  cost {
    totalAmount { amount currencyCode }
    subtotalAmount { amount currencyCode }
  }
  lines(first: 100) {
    edges {
      node {
        id
        quantity
        merchandise {
          ... on ProductVariant {
            id
            title
            price { amount currencyCode }
            selectedOptions { name value }
            product {
              title
              handle
              images(first: 1) {
                edges { node { url altText } }
              }
            }
          }
        }
      }
    }
  }
`

var (
	createMutation = `mutation cartCreate { cartCreate { cart {` + cartFragment + `} } }`

	readQuery = `query getCart($id: ID!) { cart(id: $id) {` + cartFragment + `} }`

	addLinesMutation = `
  mutation cartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
    cartLinesAdd(cartId: $cartId, lines: $lines) {
      cart {` + cartFragment + `}
    }
  }`

	removeLinesMutation = `
  mutation cartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
    cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
      cart {` + cartFragment + `}
    }
  }`

	updateLinesMutation = `
  mutation cartLinesUpdate($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
    cartLinesUpdate(cartId: $cartId, lines: $lines) {
      cart {` + cartFragment + `}
    }
  }`
)

// LineInput describes a variant and quantity to add.
type LineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// LineUpdate sets a new quantity on an existing line.
type LineUpdate struct {
	LineID   string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Mutator wraps the cart-changing GraphQL operations and the cart read. All
// calls use the always-fresh policy: cart state is never served from cache.
type Mutator struct {
	client *commerce.Client
}

// NewMutator creates a Mutator over the given client.
func NewMutator(client *commerce.Client) *Mutator {
	return &Mutator{client: client}
}

type cartPayload struct {
	Cart *cartNode `json:"cart"`
}

// Create obtains a fresh empty cart from the remote platform.
func (m *Mutator) Create(ctx context.Context) (*Cart, error) {
	data, gqlErrs, err := commerce.Query[struct {
		CartCreate cartPayload `json:"cartCreate"`
	}](ctx, m.client, createMutation, nil, commerce.Fresh())
	if err != nil {
		return nil, errors.Wrap(err, "cart create")
	}
	if data.CartCreate.Cart == nil {
		return nil, remoteError("cart create", gqlErrs)
	}
	return data.CartCreate.Cart.toCart(), nil
}

// Read fetches the current cart for id. A (nil, nil) return means the remote
// system no longer recognizes the id — the caller's signal to discard it and
// start a new session. Transport failures return a non-nil error instead.
func (m *Mutator) Read(ctx context.Context, id string) (*Cart, error) {
	data, _, err := commerce.Query[struct {
		Cart *cartNode `json:"cart"`
	}](ctx, m.client, readQuery, map[string]any{"id": id}, commerce.Fresh())
	if err != nil {
		return nil, errors.Wrap(err, "cart read")
	}
	return data.Cart.toCart(), nil
}

// AddLines adds merchandise lines and returns the full updated cart.
func (m *Mutator) AddLines(ctx context.Context, id string, lines []LineInput) (*Cart, error) {
	data, gqlErrs, err := commerce.Query[struct {
		CartLinesAdd cartPayload `json:"cartLinesAdd"`
	}](ctx, m.client, addLinesMutation,
		map[string]any{"cartId": id, "lines": lines}, commerce.Fresh())
	if err != nil {
		return nil, errors.Wrap(err, "cart lines add")
	}
	if data.CartLinesAdd.Cart == nil {
		return nil, remoteError("cart lines add", gqlErrs)
	}
	return data.CartLinesAdd.Cart.toCart(), nil
}

// RemoveLines removes the identified lines and returns the full updated cart.
func (m *Mutator) RemoveLines(ctx context.Context, id string, lineIDs []string) (*Cart, error) {
	data, gqlErrs, err := commerce.Query[struct {
		CartLinesRemove cartPayload `json:"cartLinesRemove"`
	}](ctx, m.client, removeLinesMutation,
		map[string]any{"cartId": id, "lineIds": lineIDs}, commerce.Fresh())
	if err != nil {
		return nil, errors.Wrap(err, "cart lines remove")
	}
	if data.CartLinesRemove.Cart == nil {
		return nil, remoteError("cart lines remove", gqlErrs)
	}
	return data.CartLinesRemove.Cart.toCart(), nil
}

// UpdateLines sets new quantities on existing lines and returns the full
// updated cart.
func (m *Mutator) UpdateLines(ctx context.Context, id string, updates []LineUpdate) (*Cart, error) {
	data, gqlErrs, err := commerce.Query[struct {
		CartLinesUpdate cartPayload `json:"cartLinesUpdate"`
	}](ctx, m.client, updateLinesMutation,
		map[string]any{"cartId": id, "lines": updates}, commerce.Fresh())
	if err != nil {
		return nil, errors.Wrap(err, "cart lines update")
	}
	if data.CartLinesUpdate.Cart == nil {
		return nil, remoteError("cart lines update", gqlErrs)
	}
	return data.CartLinesUpdate.Cart.toCart(), nil
}

// remoteError reports a mutation whose response carried no cart.
func remoteError(op string, gqlErrs []commerce.GraphQLError) error {
	if len(gqlErrs) > 0 {
		return errors.Errorf("%s: remote error: %s", op, gqlErrs[0].Message)
	}
	return errors.Errorf("%s: no cart in response", op)
}
