// Package shipping quotes delivery options from the carrier aggregator. It is
// a stateless call-and-map proxy: validate input, post the quote request,
// normalize the carrier services, and sort by price. Quotes are real-time and
// never cached.
package shipping

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured means the carrier token or origin postal code is
	// missing; no remote call is made.
	ErrNotConfigured = errors.New("shipping quote service is not configured")

	// ErrNoOptions means the carrier returned no usable services for the
	// destination.
	ErrNoOptions = errors.New("no shipping options available")

	// ErrEmptyItems means a quote was requested for an empty cart.
	ErrEmptyItems = errors.New("items required")
)

// InvalidPostalCodeError reports a postal code that does not normalize to
// eight digits. It is rejected before any network cost is incurred.
type InvalidPostalCodeError struct {
	Code string
}

func (e *InvalidPostalCodeError) Error() string {
	return fmt.Sprintf("invalid postal code %q", e.Code)
}

// InvalidItemError reports a quote item with a non-positive quantity or a
// negative price or weight.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// Item is one cart line in a quote request.
type Item struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Weight   decimal.Decimal `json:"weight"`
}

// Option is one quoted carrier service.
type Option struct {
	Name    string          `json:"name"`
	Carrier string          `json:"carrier"`
	Price   decimal.Decimal `json:"price"`
	Days    int             `json:"days"`
}
