package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func oneItem() []Item {
	return []Item{{Quantity: 2, Price: dec("50.00"), Weight: dec("0.5")}}
}

func newTestShipper(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		Token:            "test-token",
		OriginPostalCode: "01310-100",
		Endpoint:         srv.URL,
	})
}

func TestQuote_NotConfigured(t *testing.T) {
	c := New(Config{})
	_, err := c.Quote(context.Background(), "01310100", oneItem())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestQuote_RejectsBadInputLocally(t *testing.T) {
	var calls atomic.Int32
	c := newTestShipper(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	ctx := context.Background()

	var cepErr *InvalidPostalCodeError
	_, err := c.Quote(ctx, "1234", oneItem())
	require.ErrorAs(t, err, &cepErr)
	assert.Equal(t, "1234", cepErr.Code)

	_, err = c.Quote(ctx, "01310-100", nil)
	assert.ErrorIs(t, err, ErrEmptyItems)

	var itemErr *InvalidItemError
	_, err = c.Quote(ctx, "01310-100", []Item{{Quantity: 0, Price: dec("1")}})
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 0, itemErr.Index)

	_, err = c.Quote(ctx, "01310-100", []Item{
		{Quantity: 1, Price: dec("1")},
		{Quantity: 1, Price: dec("-1")},
	})
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)

	_, err = c.Quote(ctx, "01310-100", []Item{{Quantity: 1, Price: dec("1"), Weight: dec("-1")}})
	require.ErrorAs(t, err, &itemErr)

	assert.Equal(t, int32(0), calls.Load(), "invalid input must never reach the carrier")
}

func TestQuote_RequestShape(t *testing.T) {
	var got map[string]any
	var gotToken string
	c := newTestShipper(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ShippingSevicesArray":[
			{"ServiceDescription":"PAC","Carrier":"Correios","ShippingPrice":"20.50","DeliveryTime":"8"}
		]}`))
	})

	_, err := c.Quote(context.Background(), "22041-001", []Item{
		{Quantity: 2, Price: dec("50.00"), Weight: dec("0.5")},
		{Quantity: 1, Price: dec("30.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "test-token", gotToken)
	assert.Equal(t, "01310100", got["SellerCEP"], "origin must be normalized to digits")
	assert.Equal(t, "22041001", got["RecipientCEP"])
	assert.Equal(t, "BR", got["RecipientCountry"])
	assert.Equal(t, "130", got["ShipmentInvoiceValue"], "invoice value is the sum of price times quantity")

	items := got["ShippingItemArray"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "0.5", first["Weight"])
	assert.Equal(t, float64(2), first["Quantity"])
	second := items[1].(map[string]any)
	assert.Equal(t, "1", second["Weight"], "zero weight is quoted at the 1kg minimum")
}

func TestQuote_FiltersAndSortsServices(t *testing.T) {
	c := newTestShipper(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ShippingSevicesArray":[
			{"ServiceDescription":"SEDEX","Carrier":"Correios","ShippingPrice":"35.90","DeliveryTime":"3"},
			{"ServiceDescription":"Down","Carrier":"Broken","Error":true,"Msg":"unavailable"},
			{"ServiceDescription":"PAC","Carrier":"Correios","ShippingPrice":"20.50","DeliveryTime":"8"},
			{"ServiceDescription":"Odd","Carrier":"Weird","ShippingPrice":"n/a","DeliveryTime":"5"}
		]}`))
	})

	options, err := c.Quote(context.Background(), "22041001", oneItem())
	require.NoError(t, err)

	require.Len(t, options, 2, "errored and unparseable services are dropped")
	assert.Equal(t, "PAC", options[0].Name)
	assert.Equal(t, "20.50", options[0].Price.StringFixed(2))
	assert.Equal(t, 8, options[0].Days)
	assert.Equal(t, "SEDEX", options[1].Name, "options must be sorted cheapest first")
}

func TestQuote_NoUsableServices(t *testing.T) {
	c := newTestShipper(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ShippingSevicesArray":[
			{"ServiceDescription":"Down","Carrier":"Broken","Error":true,"Msg":"unavailable"}
		]}`))
	})

	_, err := c.Quote(context.Background(), "22041001", oneItem())
	assert.ErrorIs(t, err, ErrNoOptions)
}

func TestQuote_MissingServicesArray(t *testing.T) {
	c := newTestShipper(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Message":"invalid token"}`))
	})

	_, err := c.Quote(context.Background(), "22041001", oneItem())
	assert.ErrorIs(t, err, ErrNoOptions)
}

func TestQuote_CarrierHTTPFailure(t *testing.T) {
	c := newTestShipper(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Quote(context.Background(), "22041001", oneItem())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoOptions)
}
