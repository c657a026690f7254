package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultEndpoint = "https://api.frenet.com.br/shipping/quote"
	defaultTimeout  = 10 * time.Second

	// Package dimensions are fixed until per-product dimensions exist in the
	// catalog.
	packageLength = 20
	packageHeight = 20
	packageWidth  = 20
)

// Config configures a Client.
type Config struct {
	// Token authenticates against the carrier aggregator.
	Token string
	// OriginPostalCode is the shipment origin.
	OriginPostalCode string
	// Endpoint overrides the quote endpoint, mainly for tests.
	Endpoint string
	// HTTPClient is the transport used for requests.
	HTTPClient *http.Client
	// Timeout bounds the quote call.
	Timeout time.Duration
}

// Client requests shipping quotes. A zero-configured client is usable but
// every Quote call fails with ErrNotConfigured.
type Client struct {
	token    string
	origin   string
	endpoint string
	http     *http.Client
	timeout  time.Duration
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		token:    cfg.Token,
		origin:   digitsOnly(cfg.OriginPostalCode),
		endpoint: cfg.Endpoint,
		http:     cfg.HTTPClient,
		timeout:  cfg.Timeout,
	}
}

// Carrier wire shapes. Field names follow the aggregator's API, including
// its misspelled services array.

type quoteItem struct {
	Weight    decimal.Decimal `json:"Weight"`
	Length    int             `json:"Length"`
	Height    int             `json:"Height"`
	Width     int             `json:"Width"`
	Quantity  int             `json:"Quantity"`
	IsFragile bool            `json:"IsFragile"`
}

type quoteRequest struct {
	SellerCEP            string          `json:"SellerCEP"`
	RecipientCEP         string          `json:"RecipientCEP"`
	ShipmentInvoiceValue decimal.Decimal `json:"ShipmentInvoiceValue"`
	ShippingItemArray    []quoteItem     `json:"ShippingItemArray"`
	RecipientCountry     string          `json:"RecipientCountry"`
}

type quoteService struct {
	ServiceDescription string `json:"ServiceDescription"`
	Carrier            string `json:"Carrier"`
	ShippingPrice      string `json:"ShippingPrice"`
	DeliveryTime       string `json:"DeliveryTime"`
	Error              bool   `json:"Error"`
	Msg                string `json:"Msg"`
}

type quoteResponse struct {
	ShippingSevicesArray []quoteService `json:"ShippingSevicesArray"`
	Message              string         `json:"Message"`
}

// Quote returns the available carrier services for shipping items to
// destination, cheapest first. Input problems are rejected before any remote
// call.
func (c *Client) Quote(ctx context.Context, destination string, items []Item) ([]Option, error) {
	if c.token == "" || c.origin == "" {
		return nil, ErrNotConfigured
	}

	dest := digitsOnly(destination)
	if len(dest) != 8 {
		return nil, &InvalidPostalCodeError{Code: destination}
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	invoiceValue := decimal.Zero
	quoteItems := make([]quoteItem, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidItemError{Index: i, Reason: "quantity must be greater than 0"}
		}
		if item.Price.IsNegative() {
			return nil, &InvalidItemError{Index: i, Reason: "price must not be negative"}
		}
		if item.Weight.IsNegative() {
			return nil, &InvalidItemError{Index: i, Reason: "weight must not be negative"}
		}

		weight := item.Weight
		if !weight.IsPositive() {
			// Carriers reject zero weights; quote at the 1kg minimum.
			weight = decimal.NewFromInt(1)
		}
		quoteItems[i] = quoteItem{
			Weight:   weight,
			Length:   packageLength,
			Height:   packageHeight,
			Width:    packageWidth,
			Quantity: item.Quantity,
		}
		invoiceValue = invoiceValue.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	body, err := json.Marshal(quoteRequest{
		SellerCEP:            c.origin,
		RecipientCEP:         dest,
		ShipmentInvoiceValue: invoiceValue,
		ShippingItemArray:    quoteItems,
		RecipientCountry:     "BR",
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode quote request")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build quote request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", c.token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "quote request")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("carrier returned status %d", res.StatusCode)
	}

	var quote quoteResponse
	if err := json.NewDecoder(res.Body).Decode(&quote); err != nil {
		return nil, errors.Wrap(err, "decode quote response")
	}
	if quote.ShippingSevicesArray == nil {
		zctx.From(ctx).Warn("Carrier returned no services array",
			zap.String("message", quote.Message))
		return nil, ErrNoOptions
	}

	options := make([]Option, 0, len(quote.ShippingSevicesArray))
	for _, svc := range quote.ShippingSevicesArray {
		if svc.Error {
			zctx.From(ctx).Debug("Skipping errored carrier service",
				zap.String("carrier", svc.Carrier), zap.String("msg", svc.Msg))
			continue
		}
		price, err := decimal.NewFromString(svc.ShippingPrice)
		if err != nil {
			continue
		}
		days, err := strconv.Atoi(svc.DeliveryTime)
		if err != nil {
			continue
		}
		options = append(options, Option{
			Name:    svc.ServiceDescription,
			Carrier: svc.Carrier,
			Price:   price,
			Days:    days,
		})
	}
	if len(options) == 0 {
		return nil, ErrNoOptions
	}

	sort.Slice(options, func(i, j int) bool {
		return options[i].Price.LessThan(options[j].Price)
	})
	return options, nil
}

// digitsOnly strips everything but ASCII digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
