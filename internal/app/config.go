package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Commerce  CommerceConfig
	Cart      CartConfig
	Shipping  ShippingConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// CommerceConfig points the client at the remote commerce platform.
type CommerceConfig struct {
	Domain      string `usage:"Shop domain, e.g. my-shop.myshopify.com"`
	AccessToken string `usage:"Storefront access token" flag:"access-token"`
	APIVersion  string `default:"2024-01" usage:"Commerce API version path segment" flag:"api-version"`
}

// CartConfig controls cart-id persistence.
type CartConfig struct {
	DBPath string `default:"storefront-carts.db" usage:"Path to the cart session database file" flag:"cart-db"`
}

// ShippingConfig configures the carrier quote client. When token or origin
// is empty, quote requests answer 503 instead of calling the carrier.
type ShippingConfig struct {
	Token            string `usage:"Carrier aggregator API token" flag:"shipping-token"`
	OriginPostalCode string `usage:"Shipment origin postal code" flag:"origin-postal-code"`
	Endpoint         string `default:"" usage:"Carrier quote endpoint override" flag:"shipping-endpoint"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults. The commerce credentials are
// required: the whole application is a client of that API.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.Commerce.Domain == "" {
		return nil, errors.New("commerce domain is required: set STOREFRONT_COMMERCE_DOMAIN")
	}
	if cfg.Commerce.AccessToken == "" {
		return nil, errors.New("commerce access token is required: set STOREFRONT_COMMERCE_ACCESS_TOKEN")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) to the application's configuration.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
