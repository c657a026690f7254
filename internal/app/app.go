package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/packon/storefront/internal/cart"
	"github.com/packon/storefront/internal/catalog"
	"github.com/packon/storefront/internal/commerce"
	"github.com/packon/storefront/internal/handler"
	"github.com/packon/storefront/internal/session"
	"github.com/packon/storefront/internal/shipping"
	"github.com/packon/storefront/internal/storage/boltstore"
	"github.com/packon/storefront/pkg/health"
	"github.com/packon/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("shop", cfg.Commerce.Domain))

	// Outbound HTTP with OpenTelemetry instrumentation.
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Remote data client: single entry point to the commerce API.
	commerceClient, err := commerce.New(commerce.Config{
		Domain:      cfg.Commerce.Domain,
		AccessToken: cfg.Commerce.AccessToken,
		APIVersion:  cfg.Commerce.APIVersion,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return errors.Wrap(err, "create commerce client")
	}

	// Cart-id persistence.
	cartDB, err := boltstore.Open(cfg.Cart.DBPath)
	if err != nil {
		return errors.Wrap(err, "open cart db")
	}
	defer func() { _ = cartDB.Close() }()

	// Core components.
	reader := catalog.NewReader(commerceClient)
	mutator := cart.NewMutator(commerceClient)
	sessions := session.NewManager(func(token string) *session.Store {
		return session.New(mutator, cartDB.IDs(token))
	})
	sessions.StartCleanup(ctx)
	shipper := shipping.New(shipping.Config{
		Token:            cfg.Shipping.Token,
		OriginPostalCode: cfg.Shipping.OriginPostalCode,
		Endpoint:         cfg.Shipping.Endpoint,
		HTTPClient:       httpClient,
	})

	// Health check service. Readiness follows the commerce endpoint: with the
	// remote platform unreachable this service can serve nothing useful.
	commerceURL := fmt.Sprintf("https://%s/api/%s/graphql.json", cfg.Commerce.Domain, cfg.Commerce.APIVersion)
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("commerce-api", 5*time.Second, health.HTTPGetCheck(httpClient, commerceURL))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(2*time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP surface.
	h := handler.New(reader, sessions, shipper)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
