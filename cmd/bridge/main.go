// Garan24 bridge - runs the Garan24 payment gateways, the embedded checkout
// and the provider push listener in front of a WooCommerce store.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"garan24-bridge/internal/bridge"
	"garan24-bridge/internal/checkout"
	"garan24-bridge/internal/config"
	"garan24-bridge/internal/events"
	"garan24-bridge/internal/garan24"
	"garan24-bridge/internal/gateway"
	"garan24-bridge/internal/handler"
	"garan24-bridge/internal/middleware"
	"garan24-bridge/internal/scheduler"
	"garan24-bridge/internal/session"
	"garan24-bridge/internal/store"
	"garan24-bridge/internal/telemetry"
	"garan24-bridge/internal/transport"
	"garan24-bridge/internal/woocommerce"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("merchant_id", cfg.MerchantID),
		slog.String("environment", cfg.Environment),
		slog.String("store_url", cfg.Merchant.StoreURL),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("session_driver", cfg.SessionDriver),
	)

	// Telemetry
	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return fmt.Errorf("init meter: %w", err)
	}
	defer shutdownMeter(context.Background())

	if err := telemetry.StartRuntimeMetrics(); err != nil {
		return fmt.Errorf("runtime metrics: %w", err)
	}
	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	// Order events
	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
		logger.Info("publishing order events", slog.String("topic", cfg.KafkaTopic))
	}

	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}

	orders, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	settings := &cfg.Merchant.Gateways
	factory := &garan24.ClientFactory{
		Endpoints:  endpoints(cfg.Merchant.Endpoints),
		HTTPClient: transport.NewClient(transport.Options{Timeout: 30 * time.Second, Name: "garan24"}),
		Logger:     logger,
		Debug:      settings.Debug,
	}

	woo, err := woocommerce.New(woocommerce.Config{
		StoreURL:   cfg.Merchant.StoreURL,
		HTTPClient: transport.NewClient(transport.Options{Timeout: 30 * time.Second, Fingerprint: true, Name: "woocommerce"}),
	})
	if err != nil {
		return fmt.Errorf("creating store client: %w", err)
	}

	b := bridge.New(bridge.Deps{
		Store:    orders,
		Claims:   sessions,
		Garan24:  factory,
		Settings: settings,
		Events:   publisher,
		Metrics:  metrics,
		Logger:   logger,
	})

	checkoutURL := settings.Checkout.CheckoutURL(cfg.Merchant.ShopCountry, "")
	if checkoutURL == "" {
		checkoutURL = cfg.PublicURL + "/checkout"
	}
	gateways := gateway.NewRegistry(gateway.Deps{
		Bridge:          b,
		Garan24:         factory,
		ConfirmationURL: cfg.Merchant.OrderReceivedURL,
		CheckoutURL:     checkoutURL,
		Logger:          logger,
	})

	manager := &session.Manager{
		Store:  sessions,
		Secure: strings.HasPrefix(cfg.PublicURL, "https://"),
	}
	ctrl := checkout.New(checkout.Deps{
		Carts:       woo,
		Sessions:    manager,
		Nonces:      session.NewNonces(cfg.Merchant.SessionSecret),
		Bridge:      b,
		Garan24:     factory,
		Settings:    settings,
		PublicURL:   cfg.PublicURL,
		ShopCountry: cfg.Merchant.ShopCountry,
		Logger:      logger,
	})

	h := handler.New(handler.Deps{
		Bridge:     b,
		Gateways:   gateways,
		Checkout:   ctrl,
		Carts:      woo,
		Sessions:   manager,
		Metrics:    metricsHandler,
		AdminToken: cfg.Merchant.AdminToken,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := otelhttp.NewHandler(middleware.Chain(
		middleware.Recovery(logger),
		middleware.RealIP,
		middleware.RequestID,
		middleware.Logging(logger),
	)(mux), cfg.ServiceName)

	// Order housekeeping: pending checks and incomplete order purge
	go scheduler.New(b, logger).Run(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("public_url", cfg.PublicURL),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

func openSessions(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.SessionDriver != "redis" {
		return session.NewMemory(), nil
	}
	rdb := session.NewRedisClient(cfg.RedisAddr)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return session.NewRedis(rdb), nil
}

// openStore returns the order store. db is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config) (store.OrderStore, *sql.DB, error) {
	if cfg.StoreDriver != "postgres" {
		return store.NewMemory(), nil, nil
	}
	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return store.NewPostgres(db), db, nil
}

func endpoints(c config.EndpointConfig) garan24.Endpoints {
	return garan24.Endpoints{
		LegacyTest: c.LegacyTest,
		LegacyLive: c.LegacyLive,
		EUTest:     c.EUTest,
		EULive:     c.EULive,
		NATest:     c.NATest,
		NALive:     c.NALive,
	}.Merge(garan24.DefaultEndpoints())
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
func initLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
