// ShopGate - Storefront client gateway over a headless commerce backend.
// Designed for Cloud Run deployment; session state persists to disk.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopgate/internal/api"
	"shopgate/internal/cart"
	"shopgate/internal/catalog"
	"shopgate/internal/checkout"
	"shopgate/internal/config"
	"shopgate/internal/handler"
	"shopgate/internal/middleware"
	"shopgate/internal/payment"
	"shopgate/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("auth_url", cfg.Store.AuthURL),
		slog.String("orders_url", cfg.Store.OrdersURL),
		slog.String("state_dir", cfg.StateDir),
	)

	// Session manager over persisted tokens
	store, err := session.NewFileStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("opening state dir: %w", err)
	}
	sessions, err := session.New(store, session.Config{
		AuthURL: cfg.Store.AuthURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	// Authenticated API client shared by all backend-facing components
	client, err := api.NewClient(api.Config{
		Tokens: sessions,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating api client: %w", err)
	}

	cartStore, err := cart.NewStore(cart.Config{
		BaseURL:     cfg.Store.OrdersURL,
		Backend:     client,
		SnapshotDir: cfg.StateDir,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating cart store: %w", err)
	}
	// Logout and expiration empty the cart
	sessions.OnClear(cartStore.Reset)

	catalogClient, err := catalog.NewClient(client, catalog.Config{
		ProductsURL: cfg.Store.ProductsURL,
		OrdersURL:   cfg.Store.OrdersURL,
		ShippingURL: cfg.Store.ShippingURL,
	})
	if err != nil {
		return fmt.Errorf("creating catalog client: %w", err)
	}

	var confirmer payment.Confirmer = payment.DeferredConfirmer{}
	if cfg.Store.StripeKey != "" {
		confirmer = payment.NewStripeConfirmer(cfg.Store.StripeKey, logger)
	} else {
		logger.Warn("no stripe key configured, card confirmation disabled")
	}

	orchestrator, err := checkout.New(checkout.Config{
		OrdersURL: cfg.Store.OrdersURL,
		Backend:   client,
		Cart:      cartStore,
		Methods:   catalogClient,
		Confirmer: confirmer,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating checkout orchestrator: %w", err)
	}

	h := handler.New(cartStore, orchestrator, catalogClient, sessions, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → logging → CORS → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.CORS(os.Getenv("ALLOW_ORIGIN")),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
