// Package config handles loading and validation of gateway configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Config holds all gateway configuration.
// Environment determines whether secrets load from env vars (development)
// or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string

	// StateDir is where tokens, the cached user, and the cart snapshot
	// are persisted. Defaults to ~/.shopgate.
	StateDir string

	// Store-specific configuration (loaded from secrets)
	Store StoreConfig
}

// StoreConfig contains backend connection settings for one store.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type StoreConfig struct {
	// BaseURL is the backend API root. The per-service URLs are
	// derived from it when not set explicitly.
	BaseURL string `json:"base_url"`

	AuthURL     string `json:"auth_url,omitempty"`
	ProductsURL string `json:"products_url,omitempty"`
	OrdersURL   string `json:"orders_url,omitempty"`
	ShippingURL string `json:"shipping_url,omitempty"`

	// StripeKey enables card payment confirmation when set.
	StripeKey string `json:"stripe_key,omitempty"`

	StoreName string `json:"store_name,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	// Otherwise, use ENV vars / Secret Manager approach
	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		StoreID:     os.Getenv("STORE_ID"),
		StateDir:    os.Getenv("STATE_DIR"),
	}

	// Load store config based on environment
	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StoreID == "" {
			return nil, fmt.Errorf("STORE_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string      `json:"port"`
		Environment string      `json:"environment"`
		LogLevel    string      `json:"log_level"`
		StoreID     string      `json:"store_id"`
		StateDir    string      `json:"state_dir"`
		Store       StoreConfig `json:"store"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		StoreID:     fileConfig.StoreID,
		StateDir:    fileConfig.StateDir,
		Store:       fileConfig.Store,
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches store config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadFromEnv reads store config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Store = StoreConfig{
		BaseURL:     os.Getenv("STORE_BASE_URL"),
		AuthURL:     os.Getenv("STORE_AUTH_URL"),
		ProductsURL: os.Getenv("STORE_PRODUCTS_URL"),
		OrdersURL:   os.Getenv("STORE_ORDERS_URL"),
		ShippingURL: os.Getenv("STORE_SHIPPING_URL"),
		StripeKey:   os.Getenv("STRIPE_SECRET_KEY"),
		StoreName:   os.Getenv("STORE_NAME"),
	}
	return nil
}

// applyDefaults derives the per-service URLs from the base URL and
// fills the state directory.
func (c *Config) applyDefaults() {
	base := strings.TrimSuffix(c.Store.BaseURL, "/")
	if base != "" {
		if c.Store.AuthURL == "" {
			c.Store.AuthURL = base + "/api/newauth"
		}
		if c.Store.ProductsURL == "" {
			c.Store.ProductsURL = base + "/api/products"
		}
		if c.Store.OrdersURL == "" {
			c.Store.OrdersURL = base + "/api/orders"
		}
		if c.Store.ShippingURL == "" {
			c.Store.ShippingURL = base + "/api/shipping"
		}
	}

	if c.StateDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.StateDir = filepath.Join(home, ".shopgate")
		}
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Store.AuthURL == "" || c.Store.OrdersURL == "" {
		return fmt.Errorf("base_url (or explicit auth_url and orders_url) is required")
	}
	for name, raw := range map[string]string{
		"auth_url":     c.Store.AuthURL,
		"products_url": c.Store.ProductsURL,
		"orders_url":   c.Store.OrdersURL,
		"shipping_url": c.Store.ShippingURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
