// Package config handles loading and validation of service configuration.
// Supports both development (env vars, .env, YAML settings file) and
// production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
// Environment determines whether merchant secrets load from env vars and the
// settings file (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	MerchantID string

	ServiceName    string
	ServiceVersion string

	// PublicURL is where Garan24 reaches the push and confirmation endpoints.
	PublicURL string

	// Persistence. Drivers are "postgres"/"memory" and "redis"/"memory".
	StoreDriver   string
	SessionDriver string
	PostgresURL   string
	RedisAddr     string

	// Order lifecycle events. Publishing is disabled without brokers.
	KafkaBrokers []string
	KafkaTopic   string

	// Tracing is enabled when an OTLP endpoint is configured.
	OTLPEndpoint string

	// Merchant-specific configuration (loaded from secrets)
	Merchant MerchantConfig
}

// MerchantConfig contains merchant-specific settings.
// In production, this is loaded from Secret Manager as JSON or YAML.
// In development, loaded from env vars, SETTINGS_FILE or CONFIG_FILE.
type MerchantConfig struct {
	StoreURL      string          `json:"store_url" yaml:"store_url"`
	SessionSecret string          `json:"session_secret" yaml:"session_secret"`
	AdminToken    string          `json:"admin_token,omitempty" yaml:"admin_token,omitempty"`
	Endpoints     EndpointConfig  `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	Gateways      GatewaySettings `json:"gateways" yaml:"gateways"`

	// ShopCountry is the store's base country, used when the cart currency
	// does not name a purchase country.
	ShopCountry string `json:"shop_country,omitempty" yaml:"shop_country,omitempty"`

	// OrderReceivedURL is the shop's thank-you page for KPM payments.
	OrderReceivedURL string `json:"order_received_url,omitempty" yaml:"order_received_url,omitempty"`
}

// EndpointConfig overrides the Garan24 base URLs. Empty fields keep the
// built-in defaults.
type EndpointConfig struct {
	LegacyTest string `json:"legacy_test,omitempty" yaml:"legacy_test,omitempty"`
	LegacyLive string `json:"legacy_live,omitempty" yaml:"legacy_live,omitempty"`
	EUTest     string `json:"eu_test,omitempty" yaml:"eu_test,omitempty"`
	EULive     string `json:"eu_live,omitempty" yaml:"eu_live,omitempty"`
	NATest     string `json:"na_test,omitempty" yaml:"na_test,omitempty"`
	NALive     string `json:"na_live,omitempty" yaml:"na_live,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// .env is a development convenience; a missing file is fine.
	if os.Getenv("ENVIRONMENT") != "production" {
		_ = godotenv.Load()
	}

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:           envOrDefault("PORT", "8080"),
		Environment:    envOrDefault("ENVIRONMENT", "development"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		GCPProject:     os.Getenv("GCP_PROJECT"),
		MerchantID:     os.Getenv("MERCHANT_ID"),
		ServiceName:    envOrDefault("SERVICE_NAME", "garan24-bridge"),
		ServiceVersion: envOrDefault("SERVICE_VERSION", "dev"),
		PublicURL:      os.Getenv("PUBLIC_URL"),
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     envOrDefault("KAFKA_TOPIC", "garan24.orders"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		StoreDriver:    os.Getenv("STORE_DRIVER"),
		SessionDriver:  os.Getenv("SESSION_DRIVER"),
	}

	if cfg.MerchantID == "" {
		return nil, fmt.Errorf("MERCHANT_ID environment variable required")
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading merchant config: %w", err)
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
		Port           string         `json:"port"`
		Environment    string         `json:"environment"`
		LogLevel       string         `json:"log_level"`
		MerchantID     string         `json:"merchant_id"`
		ServiceName    string         `json:"service_name"`
		ServiceVersion string         `json:"service_version"`
		PublicURL      string         `json:"public_url"`
		StoreDriver    string         `json:"store_driver"`
		SessionDriver  string         `json:"session_driver"`
		PostgresURL    string         `json:"postgres_url"`
		RedisAddr      string         `json:"redis_addr"`
		KafkaBrokers   []string       `json:"kafka_brokers"`
		KafkaTopic     string         `json:"kafka_topic"`
		OTLPEndpoint   string         `json:"otlp_endpoint"`
		Merchant       MerchantConfig `json:"merchant"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:           withDefault(fileConfig.Port, "8080"),
		Environment:    withDefault(fileConfig.Environment, "development"),
		LogLevel:       withDefault(fileConfig.LogLevel, "info"),
		MerchantID:     fileConfig.MerchantID,
		ServiceName:    withDefault(fileConfig.ServiceName, "garan24-bridge"),
		ServiceVersion: withDefault(fileConfig.ServiceVersion, "dev"),
		PublicURL:      fileConfig.PublicURL,
		StoreDriver:    fileConfig.StoreDriver,
		SessionDriver:  fileConfig.SessionDriver,
		PostgresURL:    fileConfig.PostgresURL,
		RedisAddr:      fileConfig.RedisAddr,
		KafkaBrokers:   fileConfig.KafkaBrokers,
		KafkaTopic:     withDefault(fileConfig.KafkaTopic, "garan24.orders"),
		OTLPEndpoint:   fileConfig.OTLPEndpoint,
		Merchant:       fileConfig.Merchant,
	}

	// A settings file next to the JSON config replaces its gateway block.
	if settingsPath := os.Getenv("SETTINGS_FILE"); settingsPath != "" {
		settings, err := LoadSettings(settingsPath)
		if err != nil {
			return nil, err
		}
		cfg.Merchant.Gateways = *settings
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

// loadFromSecretManager fetches merchant config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{merchant_id}/versions/latest
// The payload may be JSON or YAML; JSON parses as YAML.
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.MerchantID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := yaml.Unmarshal(result.Payload.Data, &c.Merchant); err != nil {
		return fmt.Errorf("parsing secret payload: %w", err)
	}

	return nil
}

// loadFromEnv reads merchant config from individual environment variables.
// Gateway settings come from the YAML file named by SETTINGS_FILE.
func (c *Config) loadFromEnv() error {
	c.Merchant = MerchantConfig{
		StoreURL:      os.Getenv("MERCHANT_STORE_URL"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),
		ShopCountry:   os.Getenv("SHOP_COUNTRY"),
		Endpoints: EndpointConfig{
			LegacyTest: os.Getenv("GARAN24_LEGACY_TEST_URL"),
			LegacyLive: os.Getenv("GARAN24_LEGACY_LIVE_URL"),
			EUTest:     os.Getenv("GARAN24_EU_TEST_URL"),
			EULive:     os.Getenv("GARAN24_EU_LIVE_URL"),
			NATest:     os.Getenv("GARAN24_NA_TEST_URL"),
			NALive:     os.Getenv("GARAN24_NA_LIVE_URL"),
		},
	}

	if settingsPath := os.Getenv("SETTINGS_FILE"); settingsPath != "" {
		settings, err := LoadSettings(settingsPath)
		if err != nil {
			return err
		}
		c.Merchant.Gateways = *settings
	}

	return nil
}

// applyDefaults picks storage drivers from what is configured and derives
// the public URL for local runs.
func (c *Config) applyDefaults() {
	if c.StoreDriver == "" {
		c.StoreDriver = "memory"
		if c.PostgresURL != "" {
			c.StoreDriver = "postgres"
		}
	}
	if c.SessionDriver == "" {
		c.SessionDriver = "memory"
		if c.RedisAddr != "" {
			c.SessionDriver = "redis"
		}
	}
	if c.PublicURL == "" {
		c.PublicURL = fmt.Sprintf("http://localhost:%s", c.Port)
	}
	c.PublicURL = strings.TrimSuffix(c.PublicURL, "/")
	c.Merchant.StoreURL = strings.TrimSuffix(c.Merchant.StoreURL, "/")
	if c.Merchant.ShopCountry == "" {
		c.Merchant.ShopCountry = "SE"
	}
	if c.Merchant.OrderReceivedURL == "" {
		c.Merchant.OrderReceivedURL = c.Merchant.StoreURL + "/checkout/order-received/"
	}
	c.Merchant.Gateways.normalize()
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Merchant.StoreURL == "" {
		return fmt.Errorf("store_url is required")
	}
	if _, err := url.Parse(c.Merchant.StoreURL); err != nil {
		return fmt.Errorf("invalid store_url: %w", err)
	}
	if c.Merchant.SessionSecret == "" {
		return fmt.Errorf("session_secret is required")
	}
	if c.Environment == "production" && c.Merchant.AdminToken == "" {
		return fmt.Errorf("admin_token is required in production")
	}

	switch c.StoreDriver {
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store driver: %s", c.StoreDriver)
	}

	switch c.SessionDriver {
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis sessions")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported session driver: %s", c.SessionDriver)
	}

	return c.Merchant.Gateways.validate()
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
