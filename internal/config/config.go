package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type ctxKey string

const configContextKey ctxKey = "infestor.config"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Chain, creator and web configuration
	Infestor InfestorConfig `env:",prefix=INFESTOR_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=60"` // seconds
}

// DatabaseConfig holds gift code store configuration.
// An explicit DSN wins; otherwise the driver decides the local default.
type DatabaseConfig struct {
	Driver   string `env:"DRIVER,default=sqlite"`
	DSN      string `env:"DSN"`
	Path     string `env:"PATH,default=infestor.db"`
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=infestor"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=10"`
	MinConns int    `env:"MIN_CONNS,default=2"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=json"`
}

// InfestorConfig holds the creator identity, the node to talk to and the
// settings of the public web front-end.
type InfestorConfig struct {
	CreatorAccount string `env:"CREATOR_ACCOUNT"`
	ActiveKey      string `env:"ACTIVE_KEY"`

	NodeURL       string `env:"NODE_URL,default=https://api.steemit.com"`
	ChainID       string `env:"CHAIN_ID,default=0000000000000000000000000000000000000000000000000000000000000000"`
	AddressPrefix string `env:"ADDRESS_PREFIX,default=STM"`
	RPCTimeout    int    `env:"RPC_TIMEOUT,default=30"` // seconds

	SiteURL           string  `env:"SITE_URL,default=http://localhost:8080"`
	MinimumReputation float64 `env:"MINIMUM_REPUTATION,default=50"`
	OperatorWitness   string  `env:"OPERATOR_WITNESS"`
	FooterTemplate    string  `env:"FOOTER_TEMPLATE"`
	SessionSecret     string  `env:"SESSION_SECRET"`
	AdminToken        string  `env:"ADMIN_TOKEN"`

	// Redemption attempts per second allowed for a single client address
	RateLimit float64 `env:"RATE_LIMIT,default=1"`
	RateBurst int     `env:"RATE_BURST,default=5"`

	OAuth OAuthConfig `env:",prefix=OAUTH_"`
}

// OAuthConfig holds the identity provider settings
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	AuthURL      string `env:"AUTH_URL,default=https://steemconnect.com/oauth2/authorize"`
	TokenURL     string `env:"TOKEN_URL,default=https://steemconnect.com/api/oauth2/token"`
	MeURL        string `env:"ME_URL,default=https://steemconnect.com/api/me"`
	Scope        string `env:"SCOPE,default=login"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration using the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &cfg, nil
}

// WithContext stores the config in ctx
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

// FromContext returns the config stored in ctx, or nil
func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// GetDatabaseURL returns the connection string for the configured driver
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.IsSQLite() {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// IsSQLite returns true if the gift code store lives in a local sqlite file
func (c *DatabaseConfig) IsSQLite() bool {
	return strings.EqualFold(c.Driver, "sqlite")
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// CallbackURL is where the identity provider sends users back to
func (c *InfestorConfig) CallbackURL() string {
	return strings.TrimRight(c.SiteURL, "/") + "/callback"
}
