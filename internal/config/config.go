package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Tabular       TabularConfig
	Credentials   CredentialsConfig
	Cache         CacheConfig
	Relational    RelationalConfig
	GenAI         GenAIConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TabularConfig points at the external tabular analytics service.
type TabularConfig struct {
	BaseURL  string
	Scope    string
	RowLimit int
}

type CredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type CacheConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// RelationalConfig registers direct connections for the relational dialect.
// Connections is a "conn-id=dsn;conn-id=dsn" list; queries against an
// unregistered connection go through the analytics service endpoint instead.
type RelationalConfig struct {
	Connections     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type GenAIConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	QueryGenEnabled bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("AIVA_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid AIVA_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "AIVA_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_TABULAR_BASE_URL", &cfg.Tabular.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_TABULAR_SCOPE", &cfg.Tabular.Scope); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AIVA_TABULAR_ROW_LIMIT", &cfg.Tabular.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_CREDENTIALS_TOKEN_URL", &cfg.Credentials.TokenURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_CREDENTIALS_CLIENT_ID", &cfg.Credentials.ClientID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_CREDENTIALS_CLIENT_SECRET", &cfg.Credentials.ClientSecret); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_CREDENTIALS_TIMEOUT", &cfg.Credentials.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_CACHE_TTL", &cfg.Cache.TTL); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_CACHE_SWEEP_INTERVAL", &cfg.Cache.SweepInterval); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_RELATIONAL_CONNECTIONS", &cfg.Relational.Connections); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AIVA_RELATIONAL_MAX_OPEN_CONNS", &cfg.Relational.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AIVA_RELATIONAL_MAX_IDLE_CONNS", &cfg.Relational.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_RELATIONAL_CONN_MAX_IDLE_TIME", &cfg.Relational.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_RELATIONAL_CONN_MAX_LIFETIME", &cfg.Relational.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_GENAI_BASE_URL", &cfg.GenAI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_GENAI_API_KEY", &cfg.GenAI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_GENAI_MODEL", &cfg.GenAI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "AIVA_GENAI_TEMPERATURE", &cfg.GenAI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AIVA_GENAI_MAX_TOKENS", &cfg.GenAI.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AIVA_GENAI_TIMEOUT", &cfg.GenAI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AIVA_GENAI_QUERYGEN_ENABLED", &cfg.GenAI.QueryGenEnabled); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AIVA_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "AIVA_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AIVA_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AIVA_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Tabular.RowLimit <= 0 {
		return Config{}, fmt.Errorf("tabular row limit must be positive")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "aiva-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Tabular: TabularConfig{
			BaseURL:  "http://localhost:9100",
			Scope:    "analytics.read",
			RowLimit: 500,
		},
		Credentials: CredentialsConfig{
			TokenURL: "http://localhost:9101/oauth2/token",
			Timeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			TTL:           300 * time.Second,
			SweepInterval: 2 * time.Minute,
		},
		Relational: RelationalConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		GenAI: GenAIConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-5",
			Temperature: 0.4,
			MaxTokens:   800,
			Timeout:     30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
