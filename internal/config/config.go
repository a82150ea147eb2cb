// Package config reads process configuration from the environment and
// builds the shared logger and tool registry for each binary.
package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
)

// GatewayConfig configures the action-group Lambda.
type GatewayConfig struct {
	GatewayURL   string
	ClientID     string
	ClientSecret string
	// ClientSecretID names a Secrets Manager secret holding the client
	// secret, or a JSON object with client_id/client_secret.
	ClientSecretID string
	TokenURL       string
	Scope          string
	Timeout        time.Duration
	RegistryFile   string
	PostgresDSN    string
	OpenAPIFile    string
	ClickHouseDSN  string
	LogLevel       string
}

// LoadGateway reads GatewayConfig from the environment.
func LoadGateway() GatewayConfig {
	return GatewayConfig{
		GatewayURL:     os.Getenv("GATEWAY_URL"),
		ClientID:       os.Getenv("COGNITO_CLIENT_ID"),
		ClientSecret:   os.Getenv("COGNITO_CLIENT_SECRET"),
		ClientSecretID: os.Getenv("COGNITO_CLIENT_SECRET_ID"),
		TokenURL:       os.Getenv("TOKEN_URL"),
		Scope:          os.Getenv("COGNITO_SCOPE"),
		Timeout:        envOrDefaultDuration("GATEWAY_TIMEOUT_S", 30*time.Second),
		RegistryFile:   os.Getenv("REGISTRY_FILE"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		OpenAPIFile:    os.Getenv("OPENAPI_SCHEMA_FILE"),
		ClickHouseDSN:  os.Getenv("CLICKHOUSE_DSN"),
		LogLevel:       envOrDefault("GATEWAY_LOG_LEVEL", "info"),
	}
}

// Validate reports settings the Lambda cannot start without.
func (c GatewayConfig) Validate() error {
	switch {
	case c.GatewayURL == "":
		return fmt.Errorf("GATEWAY_URL is required")
	case c.TokenURL == "":
		return fmt.Errorf("TOKEN_URL is required")
	case c.ClientID == "" && c.ClientSecretID == "":
		return fmt.Errorf("COGNITO_CLIENT_ID or COGNITO_CLIENT_SECRET_ID is required")
	}
	return nil
}

// Transports served by the tool server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ToolServerConfig configures the MCP security tool server.
type ToolServerConfig struct {
	Transport    string
	Port         string
	HealthPort   string
	APIKeyHash   string
	AuthCacheTTL time.Duration
	ContextTTL   time.Duration
	RegistryFile string
	PostgresDSN  string
	LogLevel     string
}

// LoadToolServer reads ToolServerConfig from the environment.
func LoadToolServer() ToolServerConfig {
	return ToolServerConfig{
		Transport:    envOrDefault("TOOL_SERVER_TRANSPORT", TransportStdio),
		Port:         envOrDefault("TOOL_SERVER_PORT", "8080"),
		HealthPort:   envOrDefault("TOOL_SERVER_HEALTH_PORT", "50051"),
		APIKeyHash:   os.Getenv("TOOL_SERVER_API_KEY_HASH"),
		AuthCacheTTL: envOrDefaultDuration("TOOL_SERVER_AUTH_CACHE_TTL_S", 30*time.Second),
		ContextTTL:   envOrDefaultDuration("TOOL_SERVER_CONTEXT_TTL_S", 15*time.Minute),
		RegistryFile: os.Getenv("REGISTRY_FILE"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		LogLevel:     envOrDefault("TOOL_SERVER_LOG_LEVEL", "info"),
	}
}

// Validate reports unusable settings.
func (c ToolServerConfig) Validate() error {
	switch c.Transport {
	case TransportStdio:
		return nil
	case TransportHTTP:
		if c.APIKeyHash == "" {
			return fmt.Errorf("TOOL_SERVER_API_KEY_HASH is required for the http transport")
		}
		return nil
	default:
		return fmt.Errorf("unknown TOOL_SERVER_TRANSPORT %q", c.Transport)
	}
}

// BuildLogger builds a JSON production logger writing to output ("stdout"
// or "stderr"). Unknown levels mean info.
func BuildLogger(level, output string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}

// MustBuildLogger is BuildLogger for process startup.
func MustBuildLogger(level, output string) *zap.Logger {
	logger, err := BuildLogger(level, output)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

// LoadCatalog loads the tool registry once at startup: from file when
// registryFile is set, else from Postgres when postgresDSN is set, else the
// built-in registry.
func LoadCatalog(ctx context.Context, registryFile, postgresDSN string, logger *zap.Logger) (*registry.Catalog, error) {
	switch {
	case registryFile != "":
		c, err := registry.LoadFile(registryFile)
		if err != nil {
			return nil, err
		}
		logger.Info("tool registry loaded from file",
			zap.String("path", registryFile),
			zap.String("version", c.Version()),
		)
		return c, nil
	case postgresDSN != "":
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("LoadCatalog: open postgres: %w", err)
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(2)
		db.SetConnMaxLifetime(time.Minute)
		return registry.LoadPostgres(ctx, registry.PostgresLoaderConfig{DB: db, Logger: logger})
	default:
		c := registry.DefaultCatalog()
		logger.Info("using built-in tool registry", zap.String("version", c.Version()))
		return c, nil
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envOrDefaultDuration reads a whole number of seconds.
func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if s := envOrDefaultInt(key, -1); s >= 0 {
		return time.Duration(s) * time.Second
	}
	return defaultVal
}
