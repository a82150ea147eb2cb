// Command action-gateway is the Bedrock Agent action-group Lambda. It maps
// each invocation's parameters onto the registered tool signature and
// forwards the call to the AgentCore gateway.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/config"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/envelope"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/gateway"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/guard"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/handler"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/storage"
)

func main() {
	cfg := config.LoadGateway()
	logger := config.MustBuildLogger(cfg.LogLevel, "stdout")
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Registry is loaded once per cold start.
	catalog, err := config.LoadCatalog(ctx, cfg.RegistryFile, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("failed to load tool registry", zap.Error(err))
	}

	var routes envelope.RouteTable
	if cfg.OpenAPIFile != "" {
		raw, err := os.ReadFile(cfg.OpenAPIFile)
		if err != nil {
			logger.Fatal("failed to read openapi schema", zap.String("path", cfg.OpenAPIFile), zap.Error(err))
		}
		if routes, err = envelope.Routes(raw); err != nil {
			logger.Fatal("failed to parse openapi schema", zap.Error(err))
		}
		logger.Info("openapi routes loaded", zap.Int("routes", len(routes)))
	}

	client := gateway.OAuthClientInfo{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		TokenEndpoint: cfg.TokenURL,
		Scope:         cfg.Scope,
	}
	if cfg.ClientSecretID != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Fatal("failed to load AWS config", zap.Error(err))
		}
		stored, err := gateway.LoadClientInfo(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.ClientSecretID)
		if err != nil {
			logger.Fatal("failed to load gateway credentials", zap.Error(err))
		}
		client = client.Merge(stored)
		logger.Info("gateway credentials loaded from secrets manager", zap.String("secret_id", cfg.ClientSecretID))
	}

	gw, err := gateway.New(gateway.Config{
		GatewayURL: cfg.GatewayURL,
		Client:     client,
		TokenURL:   cfg.TokenURL,
		Timeout:    cfg.Timeout,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to build gateway client", zap.Error(err))
	}

	// Invocation events: ClickHouse when configured, else log lines.
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(ctx, cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
	}
	defer writer.Close()

	h, err := handler.New(handler.Config{
		Mapper:  mapper.New(catalog, logger),
		Guard:   guard.New(catalog, logger),
		Gateway: gw,
		Routes:  routes,
		Events:  writer,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to build handler", zap.Error(err))
	}

	logger.Info("action gateway ready",
		zap.String("gateway_url", cfg.GatewayURL),
		zap.String("registry_version", catalog.Version()),
	)
	lambda.Start(h.HandleJSON)
}
