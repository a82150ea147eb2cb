// Command security-tools-server publishes the AWS security tools over MCP,
// either on stdio for a local agent or as an authenticated streamable-HTTP
// endpoint behind the AgentCore gateway.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/auth"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/config"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/contextstore"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/guard"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/securitytools"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/toolserver"
)

const healthService = "triage.agent_gateway.v1.SecurityTools"

func main() {
	cfg := config.LoadToolServer()

	// stdout carries the MCP stream in stdio mode.
	output := "stdout"
	if cfg.Transport == config.TransportStdio {
		output = "stderr"
	}
	logger := config.MustBuildLogger(cfg.LogLevel, output)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	catalog, err := config.LoadCatalog(context.Background(), cfg.RegistryFile, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("failed to load tool registry", zap.Error(err))
	}

	tools := securitytools.New(
		securitytools.NewAWSClientFactory(),
		contextstore.New(cfg.ContextTTL),
		logger,
	)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := toolserver.New(toolserver.Config{
		Mapper:  mapper.New(catalog, logger),
		Guard:   guard.New(catalog, logger),
		Tools:   tools,
		Metrics: toolserver.NewMetrics(reg),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to build tool server", zap.Error(err))
	}

	if cfg.Transport == config.TransportStdio {
		logger.Info("serving MCP on stdio", zap.Strings("tools", srv.ToolNames()))
		if err := srv.ServeStdio(); err != nil {
			logger.Fatal("stdio server failed", zap.Error(err))
		}
		return
	}

	authenticator, err := auth.NewKeyAuthenticator(cfg.APIKeyHash, cfg.AuthCacheTTL, logger)
	if err != nil {
		logger.Fatal("invalid API key hash", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", authenticator.Middleware(srv.HTTPHandler()))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Health service for ECS health checks
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.HealthPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.HealthPort), zap.Error(err))
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("health server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}
		grpcServer.GracefulStop()
	}()

	logger.Info("security tools server listening",
		zap.String("addr", httpServer.Addr),
		zap.String("health_port", cfg.HealthPort),
		zap.Strings("tools", srv.ToolNames()),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
}
