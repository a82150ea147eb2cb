// Package toolserver serves the security tools over MCP. Each tool is
// published under its local name with the registry's JSON Schema, and every
// call runs through the same mapper and argument guard as the action-group
// gateway before reaching the tool implementation.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/guard"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/securitytools"
)

const (
	serverName    = "security-mcp-tools"
	serverVersion = "1.0.0"
)

// Caller runs one tool by local name. *securitytools.Toolset implements it.
type Caller interface {
	Call(ctx context.Context, name string, args mapper.Arguments) (map[string]any, error)
}

var _ Caller = (*securitytools.Toolset)(nil)

// Config holds dependencies for the tool server.
type Config struct {
	Mapper *mapper.Mapper
	Guard  *guard.Guard
	Tools  Caller
	// Metrics may be nil.
	Metrics *Metrics
	Logger  *zap.Logger
}

// Server wraps an mcp-go server with one tool per catalog entry.
type Server struct {
	mcp     *server.MCPServer
	mapper  *mapper.Mapper
	guard   *guard.Guard
	tools   Caller
	metrics *Metrics
	logger  *zap.Logger
	names   []string
}

// New registers every catalog tool. Guard may be nil.
func New(cfg Config) (*Server, error) {
	if cfg.Mapper == nil || cfg.Tools == nil {
		return nil, errors.New("toolserver.New: mapper and tools are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp:     server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(true)),
		mapper:  cfg.Mapper,
		guard:   cfg.Guard,
		tools:   cfg.Tools,
		metrics: cfg.Metrics,
		logger:  logger,
	}

	catalog := cfg.Mapper.Catalog()
	for _, toolName := range catalog.Tools() {
		sig, _ := catalog.Signature(toolName)
		schema, err := catalog.SchemaJSON(toolName)
		if err != nil {
			return nil, fmt.Errorf("toolserver.New: %w", err)
		}
		local := sig.LocalName()
		s.mcp.AddTool(mcp.NewToolWithRawSchema(local, sig.Description, schema), s.handler(toolName))
		s.names = append(s.names, local)
	}
	sort.Strings(s.names)
	logger.Info("tool server initialized",
		zap.Strings("tools", s.names),
		zap.String("registry_version", catalog.Version()),
	)
	return s, nil
}

// ToolNames returns the published tool names, sorted.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.names...)
}

// MCPServer exposes the underlying server for in-process callers.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// HTTPHandler returns a stateless streamable-HTTP handler.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

func (s *Server) handler(toolName string) server.ToolHandlerFunc {
	local := registry.LocalToolName(toolName)
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, outcome, err := s.call(ctx, toolName, req)
		s.metrics.observe(local, outcome, time.Since(start))
		if outcome != outcomeSuccess && err == nil {
			s.logger.Info("tool call failed",
				zap.String("tool", local),
				zap.String("outcome", outcome),
			)
		}
		return res, err
	}
}

func (s *Server) call(ctx context.Context, toolName string, req mcp.CallToolRequest) (*mcp.CallToolResult, string, error) {
	inbound, err := inboundFromArguments(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), outcomeBadArguments, nil
	}
	res, err := s.mapper.MapTool(toolName, inbound)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), outcomeMappingError, nil
	}
	if s.guard != nil {
		if err := s.guard.Check(ctx, toolName, res.Arguments); err != nil {
			return mcp.NewToolResultError(err.Error()), outcomeRejected, nil
		}
	}

	out, err := s.tools.Call(ctx, toolName, res.Arguments)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), outcomeToolError, nil
	}
	if len(res.Warnings) > 0 {
		// out may be held by the context store; annotate a copy.
		annotated := make(map[string]any, len(out)+1)
		maps.Copy(annotated, out)
		dropped := make([]string, len(res.Warnings))
		for i, w := range res.Warnings {
			dropped[i] = w.Name
		}
		annotated["dropped_parameters"] = dropped
		out = annotated
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, outcomeToolError, fmt.Errorf("encode %s result: %w", toolName, err)
	}
	return mcp.NewToolResultText(string(body)), outcomeSuccess, nil
}

// inboundFromArguments turns decoded MCP arguments into mapper input,
// ordered by name so repeated calls map identically.
func inboundFromArguments(args map[string]any) ([]mapper.InboundParameter, error) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]mapper.InboundParameter, 0, len(names))
	for _, name := range names {
		v, err := registry.ValueOf(args[name])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		out = append(out, mapper.InboundParameter{Name: name, Value: v})
	}
	return out, nil
}
