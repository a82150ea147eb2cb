// Package gateway calls tools on the AgentCore gateway over MCP's JSON-RPC
// transport, authenticating with OAuth client credentials.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config configures a Client.
type Config struct {
	GatewayURL string
	Client     OAuthClientInfo
	// TokenURL overrides Client.TokenEndpoint.
	TokenURL string
	Timeout  time.Duration
	// HTTPClient is the transport used for both the token endpoint and the
	// gateway. Nil means http.DefaultClient.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is safe for concurrent use. The OAuth token is fetched lazily and
// reused until it expires, so a Client should live as long as the process.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
	nextID atomic.Int64
}

// New builds a Client. Token requests run under a background context so a
// cancelled invocation does not poison the cached token source.
func New(cfg Config) (*Client, error) {
	if cfg.GatewayURL == "" {
		return nil, errors.New("gateway.New: gateway URL is required")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = cfg.Client.TokenEndpoint
	}
	if tokenURL == "" || cfg.Client.ClientID == "" {
		return nil, errors.New("gateway.New: token URL and client id are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.Client.ClientID,
		ClientSecret: cfg.Client.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       cfg.Client.Scopes(),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	hc := cc.Client(ctx)
	hc.Timeout = timeout

	return &Client{url: cfg.GatewayURL, http: hc, logger: logger}, nil
}

type rpcRequest struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      int64              `json:"id"`
	Method  string             `json:"method"`
	Params  mcp.CallToolParams `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object returned by the gateway.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("gateway rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a non-200 reply from the gateway.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway error: %d - %s", e.StatusCode, e.Body)
}

// ToolError is a tool result flagged isError by the tool itself.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	IsError           bool            `json:"isError"`
}

// ToolResult is a decoded tools/call result.
type ToolResult struct {
	// Data is the structured content when present, else the text content
	// decoded as JSON, else the text itself.
	Data any
	Raw  json.RawMessage
}

const maxErrorBody = 512

// CallTool invokes a gateway tool with already-mapped arguments.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (*ToolResult, error) {
	req := rpcRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      c.nextID.Add(1),
		Method:  string(mcp.MethodToolsCall),
		Params:  mcp.CallToolParams{Name: tool, Arguments: args},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("CallTool: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("CallTool: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("CallTool %s: %w", tool, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("gateway responded",
		zap.String("tool", tool),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	raw, err := readRPCMessage(resp)
	if err != nil {
		return nil, fmt.Errorf("CallTool %s: %w", tool, err)
	}
	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return nil, fmt.Errorf("CallTool %s: decode response: %w", tool, err)
	}
	if rpc.Error != nil {
		return nil, rpc.Error
	}
	return decodeToolResult(tool, rpc.Result)
}

// readRPCMessage returns the JSON-RPC message of a plain JSON reply, or the
// last data event of a text/event-stream reply.
func readRPCMessage(resp *http.Response) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		return io.ReadAll(resp.Body)
	}
	var last []byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			last = []byte(strings.TrimSpace(data))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == nil {
		return nil, errors.New("event stream carried no data")
	}
	return last, nil
}

func decodeToolResult(tool string, raw json.RawMessage) (*ToolResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &ToolResult{Raw: raw}, nil
	}
	var res toolCallResult
	if err := json.Unmarshal(raw, &res); err != nil {
		// Not an MCP tool result; pass the raw value through.
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("decode tool result: %w", err)
		}
		return &ToolResult{Data: data, Raw: raw}, nil
	}

	var texts []string
	for _, c := range res.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	text := strings.Join(texts, "\n")
	if res.IsError {
		return nil, &ToolError{Tool: tool, Message: text}
	}

	out := &ToolResult{Raw: raw}
	switch {
	case len(res.StructuredContent) > 0 && string(res.StructuredContent) != "null":
		if err := json.Unmarshal(res.StructuredContent, &out.Data); err != nil {
			return nil, fmt.Errorf("decode structured content: %w", err)
		}
	case len(texts) > 0:
		var data any
		if json.Unmarshal([]byte(text), &data) == nil {
			out.Data = data
		} else {
			out.Data = text
		}
	default:
		var data any
		if err := json.Unmarshal(raw, &data); err == nil {
			out.Data = data
		}
	}
	return out, nil
}
