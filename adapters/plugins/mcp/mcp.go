// Package mcp provides the Model Context Protocol plugin: AI model
// invocations (completion, embedding, chat, analysis) over a JSON-RPC
// websocket transport to an MCP server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// Config configures an MCP plugin instance.
type Config struct {
	Endpoint    string        `yaml:"endpoint"` // ws:// or wss:// URL
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint cannot be empty")
	}
	if c.Model == "" {
		return errors.New("model cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0, got %g", c.Temperature)
	}
	return nil
}

// Plugin implements ports.Plugin over a JSON-RPC websocket.
type Plugin struct {
	cfg    Config
	dialer *websocket.Dialer
	nextID uint64
}

// New creates an MCP plugin.
func New(cfg Config) (*Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Plugin{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
	}, nil
}

// DescribeMethods implements ports.Plugin.
func (p *Plugin) DescribeMethods() []ports.MethodDesc {
	return []ports.MethodDesc{
		{
			Name: "complete",
			Params: []ports.ParamDesc{
				{Name: "prompt", Type: "string", Required: true},
				{Name: "max_tokens", Type: "int"},
				{Name: "temperature", Type: "number"},
			},
		},
		{
			Name: "embed",
			Params: []ports.ParamDesc{
				{Name: "text", Type: "string", Required: true},
			},
		},
		{
			Name: "chat",
			Params: []ports.ParamDesc{
				{Name: "messages", Type: "array", Required: true},
				{Name: "max_tokens", Type: "int"},
			},
		},
		{
			Name: "analyze",
			Params: []ports.ParamDesc{
				{Name: "text", Type: "string", Required: true},
			},
		},
	}
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      uint64         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Invoke implements ports.Plugin. Each call uses its own connection so the
// plugin stays safe for concurrent invocation.
func (p *Plugin) Invoke(ctx context.Context, method string, args *value.Object) (value.Value, error) {
	conn, resp, err := p.dialer.DialContext(ctx, p.cfg.Endpoint, p.authHeader())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return value.Null(), err
		}
		return value.Null(), &ports.PluginError{Kind: "Network", Message: err.Error(), Retryable: true}
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	params := p.buildParams(args)
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&p.nextID, 1),
		Method:  method,
		Params:  params,
	}
	if err := conn.WriteJSON(req); err != nil {
		return value.Null(), &ports.PluginError{Kind: "Network", Message: err.Error(), Retryable: true}
	}

	var rpcResp rpcResponse
	if err := conn.ReadJSON(&rpcResp); err != nil {
		if ctx.Err() != nil {
			return value.Null(), context.DeadlineExceeded
		}
		return value.Null(), &ports.PluginError{Kind: "Network", Message: err.Error(), Retryable: true}
	}
	if rpcResp.Error != nil {
		return value.Null(), &ports.PluginError{
			Kind:      "Upstream",
			Message:   fmt.Sprintf("mcp error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message),
			Retryable: rpcResp.Error.Code >= -32099 && rpcResp.Error.Code <= -32000, // server errors
		}
	}

	var result any
	if len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
			return value.Null(), &ports.PluginError{Kind: "Protocol", Message: err.Error()}
		}
	}
	v, err := value.FromGo(result)
	if err != nil {
		return value.Null(), &ports.PluginError{Kind: "Protocol", Message: err.Error()}
	}
	return v, nil
}

func (p *Plugin) authHeader() http.Header {
	if p.cfg.APIKey == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.cfg.APIKey)
	return h
}

// buildParams merges call arguments with configured model defaults.
func (p *Plugin) buildParams(args *value.Object) map[string]any {
	params := map[string]any{"model": p.cfg.Model}
	if p.cfg.MaxTokens > 0 {
		params["max_tokens"] = p.cfg.MaxTokens
	}
	if p.cfg.Temperature > 0 {
		params["temperature"] = p.cfg.Temperature
	}
	for _, k := range args.Keys() {
		v, _ := args.Get(k)
		params[k] = v.ToGo()
	}
	return params
}

var _ ports.Plugin = (*Plugin)(nil)
