// Package rest provides the HTTP capability plugin: spec expressions call
// web services through an extension alias bound to this plugin. Transport
// failures and statuses of 400 and above surface as plugin errors; 5xx
// responses and timeouts are retryable, 4xx responses are not.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

// Config configures a REST plugin instance.
type Config struct {
	BaseURL        string            `yaml:"base_url"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
	Timeout        time.Duration     `yaml:"timeout"`
	AuthToken      string            `yaml:"auth_token"`
	UserAgent      string            `yaml:"user_agent"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://, got %q", c.BaseURL)
	}
	return nil
}

// Plugin implements ports.Plugin over an HTTP client.
type Plugin struct {
	cfg    Config
	client *http.Client
}

// New creates a REST plugin.
func New(cfg Config) (*Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sigmos-rest/1.0"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Plugin{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

var verbs = []string{"get", "post", "put", "delete", "patch", "head", "options"}

// DescribeMethods implements ports.Plugin.
func (p *Plugin) DescribeMethods() []ports.MethodDesc {
	common := []ports.ParamDesc{
		{Name: "path", Type: "string", Required: true},
		{Name: "body", Type: "any"},
		{Name: "headers", Type: "object"},
		{Name: "query", Type: "object"},
	}
	out := make([]ports.MethodDesc, 0, len(verbs)+1)
	for _, v := range verbs {
		out = append(out, ports.MethodDesc{Name: v, Params: common})
	}
	out = append(out, ports.MethodDesc{
		Name: "request",
		Params: append([]ports.ParamDesc{
			{Name: "method", Type: "string", Required: true},
		}, common...),
	})
	return out
}

// Invoke implements ports.Plugin.
func (p *Plugin) Invoke(ctx context.Context, method string, args *value.Object) (value.Value, error) {
	verb := strings.ToUpper(method)
	if method == "request" {
		m, _ := args.Get("method")
		s, ok := m.AsString()
		if !ok {
			return value.Null(), &ports.PluginError{Kind: "BadRequest", Message: "method must be a string"}
		}
		verb = strings.ToUpper(s)
	}

	reqURL, err := p.buildURL(args)
	if err != nil {
		return value.Null(), &ports.PluginError{Kind: "BadRequest", Message: err.Error()}
	}

	var bodyReader io.Reader
	if body, ok := args.Get("body"); ok && !body.IsNull() {
		raw, err := json.Marshal(body.ToGo())
		if err != nil {
			return value.Null(), &ports.PluginError{Kind: "BadRequest", Message: "cannot encode body: " + err.Error()}
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, verb, reqURL, bodyReader)
	if err != nil {
		return value.Null(), &ports.PluginError{Kind: "BadRequest", Message: err.Error()}
	}
	p.setHeaders(req, args, bodyReader != nil)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return value.Null(), err
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return value.Null(), &ports.PluginError{Kind: "Timeout", Message: err.Error(), Retryable: true}
		}
		return value.Null(), &ports.PluginError{Kind: "Network", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return value.Null(), &ports.PluginError{
			Kind:      "Upstream",
			Message:   fmt.Sprintf("%s %s returned %s", verb, reqURL, resp.Status),
			Retryable: resp.StatusCode >= 500,
		}
	}
	return decodeResponse(resp)
}

func (p *Plugin) buildURL(args *value.Object) (string, error) {
	pathVal, _ := args.Get("path")
	path, ok := pathVal.AsString()
	if !ok {
		return "", errors.New("path must be a string")
	}
	u, err := url.Parse(strings.TrimRight(p.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	if q, ok := args.Get("query"); ok {
		if obj, isObj := q.AsObject(); isObj {
			qs := u.Query()
			for _, k := range obj.Keys() {
				v, _ := obj.Get(k)
				qs.Set(k, v.Format())
			}
			u.RawQuery = qs.Encode()
		}
	}
	return u.String(), nil
}

func (p *Plugin) setHeaders(req *http.Request, args *value.Object, hasBody bool) {
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.AuthToken)
	}
	for k, v := range p.cfg.DefaultHeaders {
		req.Header.Set(k, v)
	}
	if h, ok := args.Get("headers"); ok {
		if obj, isObj := h.AsObject(); isObj {
			for _, k := range obj.Keys() {
				v, _ := obj.Get(k)
				req.Header.Set(k, v.Format())
			}
		}
	}
}

// decodeResponse maps an HTTP response to the value the expression sees:
// {status, ok, headers, body}. JSON bodies are parsed; anything else is the
// raw text.
func decodeResponse(resp *http.Response) (value.Value, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return value.Null(), &ports.PluginError{Kind: "Network", Message: err.Error(), Retryable: true}
	}

	headers := value.NewObject()
	for _, k := range []string{"Content-Type", "Content-Length", "Location"} {
		if v := resp.Header.Get(k); v != "" {
			headers.Set(strings.ToLower(k), value.String(v))
		}
	}

	body := value.Null()
	if len(raw) > 0 {
		var parsed any
		if json.Unmarshal(raw, &parsed) == nil {
			if body, err = value.FromGo(parsed); err != nil {
				body = value.String(string(raw))
			}
		} else {
			body = value.String(string(raw))
		}
	}

	out := value.NewObject()
	out.Set("status", value.Number(float64(resp.StatusCode)))
	out.Set("ok", value.Bool(resp.StatusCode >= 200 && resp.StatusCode < 300))
	out.Set("headers", value.Obj(headers))
	out.Set("body", body)
	return value.Obj(out), nil
}

var _ ports.Plugin = (*Plugin)(nil)
