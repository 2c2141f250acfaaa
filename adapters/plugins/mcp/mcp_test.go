package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/sigmos-lang/sigmos/adapters/plugins/mcp"
	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

var upgrader = websocket.Upgrader{}

// newServer runs a one-shot JSON-RPC websocket handler.
func newServer(t *testing.T, handle func(method string, params map[string]any) (any, *map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		method, _ := req["method"].(string)
		params, _ := req["params"].(map[string]any)
		result, rpcErr := handle(method, params)

		resp := map[string]any{"jsonrpc": "2.0", "id": req["id"]}
		if rpcErr != nil {
			resp["error"] = *rpcErr
		} else {
			resp["result"] = result
		}
		conn.WriteJSON(resp)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestInvoke_Complete(t *testing.T) {
	srv := newServer(t, func(method string, params map[string]any) (any, *map[string]any) {
		if method != "complete" {
			t.Errorf("method = %s", method)
		}
		if params["model"] != "sonnet" {
			t.Errorf("model = %v", params["model"])
		}
		if params["prompt"] != "say hi" {
			t.Errorf("prompt = %v", params["prompt"])
		}
		return map[string]any{"text": "hi", "tokens_used": 2.0}, nil
	})
	defer srv.Close()

	p, err := mcp.New(mcp.Config{Endpoint: wsURL(srv), Model: "sonnet"})
	if err != nil {
		t.Fatal(err)
	}
	args := value.NewObject()
	args.Set("prompt", value.String("say hi"))
	v, err := p.Invoke(context.Background(), "complete", args)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	obj, _ := v.AsObject()
	if text, _ := obj.Get("text"); !text.Equal(value.String("hi")) {
		t.Errorf("result = %v", v)
	}
}

func TestInvoke_UpstreamError(t *testing.T) {
	srv := newServer(t, func(string, map[string]any) (any, *map[string]any) {
		e := map[string]any{"code": -32000.0, "message": "model overloaded"}
		return nil, &e
	})
	defer srv.Close()

	p, _ := mcp.New(mcp.Config{Endpoint: wsURL(srv), Model: "sonnet"})
	args := value.NewObject()
	args.Set("text", value.String("x"))
	_, err := p.Invoke(context.Background(), "embed", args)
	pe, ok := err.(*ports.PluginError)
	if !ok {
		t.Fatalf("err = %T %v", err, err)
	}
	if pe.Kind != "Upstream" || !pe.Retryable {
		t.Errorf("error = %+v", pe)
	}
}

func TestInvoke_DialFailure(t *testing.T) {
	p, _ := mcp.New(mcp.Config{Endpoint: "ws://127.0.0.1:1", Model: "sonnet"})
	args := value.NewObject()
	args.Set("text", value.String("x"))
	_, err := p.Invoke(context.Background(), "analyze", args)
	pe, ok := err.(*ports.PluginError)
	if !ok {
		t.Fatalf("err = %T %v", err, err)
	}
	if pe.Kind != "Network" || !pe.Retryable {
		t.Errorf("error = %+v", pe)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	cases := []mcp.Config{
		{},
		{Endpoint: "ws://x"},
		{Endpoint: "ws://x", Model: "m", Temperature: 3},
	}
	for i, cfg := range cases {
		if _, err := mcp.New(cfg); err == nil {
			t.Errorf("case %d should fail: %+v", i, cfg)
		}
	}
}

func TestDescribeMethods(t *testing.T) {
	p, _ := mcp.New(mcp.Config{Endpoint: "ws://x", Model: "m"})
	var names []string
	for _, m := range p.DescribeMethods() {
		names = append(names, m.Name)
	}
	b, _ := json.Marshal(names)
	for _, want := range []string{"complete", "embed", "chat", "analyze"} {
		if !strings.Contains(string(b), want) {
			t.Errorf("missing method %s in %s", want, b)
		}
	}
}
