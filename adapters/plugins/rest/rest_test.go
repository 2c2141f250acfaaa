package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sigmos-lang/sigmos/adapters/plugins/rest"
	"github.com/sigmos-lang/sigmos/domain/value"
	"github.com/sigmos-lang/sigmos/ports"
)

func TestInvoke_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("verbose") != "true" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if got := r.Header.Get("X-Tenant"); got != "acme" {
			t.Errorf("X-Tenant = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "Ada"})
	}))
	defer srv.Close()

	p, err := rest.New(rest.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	args := value.NewObject()
	args.Set("path", value.String("/users/1"))
	q := value.NewObject()
	q.Set("verbose", value.Bool(true))
	args.Set("query", value.Obj(q))
	h := value.NewObject()
	h.Set("X-Tenant", value.String("acme"))
	args.Set("headers", value.Obj(h))

	v, err := p.Invoke(context.Background(), "get", args)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	obj, _ := v.AsObject()
	if st, _ := obj.Get("status"); !st.Equal(value.Number(200)) {
		t.Errorf("status = %v", st)
	}
	if ok, _ := obj.Get("ok"); !ok.Equal(value.Bool(true)) {
		t.Errorf("ok = %v", ok)
	}
	body, _ := obj.Get("body")
	bobj, _ := body.AsObject()
	if name, _ := bobj.Get("name"); !name.Equal(value.String("Ada")) {
		t.Errorf("body = %v", body)
	}
}

func TestInvoke_PostBodyAndAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("auth = %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Ada" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p, err := rest.New(rest.Config{BaseURL: srv.URL, AuthToken: "tok123"})
	if err != nil {
		t.Fatal(err)
	}
	body := value.NewObject()
	body.Set("name", value.String("Ada"))
	args := value.NewObject()
	args.Set("path", value.String("users"))
	args.Set("body", value.Obj(body))

	v, err := p.Invoke(context.Background(), "post", args)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	obj, _ := v.AsObject()
	if st, _ := obj.Get("status"); !st.Equal(value.Number(201)) {
		t.Errorf("status = %v", st)
	}
}

func TestInvoke_GenericRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
	}))
	defer srv.Close()

	p, _ := rest.New(rest.Config{BaseURL: srv.URL})
	args := value.NewObject()
	args.Set("method", value.String("patch"))
	args.Set("path", value.String("/x"))
	if _, err := p.Invoke(context.Background(), "request", args); err != nil {
		t.Fatalf("invoke: %v", err)
	}
}

func TestInvoke_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := rest.New(rest.Config{BaseURL: srv.URL})
	args := value.NewObject()
	args.Set("path", value.String("/x"))
	_, err := p.Invoke(context.Background(), "get", args)
	pe, ok := err.(*ports.PluginError)
	if !ok {
		t.Fatalf("err = %T %v", err, err)
	}
	if pe.Kind != "Upstream" || !pe.Retryable {
		t.Errorf("5xx should be a retryable Upstream error: %+v", pe)
	}
}

func TestInvoke_ClientErrorIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p, _ := rest.New(rest.Config{BaseURL: srv.URL})
	args := value.NewObject()
	args.Set("path", value.String("/missing"))
	_, err := p.Invoke(context.Background(), "get", args)
	pe, ok := err.(*ports.PluginError)
	if !ok {
		t.Fatalf("err = %T %v", err, err)
	}
	if pe.Kind != "Upstream" || pe.Retryable {
		t.Errorf("4xx should be a non-retryable Upstream error: %+v", pe)
	}
}

func TestInvoke_NetworkErrorIsRetryable(t *testing.T) {
	p, _ := rest.New(rest.Config{BaseURL: "http://127.0.0.1:1"})
	args := value.NewObject()
	args.Set("path", value.String("/"))
	_, err := p.Invoke(context.Background(), "get", args)
	if err == nil {
		t.Fatal("expected network error")
	}
	pe, ok := err.(*ports.PluginError)
	if !ok || pe.Kind != "Network" || !pe.Retryable {
		t.Errorf("connection failure should be a retryable Network error: %v", err)
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	if _, err := rest.New(rest.Config{}); err == nil {
		t.Errorf("empty base_url should fail")
	}
	if _, err := rest.New(rest.Config{BaseURL: "ftp://x"}); err == nil {
		t.Errorf("non-http scheme should fail")
	}
}

func TestDescribeMethods(t *testing.T) {
	p, _ := rest.New(rest.Config{BaseURL: "http://localhost"})
	methods := p.DescribeMethods()
	names := make(map[string]bool)
	for _, m := range methods {
		names[m.Name] = true
	}
	for _, want := range []string{"get", "post", "put", "delete", "patch", "head", "options", "request"} {
		if !names[want] {
			t.Errorf("missing method %s", want)
		}
	}
}
