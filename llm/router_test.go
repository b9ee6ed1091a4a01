package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClient struct {
	name    string
	err     error
	lastReq *ChatRequest
	calls   int
	sawDL   bool
}

func (f *fakeClient) Model() string { return f.name }

func (f *fakeClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	f.calls++
	f.lastReq = req
	_, f.sawDL = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return &Response{Content: f.name, Provider: f.name, Model: PickModel(req, f.name)}, nil
}

func TestStaticPolicy_Select(t *testing.T) {
	def := &fakeClient{name: "default"}
	special := &fakeClient{name: "special"}
	p := StaticPolicy{Default: def, ByModel: map[string]Client{"m-special": special}}

	c, model, err := p.Select(&ChatRequest{Model: "m-special"})
	if err != nil || c != special || model != "m-special" {
		t.Fatalf("expected special client, got %v %q %v", c, model, err)
	}
	c, model, err = p.Select(&ChatRequest{Model: "other"})
	if err != nil || c != def || model != "other" {
		t.Fatalf("expected default client with override, got %v %q %v", c, model, err)
	}
	c, model, err = p.Select(&ChatRequest{})
	if err != nil || c != def || model != "" {
		t.Fatalf("expected default client, got %v %q %v", c, model, err)
	}
	if _, _, err := (StaticPolicy{}).Select(&ChatRequest{}); err == nil {
		t.Fatal("expected error without default client")
	}
}

func TestRouterClient_DoesNotMutateRequest(t *testing.T) {
	def := &fakeClient{name: "default"}
	r := NewRouterClient(StaticPolicy{Default: def})
	req := &ChatRequest{Model: "claude-x"}
	if _, err := r.Chat(context.Background(), req); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if def.lastReq == req {
		t.Error("expected a cloned request")
	}
	if def.lastReq.Model != "claude-x" {
		t.Errorf("expected model override, got %q", def.lastReq.Model)
	}
}

func TestRouterClient_Fallback(t *testing.T) {
	primary := &fakeClient{name: "primary", err: &APIError{Provider: "Claude", Status: 529}}
	fallback := &fakeClient{name: "fallback"}
	r := NewRouterClient(StaticPolicy{Default: primary}).WithConfig(RouterConfig{Fallback: fallback})

	resp, err := r.Chat(context.Background(), &ChatRequest{Model: "claude-x"})
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if resp.Provider != "fallback" {
		t.Errorf("expected fallback provider, got %s", resp.Provider)
	}
	if fallback.lastReq.Model != "" {
		t.Errorf("expected fallback to use its own model, got %q", fallback.lastReq.Model)
	}
}

func TestRouterClient_ShouldFallbackFilters(t *testing.T) {
	logical := errors.New("Invalid tool response")
	primary := &fakeClient{name: "primary", err: logical}
	fallback := &fakeClient{name: "fallback"}
	r := NewRouterClient(StaticPolicy{Default: primary}).WithConfig(RouterConfig{
		Fallback:       fallback,
		ShouldFallback: func(err error) bool { return !errors.Is(err, logical) },
	})

	if _, err := r.Chat(context.Background(), &ChatRequest{}); !errors.Is(err, logical) {
		t.Fatalf("expected primary error, got %v", err)
	}
	if fallback.calls != 0 {
		t.Errorf("expected fallback not to be called, got %d calls", fallback.calls)
	}
}

func TestRouterClient_Timeout(t *testing.T) {
	def := &fakeClient{name: "default"}
	r := NewRouterClient(StaticPolicy{Default: def}).WithConfig(RouterConfig{Timeout: time.Second})
	if _, err := r.Chat(context.Background(), &ChatRequest{}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !def.sawDL {
		t.Error("expected a deadline on the delegated context")
	}
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{Provider: "Claude", Status: 503, Body: " overloaded \n"}
	if got, want := err.Error(), "Claude API request failed: 503 overloaded"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if err.HTTPStatus() != 503 {
		t.Errorf("expected status 503, got %d", err.HTTPStatus())
	}
}

func TestResponse_ToolCall(t *testing.T) {
	resp := &Response{ToolCalls: []ToolCall{{Name: "a"}, {Name: "b", ID: "2"}}}
	tc, ok := resp.ToolCall("b")
	if !ok || tc.ID != "2" {
		t.Fatalf("expected tool call b, got %+v %v", tc, ok)
	}
	if _, ok := (*Response)(nil).ToolCall("a"); ok {
		t.Error("expected no tool call on nil response")
	}
}
