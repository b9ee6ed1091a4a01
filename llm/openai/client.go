package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	base "github.com/dishscout/dishscout/llm"
	"github.com/dishscout/dishscout/observability"
)

// ProviderName prefixes API error messages.
const ProviderName = "OpenAI"

// Client implements llm.Client for the OpenAI chat completions API. It is
// used as the fallback provider and never retries on its own.
type Client struct {
	client oa.Client
	cfg    Config
}

// Config configures the OpenAI client.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	Organization string
	Hooks        *observability.Hooks
}

// NewClient creates an OpenAI client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	opts := []option.RequestOption{option.WithHTTPClient(httpClient), option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	return &Client{client: oa.NewClient(opts...), cfg: cfg}, nil
}

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) Chat(ctx context.Context, req *base.ChatRequest) (*base.Response, error) {
	start := time.Now()
	model := base.PickModel(req, c.cfg.Model)
	c.cfg.Hooks.SafeLLMRequest(ctx, "openai", model, map[string]any{"operation": "chat", "tools": len(req.Tools)})

	resp, err := c.client.Chat.Completions.New(ctx, toOAParams(req, c.cfg))
	c.cfg.Hooks.SafeLLMResponse(ctx, "openai", model, time.Since(start), map[string]any{"operation": "chat", "error": err != nil})
	if err != nil {
		return nil, wrapError(err)
	}
	return fromOAResponse(resp), nil
}

func wrapError(err error) error {
	var apiErr *oa.Error
	if errors.As(err, &apiErr) {
		return &base.APIError{Provider: ProviderName, Status: apiErr.StatusCode, Err: err}
	}
	return err
}

func toOAParams(req *base.ChatRequest, cfg Config) oa.ChatCompletionNewParams {
	params := oa.ChatCompletionNewParams{Messages: toOAMessages(req)}
	if m := base.PickModel(req, cfg.Model); m != "" {
		params.Model = shared.ChatModel(m)
	}
	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = oa.Int(int64(maxTokens))
	}
	temperature := cfg.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	if temperature > 0 {
		params.Temperature = oa.Float(temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toOATools(req.Tools)
		if req.ToolChoice != "" {
			// "required" forces a tool call; requests carry a single tool.
			params.ToolChoice = oa.ChatCompletionToolChoiceOptionUnionParam{OfAuto: oa.String("required")}
		}
	}
	return params
}

func toOAMessages(req *base.ChatRequest) []oa.ChatCompletionMessageParamUnion {
	msgs := make([]oa.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oa.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, oa.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, oa.UserMessage(m.Content))
		}
	}
	return msgs
}

func fromOAResponse(r *oa.ChatCompletion) *base.Response {
	if r == nil {
		return &base.Response{Provider: "openai"}
	}
	resp := &base.Response{Provider: "openai", Model: r.Model}
	if len(r.Choices) > 0 {
		choice := r.Choices[0]
		resp.Content = choice.Message.Content
		resp.StopReason = stopReason(string(choice.FinishReason))
		for _, tc := range choice.Message.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, base.ToolCall{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: []byte(tc.Function.Arguments),
			})
		}
	}
	resp.Usage = &base.Usage{
		InputTokens:  int(r.Usage.PromptTokens),
		OutputTokens: int(r.Usage.CompletionTokens),
		TotalTokens:  int(r.Usage.TotalTokens),
	}
	return resp
}

// stopReason maps OpenAI finish reasons onto the Anthropic vocabulary used by
// response validation.
func stopReason(finish string) string {
	switch finish {
	case "stop":
		return base.StopEndTurn
	case "tool_calls", "function_call":
		return base.StopToolUse
	case "length":
		return base.StopMaxTokens
	default:
		return finish
	}
}
