package anthropic

import (
	"context"
	"errors"
	"net/http"
	"time"

	anth "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	base "github.com/dishscout/dishscout/llm"
	"github.com/dishscout/dishscout/observability"
)

// ProviderName prefixes API error messages.
const ProviderName = "Claude"

// Client implements llm.Client for the Anthropic Messages API. It performs a
// single request per Chat call; retries belong to the caller.
type Client struct {
	client anth.Client
	cfg    Config
}

// Config configures the Anthropic client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Hooks       *observability.Hooks
}

// NewClient creates an Anthropic client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &Client{client: anth.NewClient(opts...), cfg: cfg}, nil
}

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) Chat(ctx context.Context, req *base.ChatRequest) (*base.Response, error) {
	model := base.PickModel(req, c.cfg.Model)
	c.cfg.Hooks.SafeLLMRequest(ctx, "anthropic", model, map[string]any{"operation": "chat", "tools": len(req.Tools)})
	start := time.Now()

	out, err := c.client.Messages.New(ctx, toAnthParams(req, c.cfg))
	c.cfg.Hooks.SafeLLMResponse(ctx, "anthropic", model, time.Since(start), map[string]any{"operation": "chat", "error": err != nil})
	if err != nil {
		return nil, wrapError(err)
	}
	return fromAnthMessage(out), nil
}

// wrapError converts SDK status errors into base.APIError so the retry
// classifier can read the status. Transport errors pass through.
func wrapError(err error) error {
	var apiErr *anth.Error
	if errors.As(err, &apiErr) {
		return &base.APIError{Provider: ProviderName, Status: apiErr.StatusCode, Err: err}
	}
	return err
}

func toAnthParams(req *base.ChatRequest, cfg Config) anth.MessageNewParams {
	msgs := make([]anth.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := anth.MessageParamRoleUser
		if m.Role == "assistant" {
			role = anth.MessageParamRoleAssistant
		}
		msgs = append(msgs, anth.MessageParam{
			Role: role,
			Content: []anth.ContentBlockParamUnion{{
				OfText: &anth.TextBlockParam{Text: m.Content},
			}},
		})
	}

	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := anth.MessageNewParams{
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
		Model:     anth.Model(base.PickModel(req, cfg.Model)),
	}
	if req.SystemPrompt != "" {
		params.System = []anth.TextBlockParam{{Text: req.SystemPrompt}}
	}
	temperature := cfg.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	if temperature > 0 {
		params.Temperature = anth.Float(temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthTools(req.Tools)
	}
	if req.ToolChoice != "" {
		params.ToolChoice = anth.ToolChoiceUnionParam{
			OfTool: &anth.ToolChoiceToolParam{Name: req.ToolChoice},
		}
	}
	return params
}

// toAnthTools converts tool definitions into Anthropic tool params. The
// schema's properties and required list map onto the typed fields; every
// other schema keyword travels in ExtraFields.
func toAnthTools(tools []base.Tool) []anth.ToolUnionParam {
	out := make([]anth.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tp := &anth.ToolParam{Name: t.Name}
		if t.Description != "" {
			tp.Description = anth.String(t.Description)
		}
		schema := anth.ToolInputSchemaParam{}
		extra := map[string]any{}
		for k, v := range t.InputSchema {
			switch k {
			case "type":
			case "properties":
				schema.Properties = v
			case "required":
				if req, ok := v.([]string); ok {
					schema.Required = req
				} else {
					extra[k] = v
				}
			default:
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			schema.ExtraFields = extra
		}
		tp.InputSchema = schema
		out = append(out, anth.ToolUnionParam{OfTool: tp})
	}
	return out
}

func fromAnthMessage(m *anth.Message) *base.Response {
	if m == nil {
		return &base.Response{Provider: "anthropic"}
	}
	var content string
	var toolCalls []base.ToolCall
	for _, c := range m.Content {
		switch c.Type {
		case "text":
			content += c.Text
		case "tool_use":
			toolCalls = append(toolCalls, base.ToolCall{ID: c.ID, Name: c.Name, Input: c.Input})
		}
	}
	resp := &base.Response{
		Content:    content,
		Provider:   "anthropic",
		Model:      string(m.Model),
		ToolCalls:  toolCalls,
		StopReason: string(m.StopReason),
	}
	resp.Usage = &base.Usage{
		InputTokens:  int(m.Usage.InputTokens),
		OutputTokens: int(m.Usage.OutputTokens),
		TotalTokens:  int(m.Usage.InputTokens + m.Usage.OutputTokens),
	}
	return resp
}
