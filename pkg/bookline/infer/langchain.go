package infer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// LangChain implements Client on top of a langchaingo model. Any provider
// satisfying llms.Model works; the service binary wires an OpenAI-compatible
// one.
type LangChain struct {
	model   llms.Model
	timeout time.Duration
}

// LangChainOption configures a LangChain client.
type LangChainOption func(*LangChain)

// WithTimeout bounds each inference call. Zero means no client-side bound
// beyond the caller's context.
func WithTimeout(d time.Duration) LangChainOption {
	return func(c *LangChain) { c.timeout = d }
}

// NewLangChain wraps a langchaingo model as an inference client.
func NewLangChain(model llms.Model, opts ...LangChainOption) *LangChain {
	c := &LangChain{
		model:   model,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LangChain) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Extract implements Client.
func (c *LangChain) Extract(ctx context.Context, req ExtractRequest) (Fields, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extractionPrompt(req)),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Message),
	}, llms.WithTemperature(0))
	if err != nil {
		return Fields{}, NewError("extract", err, true)
	}
	if len(resp.Choices) == 0 {
		return Fields{}, NewError("extract", fmt.Errorf("empty response"), true)
	}

	raw, ok := extractJSON(resp.Choices[0].Content)
	if !ok {
		return Fields{}, NewError("extract", fmt.Errorf("no JSON object in response"), false)
	}

	var f Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Fields{}, NewError("extract", fmt.Errorf("decode fields: %w", err), false)
	}
	return f.normalize(), nil
}

// Generate implements Client.
func (c *LangChain) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	out, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", NewError("generate", err, true)
	}
	if len(out.Choices) == 0 {
		return "", NewError("generate", fmt.Errorf("empty response"), true)
	}
	return out.Choices[0].Content, nil
}

// DecideTool implements Client.
func (c *LangChain) DecideTool(ctx context.Context, req ToolRequest) (Decision, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}, llms.WithTools(toLLMTools(req.Tools)), llms.WithTemperature(0))
	if err != nil {
		return Decision{}, NewError("decide_tool", err, true)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, NewError("decide_tool", fmt.Errorf("empty response"), true)
	}

	choice := resp.Choices[0]
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		return Decision{
			Call: &ToolCall{
				Name:      tc.FunctionCall.Name,
				Arguments: json.RawMessage(tc.FunctionCall.Arguments),
			},
		}, nil
	}
	return Decision{Reply: choice.Content}, nil
}

func toLLMTools(specs []ToolSpec) []llms.Tool {
	tools := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}
