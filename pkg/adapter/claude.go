package adapter

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// Claude is a generation service backed by the Anthropic Messages API
type Claude struct {
	client     anthropic.Client
	model      string
	generation GenerationConfig
}

type ClaudeOption func(*Claude)

func WithClaudeModel(model string) ClaudeOption {
	return func(c *Claude) {
		c.model = model
	}
}

func WithClaudeGenerationConfig(cfg GenerationConfig) ClaudeOption {
	return func(c *Claude) {
		c.generation = cfg
		if cfg.Model != "" {
			c.model = cfg.Model
		}
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) *Claude {
	c := &Claude{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:      defaultClaudeModel,
		generation: DefaultGenerationConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Claude) Generate(ctx context.Context, turns []model.Turn) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		// The Messages API requires the conversation to open with a user turn
		if len(messages) == 0 && turn.Role == model.RoleAssistant {
			continue
		}
		block := anthropic.NewTextBlock(turn.Text)
		if turn.Role == model.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(c.generation.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(float64(c.generation.Temperature)),
	}
	if c.generation.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.generation.SystemInstruction}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create message",
			goerr.V("model", c.model),
			goerr.T(model.ErrTagGenerationUnavailable),
		)
	}

	if string(resp.StopReason) == "refusal" {
		return "", goerr.New("response refused by generation service",
			goerr.V("model", c.model),
			goerr.T(model.ErrTagGenerationRejected),
		)
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", goerr.New("empty response from generation service",
			goerr.V("model", c.model),
			goerr.T(model.ErrTagGenerationUnavailable),
		)
	}
	return text, nil
}
