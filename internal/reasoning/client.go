// Package reasoning talks to the external text-completion service.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client produces a completion for a composed prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to Client.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrEmptyCompletion is returned when the service answers with no choices.
var ErrEmptyCompletion = errors.New("reasoning: empty completion")

// Config configures an OpenAI-compatible endpoint.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	System     string
	MaxRetries int
}

// OpenAIClient calls a chat-completions endpoint.
type OpenAIClient struct {
	client openai.Client
	model  string
	system string
}

// NewOpenAI creates a client for any OpenAI-compatible API.
func NewOpenAI(cfg Config) (*OpenAIClient, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("reasoning: model required")
	}
	return &OpenAIClient{
		client: openai.NewClient(requestOptions(cfg)...),
		model:  model,
		system: strings.TrimSpace(cfg.System),
	}, nil
}

func requestOptions(cfg Config) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Local OpenAI-compatible servers accept any key.
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if c.system != "" {
		messages = append(messages, openai.SystemMessage(c.system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("reasoning: chat completion: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return completion.Choices[0].Message.Content, nil
}
