package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/nickberens360/portfolio-chat/internal/config"
)

// openAIProvider speaks the OpenAI chat-completions protocol. A custom base
// URL lets the same client cover any compatible provider (OpenRouter, Groq,
// and the like), which is how the secondary model is usually configured.
type openAIProvider struct {
	name   string
	model  string
	client openai.Client
}

// NewOpenAI constructs a chat provider from its configuration. The API key is
// read from the environment variable named in the config; a missing key fails
// construction so the pool records the handle as unavailable. SDK-level
// retries are disabled because the orchestrator owns the retry policy, and the
// request timeout is fixed at construction time.
func NewOpenAI(name string, cfg config.ProviderConfig) (Provider, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("llm: provider %s: %s is not set", name, cfg.APIKeyEnv)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &openAIProvider{
		name:   name,
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}, nil
}

func (p *openAIProvider) Name() string { return p.name }

func (p *openAIProvider) Complete(ctx context.Context, system string, history []ChatMessage, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}
	messages = append(messages, openai.UserMessage(user))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	})
	if err != nil {
		return "", p.normalize(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Message: "completion response carried no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// normalize converts SDK errors into the structured shape Classify expects.
func (p *openAIProvider) normalize(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: p.name,
			Status:   apiErr.StatusCode,
			Code:     apiErr.Code,
			Message:  apiErr.Error(),
		}
	}
	return fmt.Errorf("llm: provider %s: %w", p.name, err)
}
