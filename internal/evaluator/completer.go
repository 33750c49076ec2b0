package evaluator

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/argument-tutor/internal/config"
	"github.com/sells-group/argument-tutor/internal/model"
	"github.com/sells-group/argument-tutor/internal/resilience"
	"github.com/sells-group/argument-tutor/pkg/anthropic"
	"github.com/sells-group/argument-tutor/pkg/openai"
)

// Prompt is one request to the remote evaluator.
type Prompt struct {
	Step        model.Step
	System      string
	User        string
	Temperature float64
}

// Completer sends a prompt to a language model and returns the raw reply
// text. Failures worth retrying are returned as resilience.TransientError.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
}

// Complete implements Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	temp := p.Temperature
	resp, err := c.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		System:      anthropic.CachedSystemBlocks(p.System, "5m"),
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return "", resilience.ClassifyStatus(err, apiErr.StatusCode)
		}
		return "", err
	}

	resp.Usage.LogCost(c.Model, string(p.Step))
	return resp.Text(), nil
}

// OpenAICompleter calls an Azure OpenAI deployment or the OpenAI API. The
// reply is constrained to a JSON object.
type OpenAICompleter struct {
	Client openai.Client
	Model  string
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatRequest{
		Model: c.Model,
		Messages: []openai.Message{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature: float32(p.Temperature),
		JSONObject:  true,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", resilience.ClassifyStatus(err, apiErr.StatusCode)
		}
		return "", err
	}

	resp.Usage.LogUsage(c.Model, string(p.Step))
	return resp.Content, nil
}

// NewCompleter builds the Completer selected by evaluator.provider. Missing
// credentials are reported as a configuration error.
func NewCompleter(cfg *config.Config) (Completer, error) {
	missing := func(key string) error {
		return &Error{Kind: KindConfiguration, Err: eris.Errorf("%s is required", key)}
	}

	switch cfg.Evaluator.Provider {
	case config.ProviderAzure:
		switch {
		case cfg.Azure.Key == "":
			return nil, missing("azure.key")
		case cfg.Azure.Endpoint == "":
			return nil, missing("azure.endpoint")
		case cfg.Azure.Deployment == "":
			return nil, missing("azure.deployment")
		}
		return &OpenAICompleter{
			Client: openai.NewAzureClient(openai.AzureConfig{
				Key:        cfg.Azure.Key,
				Endpoint:   cfg.Azure.Endpoint,
				Deployment: cfg.Azure.Deployment,
				APIVersion: cfg.Azure.APIVersion,
			}),
			Model: cfg.Azure.Deployment,
		}, nil
	case config.ProviderOpenAI:
		if cfg.OpenAI.Key == "" {
			return nil, missing("openai.key")
		}
		return &OpenAICompleter{
			Client: openai.NewClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL),
			Model:  cfg.OpenAI.Model,
		}, nil
	case config.ProviderAnthropic:
		if cfg.Anthropic.Key == "" {
			return nil, missing("anthropic.key")
		}
		return &AnthropicCompleter{
			Client:    anthropic.NewClient(cfg.Anthropic.Key),
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}, nil
	default:
		return nil, &Error{
			Kind: KindConfiguration,
			Err:  eris.Errorf("unknown evaluator provider %q", cfg.Evaluator.Provider),
		}
	}
}
