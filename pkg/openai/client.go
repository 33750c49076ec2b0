// Package openai wraps go-openai chat completions for Azure OpenAI and
// OpenAI-compatible endpoints.
package openai

import (
	"context"
	"errors"
	"math"

	"github.com/rotisserie/eris"
	oai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client defines the chat completion operation used by the evaluator.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is our own request type for CreateChatCompletion.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	// JSONObject asks the service to return a single JSON object.
	JSONObject bool
}

// Message is a single chat message.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// ChatResponse is our own response type from CreateChatCompletion.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LogUsage logs token usage with structured zap fields.
func (u Usage) LogUsage(model, step string) {
	zap.L().Info("token usage",
		zap.String("model", model),
		zap.String("step", step),
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
		zap.Int("total_tokens", u.TotalTokens),
	)
}

// APIError carries the HTTP status of a failed API call.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AzureConfig holds Azure OpenAI deployment settings.
type AzureConfig struct {
	Key        string
	Endpoint   string
	Deployment string
	APIVersion string
}

type sdkClient struct {
	client *oai.Client
}

// NewAzureClient creates a client for an Azure OpenAI deployment. Requests
// are routed by model name, so callers pass the deployment as the model.
func NewAzureClient(cfg AzureConfig) Client {
	c := oai.DefaultAzureConfig(cfg.Key, cfg.Endpoint)
	if cfg.APIVersion != "" {
		c.APIVersion = cfg.APIVersion
	}
	c.AzureModelMapperFunc = func(model string) string {
		return model
	}
	return &sdkClient{client: oai.NewClientWithConfig(c)}
}

// NewClient creates a client for the OpenAI API or a compatible endpoint.
// An empty baseURL selects the public OpenAI API.
func NewClient(apiKey, baseURL string) Client {
	c := oai.DefaultConfig(apiKey)
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return &sdkClient{client: oai.NewClientWithConfig(c)}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msgs := make([]oai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = oai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	params := oai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: wireTemperature(req.Temperature),
	}
	if req.JSONObject {
		params.ResponseFormat = &oai.ChatCompletionResponseFormat{
			Type: oai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, params)
	if err != nil {
		if code := statusCode(err); code != 0 {
			return nil, &APIError{StatusCode: code, Err: eris.Wrap(err, "openai: create chat completion")}
		}
		return nil, eris.Wrap(err, "openai: create chat completion")
	}

	out := &ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}

// wireTemperature keeps an explicit 0 on the wire. go-openai omits a zero
// temperature and the provider then samples at its default of 1.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// statusCode extracts the HTTP status from go-openai errors, or 0.
func statusCode(err error) int {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *oai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
