package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var ErrEmptyContent = errors.New("empty response from the model")

// UpstreamError is a non-2xx answer from the inference endpoint.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d", e.StatusCode)
}

// LLM completes a single user prompt.
type LLM interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint (LM Studio
// by default). Requests are never retried.
type Client struct {
	api   openai.Client
	model string
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &Client{
		api:   openai.NewClient(opts...),
		model: model,
	}
}

func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{
				StatusCode: apiErr.StatusCode,
				Body:       string(apiErr.DumpResponse(true)),
			}
		}
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyContent
	}
	return resp.Choices[0].Message.Content, nil
}
