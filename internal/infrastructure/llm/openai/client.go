package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/kirillkom/kt-search/internal/core/ports"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbedModel     string
	EmbedDimension int
	RequestTimeout time.Duration
}

// Client serves completions and embeddings from an OpenAI-compatible API.
// Retries are owned by the executor, so the SDK's own retry loop is off.
type Client struct {
	api        openai.Client
	chatModel  string
	embedModel string
	dimension  int
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return &Client{
		api:        openai.NewClient(opts...),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		dimension:  cfg.EmbedDimension,
		executor:   executor,
	}
}

func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	text, err := resilience.Call(ctx, c.executor, "openai.chat", func(ctx context.Context) (string, error) {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", toStatusError("chat", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai chat: empty choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapProviderError("openai chat", err)
	}
	return text, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}
	if c.dimension > 0 {
		params.Dimensions = openai.Int(int64(c.dimension))
	}

	vector, err := resilience.Call(ctx, c.executor, "openai.embed", func(ctx context.Context) ([]float32, error) {
		resp, err := c.api.Embeddings.New(ctx, params)
		if err != nil {
			return nil, toStatusError("embed", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("openai embed: empty data")
		}
		raw := resp.Data[0].Embedding
		out := make([]float32, len(raw))
		for i, v := range raw {
			out[i] = float32(v)
		}
		return out, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapProviderError("openai embed", err)
	}
	return vector, nil
}

func (c *Client) Dimension() int {
	return c.dimension
}

// toStatusError lets the shared HTTP classifier see API status codes.
func toStatusError(operation string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return &resilience.StatusError{
		Provider:   "openai",
		Operation:  operation,
		StatusCode: apiErr.StatusCode,
		Status:     fmt.Sprintf("%d", apiErr.StatusCode),
		Body:       apiErr.Message,
	}
}
