package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/core/ports"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
	"github.com/kirillkom/kt-search/internal/infrastructure/restjson"
)

type Config struct {
	BaseURL        string
	GenModel       string
	EmbedModel     string
	EmbedDimension int
	RequestTimeout time.Duration
}

// Client talks to a local Ollama server for completions and embeddings.
type Client struct {
	rest       *restjson.Client
	genModel   string
	embedModel string
	dimension  int
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		rest:       restjson.New("ollama", cfg.BaseURL, timeout, nil),
		genModel:   cfg.GenModel,
		embedModel: cfg.EmbedModel,
		dimension:  cfg.EmbedDimension,
		executor:   executor,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
}

// Complete runs a non-streaming /api/generate call. req.Timeout bounds the
// whole call including retries.
func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	payload := generateRequest{
		Model:  c.genModel,
		Prompt: req.Prompt,
		Stream: false,
		Options: generateOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
		},
	}

	text, err := resilience.Call(ctx, c.executor, "ollama.generate", func(ctx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.rest.Post(ctx, "/api/generate", payload, &response, "generate"); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Response), nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapProviderError("ollama generate", err)
	}
	return text, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model": c.embedModel,
		"input": []string{text},
	}

	vector, err := resilience.Call(ctx, c.executor, "ollama.embed", func(ctx context.Context) ([]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := c.rest.Post(ctx, "/api/embed", payload, &response, "embed"); err != nil {
			return nil, err
		}
		if len(response.Embeddings) == 0 {
			return nil, fmt.Errorf("empty embedding result")
		}
		return response.Embeddings[0], nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapProviderError("ollama embed", err)
	}
	return vector, nil
}

func (c *Client) Dimension() int {
	return c.dimension
}
