package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
	"github.com/kirillkom/kt-search/internal/infrastructure/restjson"
)

const (
	scrollPageSize = 256
	facetLimit     = 10000
)

type Config struct {
	BaseURL        string
	Collection     string
	APIKey         string
	RequestTimeout time.Duration
}

// Client reads KT chunks from one Qdrant collection.
type Client struct {
	rest       *restjson.Client
	collection string
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	var header http.Header
	if cfg.APIKey != "" {
		header = http.Header{"Api-Key": {cfg.APIKey}}
	}
	return &Client{
		rest:       restjson.New("qdrant", cfg.BaseURL, timeout, header),
		collection: cfg.Collection,
		executor:   executor,
	}
}

type point struct {
	ID      any            `json:"id"`
	Score   *float64       `json:"score,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Query runs a nearest-neighbour search when an embedding is given and a
// filtered scroll otherwise.
func (c *Client) Query(ctx context.Context, q domain.VectorQuery) ([]domain.Candidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var (
		points []point
		err    error
	)
	if len(q.Embedding) > 0 {
		points, err = c.search(ctx, q.Embedding, q.Filter, limit)
	} else {
		points, err = c.scroll(ctx, q.Filter, limit)
	}
	if err != nil {
		return nil, resilience.WrapProviderError("qdrant query", err)
	}

	out := make([]domain.Candidate, 0, len(points))
	for _, p := range points {
		out = append(out, candidateFromPoint(p))
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, vector []float32, filter map[string]string, limit int) ([]point, error) {
	body := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		body["filter"] = f
	}

	return resilience.Call(ctx, c.executor, "qdrant.query", func(ctx context.Context) ([]point, error) {
		var resp struct {
			Result struct {
				Points []point `json:"points"`
			} `json:"result"`
		}
		if err := c.rest.Post(ctx, c.collectionPath("points/query"), body, &resp, "query"); err != nil {
			return nil, err
		}
		return resp.Result.Points, nil
	}, resilience.ClassifyHTTPError)
}

func (c *Client) scroll(ctx context.Context, filter map[string]string, limit int) ([]point, error) {
	var (
		out    []point
		offset any
	)
	for len(out) < limit {
		body := map[string]any{
			"limit":        min(scrollPageSize, limit-len(out)),
			"with_payload": true,
			"with_vector":  false,
		}
		if f := buildFilter(filter); f != nil {
			body["filter"] = f
		}
		if offset != nil {
			body["offset"] = offset
		}

		type page struct {
			Points []point `json:"points"`
			Next   any     `json:"next_page_offset"`
		}
		res, err := resilience.Call(ctx, c.executor, "qdrant.scroll", func(ctx context.Context) (page, error) {
			var resp struct {
				Result page `json:"result"`
			}
			if err := c.rest.Post(ctx, c.collectionPath("points/scroll"), body, &resp, "scroll"); err != nil {
				return page{}, err
			}
			return resp.Result, nil
		}, resilience.ClassifyHTTPError)
		if err != nil {
			return nil, err
		}

		out = append(out, res.Points...)
		if res.Next == nil || len(res.Points) == 0 {
			break
		}
		offset = res.Next
	}
	return out, nil
}

// DistinctValues counts points per value of a keyword payload field.
func (c *Client) DistinctValues(ctx context.Context, field string) (map[string]int, error) {
	body := map[string]any{
		"key":   field,
		"limit": facetLimit,
		"exact": true,
	}

	counts, err := resilience.Call(ctx, c.executor, "qdrant.facet", func(ctx context.Context) (map[string]int, error) {
		var resp struct {
			Result struct {
				Hits []struct {
					Value any `json:"value"`
					Count int `json:"count"`
				} `json:"hits"`
			} `json:"result"`
		}
		if err := c.rest.Post(ctx, c.collectionPath("facet"), body, &resp, "facet"); err != nil {
			return nil, err
		}
		out := make(map[string]int, len(resp.Result.Hits))
		for _, hit := range resp.Result.Hits {
			out[fmt.Sprint(hit.Value)] += hit.Count
		}
		return out, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapProviderError("qdrant facet "+field, err)
	}
	return counts, nil
}

// Ping checks that the collection exists.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rest.Get(ctx, c.collectionPath(""), nil, "collection info"); err != nil {
		return resilience.WrapProviderError("qdrant ping", err)
	}
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	path := "/collections/" + url.PathEscape(c.collection)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

func buildFilter(filter map[string]string) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for _, key := range sortedKeys(filter) {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": filter[key]},
		})
	}
	return map[string]any{"must": must}
}
