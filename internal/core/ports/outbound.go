package ports

import (
	"context"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

// VectorStore executes retrieval queries and payload aggregations.
type VectorStore interface {
	Query(ctx context.Context, query domain.VectorQuery) ([]domain.Candidate, error)
	DistinctValues(ctx context.Context, field string) (map[string]int, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
}

// LanguageModel completes prompts.
type LanguageModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// EntityRegistry resolves free-text client names against discovered clients.
type EntityRegistry interface {
	Discover(ctx context.Context) (map[string]domain.ClientInfo, error)
	Match(ctx context.Context, name string) (domain.ClientMatch, error)
}

// Similarity scores two strings in [0,1].
type Similarity interface {
	Ratio(a, b string) float64
}

// SearchLogRepository persists search executions.
type SearchLogRepository interface {
	Insert(ctx context.Context, entry domain.SearchLogEntry) error
	Recent(ctx context.Context, limit int) ([]domain.SearchLogEntry, error)
}

// JobQueue publishes and consumes search job ids.
type JobQueue interface {
	PublishSearchJob(ctx context.Context, jobID string) error
	SubscribeSearchJobs(ctx context.Context, handler func(context.Context, string) error) error
}

// JobStore keeps job state and results with a retention TTL.
type JobStore interface {
	Create(ctx context.Context, job domain.SearchJob) error
	Get(ctx context.Context, jobID string) (*domain.SearchJob, error)
	UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMessage string) error
	SaveResult(ctx context.Context, jobID string, response *domain.SearchResponse) error
	GetResult(ctx context.Context, jobID string) (*domain.SearchResponse, error)
}

// SearchObserver receives pipeline telemetry. Implementations must be cheap
// and safe for concurrent use.
type SearchObserver interface {
	ObserveStage(stage string, elapsed time.Duration)
	ObserveSearch(queryType string, success, usedFallback, cached bool)
}
