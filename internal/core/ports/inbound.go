package ports

import (
	"context"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

// SearchService is the inbound contract for the synchronous query pipeline.
// It never returns an error: failures are encoded in the response.
type SearchService interface {
	Search(ctx context.Context, query string) *domain.SearchResponse
}

// SearchJobService is the inbound contract for asynchronous searches.
type SearchJobService interface {
	Submit(ctx context.Context, query string) (*domain.SearchJob, error)
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
	Result(ctx context.Context, jobID string) (*domain.SearchResponse, error)
	Process(ctx context.Context, jobID string) error
}

// SearchLogReader exposes recent search executions.
type SearchLogReader interface {
	Recent(ctx context.Context, limit int) ([]domain.SearchLogEntry, error)
}

// ClientDirectory exposes the discovered client registry.
type ClientDirectory interface {
	Clients(ctx context.Context) ([]domain.ClientInfo, error)
}

// Clock is injected wherever time drives behaviour (cache TTLs, temporal filters).
type Clock interface {
	Now() time.Time
}
