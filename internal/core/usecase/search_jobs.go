package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
)

const defaultPollInterval = 250 * time.Millisecond

// SearchJobUseCase runs searches asynchronously: Submit enqueues, the worker
// calls Process, callers poll Status and Result.
type SearchJobUseCase struct {
	store  ports.JobStore
	queue  ports.JobQueue
	search ports.SearchService
	now    func() time.Time
}

func NewSearchJobUseCase(store ports.JobStore, queue ports.JobQueue, search ports.SearchService) *SearchJobUseCase {
	return &SearchJobUseCase{store: store, queue: queue, search: search, now: time.Now}
}

func (uc *SearchJobUseCase) Submit(ctx context.Context, query string) (*domain.SearchJob, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit search job", errors.New("query is required"))
	}
	now := uc.now().UTC()
	job := domain.SearchJob{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    domain.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create search job: %w", err)
	}
	if err := uc.queue.PublishSearchJob(ctx, job.ID); err != nil {
		if failErr := uc.store.UpdateStatus(ctx, job.ID, domain.JobFailed, err.Error()); failErr != nil {
			return nil, fmt.Errorf("publish search job: %w; mark failed status: %v", err, failErr)
		}
		return nil, fmt.Errorf("publish search job: %w", err)
	}
	return &job, nil
}

// Status reports not_found for unknown ids instead of an error.
func (uc *SearchJobUseCase) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	job, err := uc.store.Get(ctx, jobID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return domain.JobNotFound, nil
		}
		return "", fmt.Errorf("get search job: %w", err)
	}
	return job.Status, nil
}

func (uc *SearchJobUseCase) Result(ctx context.Context, jobID string) (*domain.SearchResponse, error) {
	job, err := uc.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get search job: %w", err)
	}
	if job.Status != domain.JobComplete {
		return nil, domain.WrapError(domain.ErrNotFound, "get search result", fmt.Errorf("job %s is %s", jobID, job.Status))
	}
	resp, err := uc.store.GetResult(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get search result: %w", err)
	}
	return resp, nil
}

// Process runs the pipeline for a queued job. A pipeline failure is a
// completed job with success=false; only storage failures mark it failed.
func (uc *SearchJobUseCase) Process(ctx context.Context, jobID string) error {
	job, err := uc.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get search job: %w", err)
	}
	if job.Status.Terminal() {
		return nil
	}
	if err := uc.store.UpdateStatus(ctx, jobID, domain.JobInProgress, ""); err != nil {
		return fmt.Errorf("set status=in_progress: %w", err)
	}

	resp := uc.search.Search(ctx, job.Query)
	if err := uc.store.SaveResult(ctx, jobID, resp); err != nil {
		if failErr := uc.store.UpdateStatus(ctx, jobID, domain.JobFailed, err.Error()); failErr != nil {
			return fmt.Errorf("save search result: %w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save search result: %w", err)
	}
	if err := uc.store.UpdateStatus(ctx, jobID, domain.JobComplete, resp.Error); err != nil {
		return fmt.Errorf("set status=complete: %w", err)
	}
	return nil
}

// Future returns a handle that waits for jobID to finish.
func (uc *SearchJobUseCase) Future(jobID string) *SearchFuture {
	return &SearchFuture{JobID: jobID, jobs: uc, interval: defaultPollInterval}
}

// SearchFuture is a handle on a submitted job.
type SearchFuture struct {
	JobID    string
	jobs     *SearchJobUseCase
	interval time.Duration
}

// AwaitCompletion polls until the job completes, fails or timeout elapses.
// A failed job returns its error message; a timeout returns ErrTemporary.
func (f *SearchFuture) AwaitCompletion(ctx context.Context, timeout time.Duration) (*domain.SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		job, err := f.jobs.store.Get(ctx, f.JobID)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("poll search job: %w", err)
		}
		if err == nil {
			switch job.Status {
			case domain.JobComplete:
				return f.jobs.Result(ctx, f.JobID)
			case domain.JobFailed:
				return nil, fmt.Errorf("search job %s failed: %s", f.JobID, job.Error)
			}
		}

		select {
		case <-ctx.Done():
			return nil, domain.WrapError(domain.ErrTemporary, "await search job", ctx.Err())
		case <-ticker.C:
		}
	}
}
