package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

const (
	DefaultTTL = time.Hour
	keyPrefix  = "kt_search:"
)

// Store keeps search jobs and their final responses as JSON strings that
// expire together after the retention TTL.
type Store struct {
	client   redis.UniversalClient
	ttl      time.Duration
	executor *resilience.Executor
	now      func() time.Time
}

func New(client redis.UniversalClient, ttl time.Duration, executor *resilience.Executor) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, executor: executor, now: time.Now}
}

func jobKey(id string) string    { return keyPrefix + id + ":job" }
func resultKey(id string) string { return keyPrefix + id + ":final" }

func (s *Store) Create(ctx context.Context, job domain.SearchJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal search job: %w", err)
	}
	err = s.exec(ctx, "redis.create_job", func(ctx context.Context) error {
		ok, err := s.client.SetNX(ctx, jobKey(job.ID), raw, s.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("search job %s already exists", job.ID)
		}
		return nil
	})
	if err != nil {
		return wrapRedisError("create search job", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*domain.SearchJob, error) {
	var raw []byte
	err := s.exec(ctx, "redis.get_job", func(ctx context.Context) error {
		var err error
		raw, err = s.client.Get(ctx, jobKey(jobID)).Bytes()
		return err
	})
	if err != nil {
		return nil, wrapRedisError("get search job", err)
	}
	var job domain.SearchJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode search job: %w", err)
	}
	return &job, nil
}

// UpdateStatus rewrites the job under WATCH so concurrent updates do not
// interleave. The remaining TTL is kept.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMessage string) error {
	key := jobKey(jobID)
	err := s.exec(ctx, "redis.update_job", func(ctx context.Context) error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			var job domain.SearchJob
			if err := json.Unmarshal(raw, &job); err != nil {
				return fmt.Errorf("decode search job: %w", err)
			}
			job.Status = status
			job.Error = errMessage
			job.UpdatedAt = s.now().UTC()
			updated, err := json.Marshal(job)
			if err != nil {
				return fmt.Errorf("marshal search job: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
				return nil
			})
			return err
		}, key)
	})
	if err != nil {
		return wrapRedisError("update search job", err)
	}
	return nil
}

func (s *Store) SaveResult(ctx context.Context, jobID string, response *domain.SearchResponse) error {
	if response == nil {
		return domain.WrapError(domain.ErrInvalidInput, "save search result", errors.New("response is nil"))
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal search result: %w", err)
	}
	err = s.exec(ctx, "redis.save_result", func(ctx context.Context) error {
		return s.client.Set(ctx, resultKey(jobID), raw, s.ttl).Err()
	})
	if err != nil {
		return wrapRedisError("save search result", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, jobID string) (*domain.SearchResponse, error) {
	var raw []byte
	err := s.exec(ctx, "redis.get_result", func(ctx context.Context) error {
		var err error
		raw, err = s.client.Get(ctx, resultKey(jobID)).Bytes()
		return err
	})
	if err != nil {
		return nil, wrapRedisError("get search result", err)
	}
	var resp domain.SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}
	return &resp, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapRedisError("redis ping", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, operation string, fn func(context.Context) error) error {
	if s.executor == nil {
		return fn(ctx)
	}
	return s.executor.Execute(ctx, operation, fn, classifyRedisError)
}

// classifyRedisError treats a missing key as a normal answer, not a failure.
func classifyRedisError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, errors.Is(err, redis.Nil), errors.Is(err, context.Canceled):
		return resilience.ErrorClassification{}
	case errors.Is(err, redis.TxFailedErr):
		return resilience.ErrorClassification{Retryable: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapRedisError(operation string, err error) error {
	switch {
	case errors.Is(err, redis.Nil):
		return domain.WrapError(domain.ErrNotFound, operation, err)
	case classifyRedisError(err).Retryable || resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return domain.WrapError(domain.ErrProviderUnavailable, operation, err)
	}
}
