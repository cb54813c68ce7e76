// Package queue moves conversion jobs through Redis lists. Producers LPUSH
// onto <prefix>:inbound; each worker BLMOVEs a job onto <prefix>:processing,
// runs it, pushes the outcome onto <prefix>:<direction>:results and removes
// it from processing. Jobs that fail for infrastructure reasons go back to
// inbound until their attempts reach the limit, then to <prefix>:dead.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Job is one queued conversion.
type Job struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Direction  string    `json:"direction"`
	Payload    string    `json:"payload"`
	Strict     bool      `json:"strict"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// JobResult is pushed onto the results list of the job's direction.
type JobResult struct {
	JobID         string          `json:"job_id"`
	TenantID      string          `json:"tenant_id"`
	Direction     string          `json:"direction"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Output        string          `json:"output,omitempty"`
	Result        json.RawMessage `json:"result"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// Handler converts one job. A returned error means the job could not be
// processed at all and should be retried; conversion failures belong in
// the JobResult.
type Handler func(ctx context.Context, job Job) (*JobResult, error)

// Lists is the subset of the Redis client the queue needs.
type Lists interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
}

type Config struct {
	Prefix      string
	MaxAttempts int
	// PollTimeout bounds each blocking pop so workers notice cancellation.
	PollTimeout time.Duration
}

type Queue struct {
	lists  Lists
	cfg    Config
	logger zerolog.Logger
}

func New(lists Lists, cfg Config, logger zerolog.Logger) *Queue {
	if cfg.Prefix == "" {
		cfg.Prefix = "hl7bridge"
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	return &Queue{lists: lists, cfg: cfg, logger: logger.With().Str("component", "queue").Logger()}
}

func (q *Queue) InboundKey() string    { return q.cfg.Prefix + ":inbound" }
func (q *Queue) ProcessingKey() string { return q.cfg.Prefix + ":processing" }
func (q *Queue) DeadKey() string       { return q.cfg.Prefix + ":dead" }

func (q *Queue) ResultsKey(direction string) string {
	return q.cfg.Prefix + ":" + direction + ":results"
}

// Publish enqueues job, assigning an id when it has none.
func (q *Queue) Publish(ctx context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: encode job: %w", err)
	}
	if err := q.lists.LPush(ctx, q.InboundKey(), data).Err(); err != nil {
		return "", fmt.Errorf("queue: publish: %w", err)
	}
	return job.ID, nil
}

// Requeue moves jobs left in processing by a previous run back to inbound.
func (q *Queue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.lists.LMove(ctx, q.ProcessingKey(), q.InboundKey(), "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("queue: requeue: %w", err)
		}
		n++
	}
}

// Consume runs workers until ctx is done.
func (q *Queue) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers < 1 {
		workers = 1
	}
	if n, err := q.Requeue(ctx); err != nil {
		return err
	} else if n > 0 {
		q.logger.Warn().Int("jobs", n).Msg("requeued jobs left in processing")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			q.logger.Info().Int("worker", worker).Msg("queue worker started")
			for gctx.Err() == nil {
				if err := q.next(gctx, handle); err != nil && gctx.Err() == nil {
					q.logger.Error().Err(err).Int("worker", worker).Msg("queue poll failed")
					sleep(gctx, time.Second)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// next processes at most one job.
func (q *Queue) next(ctx context.Context, handle Handler) error {
	raw, err := q.lists.BLMove(ctx, q.InboundKey(), q.ProcessingKey(), "RIGHT", "LEFT", q.cfg.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	// The processing entry is removed with a context that outlives shutdown.
	defer q.lists.LRem(context.WithoutCancel(ctx), q.ProcessingKey(), 1, raw)

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Error().Err(err).Msg("undecodable job moved to dead letter")
		return q.lists.LPush(ctx, q.DeadKey(), raw).Err()
	}

	res, herr := q.safeHandle(ctx, handle, job)
	if herr != nil {
		return q.retry(ctx, job, herr)
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result of job %s: %w", job.ID, err)
	}
	return q.lists.LPush(ctx, q.ResultsKey(job.Direction), data).Err()
}

func (q *Queue) safeHandle(ctx context.Context, handle Handler, job Job) (res *JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	res, err = handle(ctx, job)
	if err == nil && res == nil {
		err = errors.New("handler returned no result")
	}
	return res, err
}

func (q *Queue) retry(ctx context.Context, job Job, cause error) error {
	job.Attempts++
	job.LastError = cause.Error()
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	log := q.logger.Warn().Err(cause).
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Int("attempts", job.Attempts)
	if job.Attempts >= q.cfg.MaxAttempts {
		log.Msg("job moved to dead letter")
		return q.lists.LPush(ctx, q.DeadKey(), data).Err()
	}
	log.Msg("job requeued")
	return q.lists.LPush(ctx, q.InboundKey(), data).Err()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
