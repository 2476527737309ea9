package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"

	"github.com/codemonster/judge/api"
)

// Job states as stored in the Redis job hash.
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

const (
	keyPrefix    = "judge:job:"
	keyWaiting   = "judge:queue:waiting"
	keyActive    = "judge:queue:active"
	keyCompleted = "judge:queue:completed"
	keyFailed    = "judge:queue:failed"
)

// History retention caps: only the most recent terminal jobs keep their
// full record.
const (
	DefaultCompletedRetention = 50
	DefaultFailedRetention    = 20
)

var ErrJobNotFound = errors.New("job not found")

// Queue is the durable submission queue. Job state lives in Redis so
// status polls survive process restarts; an in-process registry of
// in-flight jobs serves fast progress reads without a round trip.
type Queue struct {
	rdb    *redis.Client
	codec  *codec
	logger *slog.Logger

	completedRetention int64
	failedRetention    int64

	inflight *xsync.MapOf[string, api.JobStatus]
}

func New(rdb *redis.Client, logger *slog.Logger) (*Queue, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	return &Queue{
		rdb:                rdb,
		codec:              c,
		logger:             logger,
		completedRetention: DefaultCompletedRetention,
		failedRetention:    DefaultFailedRetention,
		inflight:           xsync.NewMapOf[string, api.JobStatus](),
	}, nil
}

// SetRetention overrides the terminal-history caps.
func (q *Queue) SetRetention(completed, failed int64) {
	if completed > 0 {
		q.completedRetention = completed
	}
	if failed > 0 {
		q.failedRetention = failed
	}
}

// Enqueue records the submission and places it on the waiting list.
// It returns the queue's job identifier, used for status polling.
func (q *Queue) Enqueue(ctx context.Context, sub api.Submission) (string, error) {
	payload, err := q.codec.encode(sub)
	if err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	now := time.Now().UnixMilli()

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyPrefix+jobID,
		"state", StateWaiting,
		"progress", 0,
		"attempts", 0,
		"enqueuedAt", now,
		"submissionId", sub.SubmissionID,
		"payload", payload,
	)
	pipe.LPush(ctx, keyWaiting, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// JobStatus returns the poll view of one job. In-flight jobs are answered
// from the in-process registry; anything else comes from Redis.
func (q *Queue) JobStatus(ctx context.Context, jobID string) (api.JobStatus, error) {
	if st, ok := q.inflight.Load(jobID); ok {
		return st, nil
	}

	fields, err := q.rdb.HGetAll(ctx, keyPrefix+jobID).Result()
	if err != nil {
		return api.JobStatus{}, fmt.Errorf("read job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return api.JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	st := api.JobStatus{
		JobID:       jobID,
		State:       fields["state"],
		Progress:    atoi(fields["progress"]),
		EnqueuedAt:  atoi64(fields["enqueuedAt"]),
		StartedAt:   atoi64(fields["startedAt"]),
		FinishedAt:  atoi64(fields["finishedAt"]),
		FailedError: fields["error"],
	}
	if blob := fields["result"]; blob != "" {
		var result api.JudgeResult
		if err := q.codec.decode([]byte(blob), &result); err != nil {
			return api.JobStatus{}, fmt.Errorf("decode result for job %s: %w", jobID, err)
		}
		st.Result = &result
	}
	return st, nil
}

// Stats counts jobs by state.
func (q *Queue) Stats(ctx context.Context) (api.QueueStats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, keyWaiting)
	active := pipe.SCard(ctx, keyActive)
	completed := pipe.LLen(ctx, keyCompleted)
	failed := pipe.LLen(ctx, keyFailed)
	if _, err := pipe.Exec(ctx); err != nil {
		return api.QueueStats{}, fmt.Errorf("read queue stats: %w", err)
	}
	return api.QueueStats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// take pops the next waiting job, blocking up to the given timeout.
// ok is false when the timeout elapsed with nothing to do.
func (q *Queue) take(ctx context.Context, timeout time.Duration) (jobID string, sub api.Submission, ok bool, err error) {
	vals, err := q.rdb.BRPop(ctx, timeout, keyWaiting).Result()
	if errors.Is(err, redis.Nil) {
		return "", api.Submission{}, false, nil
	}
	if err != nil {
		return "", api.Submission{}, false, fmt.Errorf("pop waiting job: %w", err)
	}
	jobID = vals[1]

	payload, err := q.rdb.HGet(ctx, keyPrefix+jobID, "payload").Result()
	if err != nil {
		return jobID, api.Submission{}, false, fmt.Errorf("read payload for job %s: %w", jobID, err)
	}
	if err := q.codec.decode([]byte(payload), &sub); err != nil {
		return jobID, api.Submission{}, false, err
	}
	return jobID, sub, true, nil
}

func (q *Queue) markActive(ctx context.Context, jobID string) {
	now := time.Now().UnixMilli()
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyPrefix+jobID, "state", StateActive, "startedAt", now)
	pipe.SAdd(ctx, keyActive, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("failed to mark job active", "job", jobID, "error", err)
	}
	q.inflight.Store(jobID, api.JobStatus{
		JobID:      jobID,
		State:      StateActive,
		StartedAt:  now,
		EnqueuedAt: q.enqueuedAt(ctx, jobID),
	})
}

// setProgress updates the fast in-process view and the durable hash.
func (q *Queue) setProgress(ctx context.Context, jobID string, progress int) {
	if st, ok := q.inflight.Load(jobID); ok {
		st.Progress = progress
		q.inflight.Store(jobID, st)
	}
	if err := q.rdb.HSet(ctx, keyPrefix+jobID, "progress", progress).Err(); err != nil {
		q.logger.Warn("failed to persist job progress", "job", jobID, "error", err)
	}
}

// complete records the terminal result and moves the job into the bounded
// completed history.
func (q *Queue) complete(ctx context.Context, jobID string, result api.JudgeResult) error {
	blob, err := q.codec.encode(result)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyPrefix+jobID,
		"state", StateCompleted,
		"progress", 100,
		"finishedAt", time.Now().UnixMilli(),
		"result", blob,
	)
	pipe.SRem(ctx, keyActive, jobID)
	pipe.LPush(ctx, keyCompleted, jobID)
	pipe.LTrim(ctx, keyCompleted, 0, q.completedRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	q.inflight.Delete(jobID)
	return nil
}

// fail marks a job terminally failed at the queue level. Judging failures
// never land here; this is for jobs whose payload could not even be
// dispatched after retries.
func (q *Queue) fail(ctx context.Context, jobID string, errText string) {
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyPrefix+jobID,
		"state", StateFailed,
		"finishedAt", time.Now().UnixMilli(),
		"error", errText,
	)
	pipe.SRem(ctx, keyActive, jobID)
	pipe.LPush(ctx, keyFailed, jobID)
	pipe.LTrim(ctx, keyFailed, 0, q.failedRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("failed to mark job failed", "job", jobID, "error", err)
	}
	q.inflight.Delete(jobID)
}

// bumpAttempts increments and returns the job's dispatch attempt count.
func (q *Queue) bumpAttempts(ctx context.Context, jobID string) int {
	n, err := q.rdb.HIncrBy(ctx, keyPrefix+jobID, "attempts", 1).Result()
	if err != nil {
		q.logger.Warn("failed to count job attempt", "job", jobID, "error", err)
		return 1
	}
	return int(n)
}

// requeue puts a job back on the waiting list.
func (q *Queue) requeue(ctx context.Context, jobID string) {
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyPrefix+jobID, "state", StateWaiting)
	pipe.SRem(ctx, keyActive, jobID)
	pipe.LPush(ctx, keyWaiting, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Warn("failed to requeue job", "job", jobID, "error", err)
	}
	q.inflight.Delete(jobID)
}

func (q *Queue) enqueuedAt(ctx context.Context, jobID string) int64 {
	v, err := q.rdb.HGet(ctx, keyPrefix+jobID, "enqueuedAt").Result()
	if err != nil {
		return 0
	}
	return atoi64(v)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
