package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codemonster/judge/api"
	"github.com/codemonster/judge/internal/notify"
)

const (
	DefaultWorkerConcurrency = 3
	DefaultMaxAttempts       = 2
	DefaultRetryBackoff      = 2 * time.Second

	popTimeout = time.Second
)

// Judger produces a verdict for one submission. *judge.Orchestrator
// satisfies it. It never returns an error: judging failures are folded
// into the result.
type Judger interface {
	Judge(ctx context.Context, sub api.Submission) api.JudgeResult
}

// Worker drains the queue with a bounded pool. Judging failures complete
// the job with an INTERNAL_ERROR verdict; the retry machinery applies only
// to dispatch failures before judging produced a result, so a crashing
// submission can never trigger a retry storm.
type Worker struct {
	queue    *Queue
	judger   Judger
	notifier notify.Notifier
	logger   *slog.Logger

	concurrency int
	maxAttempts int
	backoff     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type WorkerOptions struct {
	Concurrency  int
	MaxAttempts  int
	RetryBackoff time.Duration
}

func NewWorker(q *Queue, judger Judger, notifier notify.Notifier, opts WorkerOptions, logger *slog.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultWorkerConcurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	return &Worker{
		queue:       q,
		judger:      judger,
		notifier:    notifier,
		logger:      logger,
		concurrency: opts.Concurrency,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.RetryBackoff,
		stop:        make(chan struct{}),
	}
}

// Start launches the worker pool. It returns immediately.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(ctx)
		}()
	}
	w.logger.Info("queue workers started", "concurrency", w.concurrency)
}

// Shutdown stops intake and waits for in-flight jobs to finish, up to the
// context deadline.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown: %w", ctx.Err())
	}
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		jobID, sub, ok, err := w.queue.take(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if jobID != "" {
				w.retryDispatch(ctx, jobID, err)
			} else {
				w.logger.Error("failed to take job", "error", err)
				// Back off so a broken Redis does not spin the loop.
				select {
				case <-time.After(w.backoff):
				case <-w.stop:
					return
				case <-ctx.Done():
					return
				}
			}
			continue
		}
		if !ok {
			continue
		}

		w.process(ctx, jobID, sub)
	}
}

// process runs one job to its terminal state. Progress milestones: 10
// before judging, 90 after, 100 on completion.
func (w *Worker) process(ctx context.Context, jobID string, sub api.Submission) {
	w.queue.markActive(ctx, jobID)
	w.queue.setProgress(ctx, jobID, 10)

	w.logger.Info("judging submission",
		"job", jobID,
		"submission", sub.SubmissionID,
		"language", sub.Language,
		"testCases", len(sub.TestCases),
	)

	result := w.judger.Judge(ctx, sub)

	w.queue.setProgress(ctx, jobID, 90)

	if err := w.queue.complete(ctx, jobID, result); err != nil {
		// The verdict exists; losing the queue record must not lose the
		// delivery below.
		w.logger.Error("failed to record job completion", "job", jobID, "error", err)
	}

	w.logger.Info("submission judged",
		"job", jobID,
		"submission", sub.SubmissionID,
		"status", result.Status,
		"passed", result.TestCasesPassed,
		"total", result.TotalTestCases,
	)

	// Exactly one outbound side effect: best-effort result delivery.
	// At-most-once; a failure is logged and never retried.
	if w.notifier != nil {
		if err := w.notifier.Notify(ctx, sub.SubmissionID, result); err != nil {
			w.logger.Warn("result delivery failed",
				"job", jobID,
				"submission", sub.SubmissionID,
				"error", err,
			)
		}
	}
}

// retryDispatch handles a job whose payload could not be read or decoded.
// The job goes back on the queue with exponential backoff until the
// attempt cap, then fails terminally.
func (w *Worker) retryDispatch(ctx context.Context, jobID string, cause error) {
	attempts := w.queue.bumpAttempts(ctx, jobID)
	if attempts >= w.maxAttempts {
		w.logger.Error("job dispatch failed terminally",
			"job", jobID, "attempts", attempts, "error", cause)
		w.queue.fail(ctx, jobID, cause.Error())
		return
	}

	delay := w.backoff << (attempts - 1)
	w.logger.Warn("job dispatch failed, will retry",
		"job", jobID, "attempts", attempts, "delay", delay, "error", cause)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-time.After(delay):
			w.queue.requeue(ctx, jobID)
		case <-w.stop:
			w.queue.requeue(context.WithoutCancel(ctx), jobID)
		}
	}()
}
