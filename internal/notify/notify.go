package notify

import (
	"context"

	"github.com/codemonster/judge/api"
)

// Notifier delivers a terminal verdict to the external system that owns
// the submission. Delivery is at-most-once and best-effort: the queue has
// already marked the job complete by the time Notify runs, so a returned
// error is logged by the caller and never retried.
type Notifier interface {
	Notify(ctx context.Context, submissionID string, result api.JudgeResult) error
}

// Nop discards results. Used when no delivery target is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, api.JudgeResult) error { return nil }
