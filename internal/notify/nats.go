package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/codemonster/judge/api"
)

// NATS publishes verdicts on a subject. Fire-and-forget like the other
// transports: no acknowledgement is awaited.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("judge-notifier"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATS{conn: conn, subject: subject}, nil
}

func (n *NATS) Notify(_ context.Context, submissionID string, result api.JudgeResult) error {
	body, err := json.Marshal(api.WebhookPayload{SubmissionID: submissionID, Result: result})
	if err != nil {
		return fmt.Errorf("marshal result message: %w", err)
	}
	if err := n.conn.Publish(n.subject, body); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

func (n *NATS) Close() {
	n.conn.Drain()
}
