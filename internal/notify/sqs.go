package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/codemonster/judge/api"
)

// SQS delivers verdicts to an SQS queue instead of a webhook, for
// deployments where the submission store consumes results asynchronously.
type SQS struct {
	client   *sqs.Client
	queueURL string
}

func NewSQS(ctx context.Context, queueURL, region string) (*SQS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SQS{client: sqs.NewFromConfig(cfg), queueURL: queueURL}, nil
}

func (s *SQS) Notify(ctx context.Context, submissionID string, result api.JudgeResult) error {
	body, err := json.Marshal(api.WebhookPayload{SubmissionID: submissionID, Result: result})
	if err != nil {
		return fmt.Errorf("marshal result message: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send result message: %w", err)
	}
	return nil
}
