// internal/notify/notifier.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"project-desk/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const EventProjectCompleted = "project.completed"

// CompletedEvent is published once a completion has been persisted.
type CompletedEvent struct {
	Event       string    `json:"event"`
	ProjectID   string    `json:"project_id"`
	QCStatus    string    `json:"qc_status"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notifier hands lifecycle events to downstream consumers.
type Notifier interface {
	ProjectCompleted(ctx context.Context, event CompletedEvent) error
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NewSNSService builds an SNS client from the default AWS credential chain.
func NewSNSService(ctx context.Context, region string) (SNSService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return sns.NewFromConfig(cfg), nil
}

type SNSNotifier struct {
	client   SNSService
	topicARN string
	logger   logger.Logger
}

func NewSNSNotifier(client SNSService, topicARN string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		logger:   logger.ForComponent(log, "notify.sns"),
	}
}

func (n *SNSNotifier) ProjectCompleted(ctx context.Context, event CompletedEvent) error {
	if event.Event == "" {
		event.Event = EventProjectCompleted
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Event),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Event, err)
	}

	fields := map[string]interface{}{
		"projectId": event.ProjectID,
		"event":     event.Event,
	}
	if out != nil && out.MessageId != nil {
		fields["messageId"] = *out.MessageId
	}
	n.logger.Info("Published lifecycle event", fields)
	return nil
}

// NoopNotifier drops every event.
type NoopNotifier struct{}

func (NoopNotifier) ProjectCompleted(context.Context, CompletedEvent) error { return nil }
