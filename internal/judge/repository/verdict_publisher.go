package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"codejudge/internal/common/mq"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// DefaultVerdictTopic receives one event per final verdict.
const DefaultVerdictTopic = "judge.verdict.final"

// MQVerdictPublisher publishes verdict events to a message queue.
type MQVerdictPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQVerdictPublisher creates a publisher; an empty topic uses DefaultVerdictTopic.
func NewMQVerdictPublisher(producer mq.Producer, topic string) *MQVerdictPublisher {
	if topic == "" {
		topic = DefaultVerdictTopic
	}
	return &MQVerdictPublisher{producer: producer, topic: topic}
}

// PublishVerdict publishes a final verdict event.
func (p *MQVerdictPublisher) PublishVerdict(ctx context.Context, event model.VerdictEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(event.SubmissionID, payload)
	message.SetHeader("event", "verdict.final")
	message.SetHeader("status", string(event.Status))
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish verdict event failed")
	}
	return nil
}
