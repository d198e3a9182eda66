// Package queue wraps the batch-message queue: receive, delete, and
// extend-visibility operations over SQS, with wait and visibility
// parameters chosen per call.
package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// MaxVisibilitySeconds is the SQS ceiling on a single change-visibility
// call.
const MaxVisibilitySeconds = 43200

// Message is one received queue message, normalised from the native SQS
// receive response.
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          string
}

// API is the subset of *sqs.Client the gateway depends on, so tests can
// substitute a fake.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// Gateway is the Queue Gateway client for one queue URL.
type Gateway struct {
	api      API
	queueURL string
}

// New constructs a Gateway bound to one queue.
func New(api API, queueURL string) *Gateway {
	return &Gateway{api: api, queueURL: queueURL}
}

// Receive actively polls for up to maxMessages messages, waiting up to
// waitSeconds for one to arrive, reserving each for visibilitySeconds.
func (g *Gateway) Receive(ctx context.Context, maxMessages, waitSeconds, visibilitySeconds int32) ([]Message, error) {
	out, err := g.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(g.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitSeconds,
		VisibilityTimeout:   visibilitySeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: receive: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{}
		if m.MessageId != nil {
			msg.MessageID = *m.MessageId
		}
		if m.ReceiptHandle != nil {
			msg.ReceiptHandle = *m.ReceiptHandle
		}
		if m.Body != nil {
			msg.Body = *m.Body
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Delete removes a message from the queue, used on COMPLETED and DLQ_SENT
// transitions.
func (g *Gateway) Delete(ctx context.Context, receiptHandle string) error {
	_, err := g.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(g.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("queue: delete: %w", err)
	}
	return nil
}

// ChangeVisibility extends (or shortens) the time before a received
// message becomes visible again, clamped to MaxVisibilitySeconds — the
// deferral and pause-gate mechanism.
func (g *Gateway) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error {
	if timeoutSeconds > MaxVisibilitySeconds {
		timeoutSeconds = MaxVisibilitySeconds
	}
	_, err := g.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(g.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: timeoutSeconds,
	})
	if err != nil {
		return fmt.Errorf("queue: change visibility: %w", err)
	}
	return nil
}
