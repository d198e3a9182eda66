package eventhandler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignite/collection-dispatcher/internal/queue"
)

// Queue is the subset of the Queue Gateway the consumer needs.
type Queue interface {
	Receive(ctx context.Context, maxMessages, waitSeconds, visibilitySeconds int32) ([]queue.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Consumer runs the SQS-relayed ingestion mode: each queue message
// carries an SNSEvent, relayed from the SNS topic's SQS subscription.
type Consumer struct {
	queue      Queue
	reconciler *Reconciler
	log        *logrus.Entry
	done       chan struct{}
}

// NewConsumer constructs a Consumer.
func NewConsumer(q Queue, r *Reconciler, log *logrus.Entry) *Consumer {
	return &Consumer{queue: q, reconciler: r, log: log, done: make(chan struct{})}
}

// Start launches the poll loop in a goroutine and returns immediately.
func (c *Consumer) Start(ctx context.Context) {
	c.log.Info("sqs delivery-event consumer started")
	go c.poll(ctx)
}

// Stop signals the poll loop to exit.
func (c *Consumer) Stop() {
	close(c.done)
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		messages, err := c.queue.Receive(ctx, 10, 20, 60)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Error("sqs receive error")
			time.Sleep(5 * time.Second)
			continue
		}

		for _, msg := range messages {
			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg queue.Message) {
	var envelope SNSEvent
	if err := json.Unmarshal([]byte(msg.Body), &envelope); err != nil {
		c.log.WithError(err).Error("sqs: bad message, could not parse sns event")
		c.delete(ctx, msg.ReceiptHandle)
		return
	}

	for _, record := range envelope.Records {
		c.reconciler.ProcessMessage(ctx, record.SNS.Message)
	}
	c.delete(ctx, msg.ReceiptHandle)
}

func (c *Consumer) delete(ctx context.Context, receiptHandle string) {
	if err := c.queue.Delete(ctx, receiptHandle); err != nil {
		c.log.WithError(err).Error("failed to delete delivery-event message")
	}
}
