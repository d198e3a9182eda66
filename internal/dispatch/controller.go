package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignite/collection-dispatcher/internal/queue"
	"github.com/ignite/collection-dispatcher/internal/store"
)

// ControllerStore is the subset of the Store Gateway the Dispatch Controller
// needs directly (the Batch Processor holds its own narrower interface).
type ControllerStore interface {
	GetExecution(ctx context.Context, id string) (*store.Execution, error)
	GetBatchRetryCount(ctx context.Context, batchID string) (int, error)
	IncrementBatchRetryCount(ctx context.Context, batchID string) (int, error)
	MarkBatchAsDLQ(ctx context.Context, batchID, errMsg string) error
}

// Queue is the subset of the Queue Gateway the controller needs.
type Queue interface {
	Receive(ctx context.Context, maxMessages, waitSeconds, visibilitySeconds int32) ([]queue.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
	ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error
}

// Audit is the subset of the audit logger the controller needs.
type Audit interface {
	Log(ctx context.Context, executionID string, batchID *string, event string, details map[string]interface{}) error
}

// Scheduler is invoked unconditionally at the end of every invocation.
type Scheduler interface {
	Run(ctx context.Context) error
}

// Controller implements the Dispatch Controller: the
// top-level invocation entry that routes between a wake-up poll and
// queue-delivered records, and drives the future-defer/retry/pause gates
// around the Batch Processor.
type Controller struct {
	store     ControllerStore
	queue     Queue
	processor *Processor
	audit     Audit
	scheduler Scheduler
	workerID  string
	log       *logrus.Entry
}

// NewController constructs a Controller.
func NewController(s ControllerStore, q Queue, processor *Processor, audit Audit, scheduler Scheduler, workerID string, log *logrus.Entry) *Controller {
	return &Controller{store: s, queue: q, processor: processor, audit: audit, scheduler: scheduler, workerID: workerID, log: log}
}

// Handle runs one invocation to completion and always invokes the Wake-up
// Scheduler before returning, regardless of what (if anything) was
// processed.
func (c *Controller) Handle(ctx context.Context, event InvocationEvent) (InvocationResult, error) {
	result := InvocationResult{Status: "completed", WorkerID: c.workerID}

	switch {
	case event.Action == "wake_up" || event.Action == "start_execution":
		c.log.WithField("action", event.Action).Info("action received, polling queue manually")
		processed, failed, err := c.pollAndProcess(ctx)
		if err != nil {
			if schedErr := c.scheduler.Run(ctx); schedErr != nil {
				c.log.WithError(schedErr).Error("failed to manage scheduling")
			}
			return result, err
		}
		result.Processed, result.Failed = processed, failed

	case event.Records != nil:
		c.log.Info("queue records received, processing batch event")
		processed, failed := c.processRecords(ctx, event.Records)
		result.Processed, result.Failed = processed, failed

	default:
		c.log.Warn("unexpected event format")
	}

	if err := c.scheduler.Run(ctx); err != nil {
		c.log.WithError(err).Error("failed to manage scheduling")
	}

	return result, nil
}

// pollAndProcess actively polls the queue for the wake_up/start_execution
// control paths.
func (c *Controller) pollAndProcess(ctx context.Context) (processed, failed int, err error) {
	messages, err := c.queue.Receive(ctx, 10, 5, 300)
	if err != nil {
		return 0, 0, fmt.Errorf("dispatch: poll queue: %w", err)
	}
	c.log.Infof("pulled %d messages from queue", len(messages))

	records := make([]RecordMessage, len(messages))
	for i, m := range messages {
		records[i] = RecordMessage{MessageID: m.MessageID, ReceiptHandle: m.ReceiptHandle, Body: m.Body}
	}
	p, f := c.processRecords(ctx, records)
	return p, f, nil
}

func (c *Controller) processRecords(ctx context.Context, records []RecordMessage) (processed, failed int) {
	for _, record := range records {
		if c.processOne(ctx, record) {
			processed++
		} else {
			failed++
		}
	}
	return processed, failed
}

// processOne runs the full per-message algorithm — parse, future-defer,
// retry gate, pause gate, process, ack/retry/DLQ — returning
// true if the message was counted as processed (acked, DLQ'd, deferred,
// held back by the pause gate, or left for a finished execution) and false
// if it failed and was left on the queue for redelivery.
func (c *Controller) processOne(ctx context.Context, record RecordMessage) bool {
	msg, err := ParseBatchMessage(record.Body)
	if err != nil {
		c.log.WithError(err).Error("failed to parse batch message, leaving on queue")
		return false
	}

	if msg.ScheduledFor != nil && *msg.ScheduledFor != "" {
		deferred, err := c.handleFutureBatch(ctx, record.ReceiptHandle, *msg.ScheduledFor, msg)
		if err != nil {
			c.log.WithError(err).WithField("batch_id", msg.BatchID).Error("error deferring future batch")
		}
		if deferred {
			return true
		}
	}

	_ = c.audit.Log(ctx, msg.ExecutionID, &msg.BatchID, store.EventPickedUp, nil)

	retryCount, err := c.store.GetBatchRetryCount(ctx, msg.BatchID)
	if err != nil {
		c.log.WithError(err).WithField("batch_id", msg.BatchID).Error("failed to load retry count")
		return false
	}
	if retryCount >= store.MaxRetries {
		c.dlq(ctx, msg, record.ReceiptHandle, "Exceeded maximum retry attempts", nil)
		return true
	}

	retryCount, err = c.store.IncrementBatchRetryCount(ctx, msg.BatchID)
	if err != nil {
		c.log.WithError(err).WithField("batch_id", msg.BatchID).Error("failed to increment retry count")
		return false
	}

	execution, err := c.store.GetExecution(ctx, msg.ExecutionID)
	if err != nil {
		c.log.WithError(err).WithField("execution_id", msg.ExecutionID).Error("failed to load execution for pause gate")
		return false
	}
	if execution.Status == store.ExecutionPaused {
		if err := c.queue.ChangeVisibility(ctx, record.ReceiptHandle, 300); err != nil {
			c.log.WithError(err).Error("failed to extend visibility on paused execution")
		}
		return true
	}

	_ = c.audit.Log(ctx, msg.ExecutionID, &msg.BatchID, store.EventProcessing, map[string]interface{}{"retry_count": retryCount})

	if err := c.processor.Process(ctx, msg); err != nil {
		if errors.Is(err, ErrExecutionFinished) {
			c.log.WithField("batch_id", msg.BatchID).Info("execution already finished, leaving message for queue policy")
			return true
		}
		if retryCount >= store.MaxRetries {
			c.dlq(ctx, msg, record.ReceiptHandle, "Failed after maximum retries", map[string]interface{}{"error": err.Error()})
			return true
		}
		if delErr := c.audit.Log(ctx, msg.ExecutionID, &msg.BatchID, store.EventFailed, map[string]interface{}{
			"error": err.Error(), "retry_count": retryCount, "will_retry": true,
		}); delErr != nil {
			c.log.WithError(delErr).Error("failed to write FAILED audit event")
		}
		c.log.WithError(err).WithField("batch_id", msg.BatchID).Error("failed to process batch")
		return false
	}

	if err := c.queue.Delete(ctx, record.ReceiptHandle); err != nil {
		c.log.WithError(err).Error("failed to delete completed message")
	}
	_ = c.audit.Log(ctx, msg.ExecutionID, &msg.BatchID, store.EventCompleted, nil)
	return true
}

func (c *Controller) dlq(ctx context.Context, msg *BatchMessage, receiptHandle, reason string, extra map[string]interface{}) {
	if err := c.store.MarkBatchAsDLQ(ctx, msg.BatchID, reason); err != nil {
		c.log.WithError(err).WithField("batch_id", msg.BatchID).Error("failed to mark batch as dlq")
	}
	details := map[string]interface{}{"reason": reason}
	for k, v := range extra {
		details[k] = v
	}
	_ = c.audit.Log(ctx, msg.ExecutionID, &msg.BatchID, store.EventDLQSent, details)
	if err := c.queue.Delete(ctx, receiptHandle); err != nil {
		c.log.WithError(err).Error("failed to delete dlq'd message")
	}
}

// handleFutureBatch enforces "never process before the scheduled time",
// extending visibility iteratively when the delay exceeds the queue's
// 12-hour ceiling.
func (c *Controller) handleFutureBatch(ctx context.Context, receiptHandle, scheduledFor string, msg *BatchMessage) (deferred bool, err error) {
	scheduledTime, err := time.Parse(time.RFC3339, scheduledFor)
	if err != nil {
		return false, fmt.Errorf("dispatch: parse scheduled_for: %w", err)
	}

	now := time.Now().UTC()
	if !scheduledTime.After(now) {
		return false, nil
	}

	delaySeconds := int64(scheduledTime.Sub(now).Seconds())
	visibilityTimeout := delaySeconds
	if visibilityTimeout > queue.MaxVisibilitySeconds {
		visibilityTimeout = queue.MaxVisibilitySeconds
	}
	if visibilityTimeout <= 0 {
		return false, nil
	}

	if err := c.queue.ChangeVisibility(ctx, receiptHandle, int32(visibilityTimeout)); err != nil {
		return false, fmt.Errorf("dispatch: change visibility for future batch: %w", err)
	}

	_ = c.audit.Log(ctx, msg.ExecutionID, &msg.BatchID, store.EventDeferred, map[string]interface{}{
		"delay_seconds": visibilityTimeout,
		"scheduled_for": scheduledFor,
	})
	return true, nil
}
