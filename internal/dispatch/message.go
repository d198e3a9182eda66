// Package dispatch holds the invocation controller and the batch
// processor: the top-level entry that routes queue-delivered and control
// events, and the per-batch send algorithm it drives.
package dispatch

import "encoding/json"

// BatchMessage is the queue-carried unit of work.
type BatchMessage struct {
	BatchID      string   `json:"batch_id"`
	ExecutionID  string   `json:"execution_id"`
	BusinessID   string   `json:"business_id"`
	BatchNumber  int      `json:"batch_number"`
	ClientIDs    []string `json:"client_ids"`
	TotalClients int      `json:"total_clients"`
	ScheduledFor *string  `json:"scheduled_for,omitempty"`
}

// ParseBatchMessage decodes a queue message body into a BatchMessage. A
// parse failure is not fatal to the invocation: the
// caller logs and leaves the message on the queue for redelivery.
func ParseBatchMessage(body string) (*BatchMessage, error) {
	var msg BatchMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// InvocationEvent is the top-level payload the worker's entry point
// receives: either a control action or a queue-delivered
// record set.
type InvocationEvent struct {
	Action  string          `json:"action,omitempty"`
	Records []RecordMessage `json:"Records,omitempty"`
}

// RecordMessage is one queue-delivered record inside an InvocationEvent.
type RecordMessage struct {
	MessageID     string `json:"messageId,omitempty"`
	ReceiptHandle string `json:"receiptHandle"`
	Body          string `json:"body"`
}

// InvocationResult is the worker's exit contract.
type InvocationResult struct {
	Status    string `json:"status"`
	WorkerID  string `json:"worker_id"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}
