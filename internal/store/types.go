package store

import "time"

// Execution statuses.
const (
	ExecutionPending   = "pending"
	ExecutionRunning   = "running"
	ExecutionPaused    = "paused"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Batch statuses.
const (
	BatchPending   = "pending"
	BatchCompleted = "completed"
	BatchDLQ       = "dlq"
)

// Recipient statuses.
const (
	RecipientPending    = "pending"
	RecipientSent       = "sent"
	RecipientFailed     = "failed"
	RecipientDelivered  = "delivered"
	RecipientOpened     = "opened"
	RecipientBounced    = "bounced"
	RecipientComplained = "complained"
)

// MaxRetries is the number of pickups a batch may suffer before it is
// routed to the dead-letter state.
const MaxRetries = 3

// Execution is a dispatch campaign.
type Execution struct {
	ID              string   `json:"id"`
	BusinessID      string   `json:"business_id"`
	Status          string   `json:"status"`
	EmailTemplateID *string  `json:"email_template_id"`
	AttachmentIDs   []string `json:"attachment_ids"`
	ExecutionMode   string   `json:"execution_mode"`
	CompletedAt     *string  `json:"completed_at,omitempty"`
}

// Batch is a shard of recipients for one execution.
type Batch struct {
	ID           string  `json:"id"`
	ExecutionID  string  `json:"execution_id"`
	ClientIDs    []string `json:"client_ids"`
	BatchNumber  int      `json:"batch_number"`
	TotalClients int      `json:"total_clients"`
	ScheduledFor *string  `json:"scheduled_for"`
	Status       string   `json:"status"`
	RetryCount   int      `json:"retry_count"`
	ErrorMessage *string  `json:"error_message"`
	DLQAt        *string  `json:"dlq_at"`
}

// Invoice is one line item of a recipient's outstanding balance, formatted
// through the Renderer's currency formatter before being handed to a
// template.
type Invoice struct {
	Description string  `json:"description"`
	AmountDue   float64 `json:"amount_due"`
}

// Recipient is one email target.
type Recipient struct {
	ID              string                 `json:"id"`
	ExecutionID     string                 `json:"execution_id"`
	Status          string                 `json:"status"`
	CustomData      map[string]interface{} `json:"custom_data"`
	Invoices        []Invoice              `json:"invoices,omitempty"`
	EmailTemplateID *string                `json:"email_template_id"`
	CustomerID      *string                `json:"customer_id"`
	ThresholdID     *string                `json:"threshold_id"`
}

// FullName returns the recipient's display name, falling back to the
// Spanish-language default "Cliente".
func (r Recipient) FullName() string {
	if v, ok := r.CustomData["full_name"].(string); ok && v != "" {
		return v
	}
	return "Cliente"
}

// TotalAmountDue sums every invoice's amount_due.
func (r Recipient) TotalAmountDue() float64 {
	var total float64
	for _, inv := range r.Invoices {
		total += inv.AmountDue
	}
	return total
}

// EmailTemplate is a stored subject/body pair.
type EmailTemplate struct {
	ID           string `json:"id"`
	Subject      string `json:"subject"`
	ContentHTML  string `json:"content_html"`
	ContentPlain string `json:"content_plain"`
}

// Content returns the HTML body if present, else the plain-text body, else
// the empty string.
func (t EmailTemplate) Content() string {
	if t.ContentHTML != "" {
		return t.ContentHTML
	}
	return t.ContentPlain
}

// Attachment is a stored file, fetched and materialised at dispatch time.
type Attachment struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StorageBucket string `json:"storage_bucket"`
	StoragePath   string `json:"storage_path"`
	FileType      string `json:"file_type"`
	Data          []byte `json:"-"`
}

// AuditEntry is an append-only lifecycle event.
type AuditEntry struct {
	ExecutionID string
	BatchID     *string
	WorkerID    string
	Event       string
	Details     map[string]interface{}
	CreatedAt   time.Time
}

// Audit event names. ENQUEUED is written by the upstream batch enqueuer;
// the rest are emitted on the dispatch path.
const (
	EventEnqueued   = "ENQUEUED"
	EventDeferred   = "DEFERRED"
	EventPickedUp   = "PICKED_UP"
	EventProcessing = "PROCESSING"
	EventCompleted  = "COMPLETED"
	EventFailed     = "FAILED"
	EventDLQSent    = "DLQ_SENT"
)
