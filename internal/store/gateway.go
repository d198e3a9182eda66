// Package store is the Store Gateway: typed PostgREST-style
// access to the externally owned execution/batch/recipient/template store.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/collection-dispatcher/internal/pkg/httpretry"
)

// Gateway is the Store Gateway client. It speaks PostgREST-style REST+RPC
// over HTTPS, wrapped in a retry/backoff HTTP client.
type Gateway struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
	timeout    time.Duration
}

// New constructs a Gateway. maxRetries follows httpretry.NewRetryClient's
// convention (0 selects the default of 3).
func New(baseURL, apiKey string, timeout time.Duration, maxRetries int) *Gateway {
	return &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: timeout}, maxRetries),
		timeout:    timeout,
	}
}

func (g *Gateway) do(ctx context.Context, method, path string, body any, accept string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("store: marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("store: build request: %w", err)
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	// RPC responses carry the function result; only table writes take the
	// minimal-return preference.
	if (method == http.MethodPatch || method == http.MethodPost) && !strings.Contains(path, "/rpc/") {
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("store: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("store: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return data, resp.StatusCode, fmt.Errorf("store: %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}
	return data, resp.StatusCode, nil
}

// GetExecution loads one execution by id.
func (g *Gateway) GetExecution(ctx context.Context, id string) (*Execution, error) {
	path := fmt.Sprintf("/rest/v1/collection_executions?id=eq.%s&select=*", url.QueryEscape(id))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var rows []Execution
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("store: decode execution: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("store: execution %s not found", id)
	}
	return &rows[0], nil
}

// GetClientsByIDs loads recipients by an explicit id list. Returns an empty
// slice without a round trip when ids is empty.
func (g *Gateway) GetClientsByIDs(ctx context.Context, ids []string) ([]Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := fmt.Sprintf("/rest/v1/collection_clients?id=in.(%s)&select=*", inList(ids))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var rows []Recipient
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("store: decode clients: %w", err)
	}
	return rows, nil
}

// GetPendingClients loads every recipient of an execution still in pending
// status.
func (g *Gateway) GetPendingClients(ctx context.Context, executionID string) ([]Recipient, error) {
	path := fmt.Sprintf("/rest/v1/collection_clients?execution_id=eq.%s&status=eq.pending&select=*", url.QueryEscape(executionID))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var rows []Recipient
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("store: decode pending clients: %w", err)
	}
	return rows, nil
}

// GetAttachments loads attachment metadata by id and downloads each file's
// bytes from Supabase Storage. Returns an empty slice without a round trip
// when ids is empty.
func (g *Gateway) GetAttachments(ctx context.Context, ids []string) ([]Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := fmt.Sprintf("/rest/v1/collection_attachments?id=in.(%s)&select=*", inList(ids))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var rows []Attachment
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("store: decode attachments: %w", err)
	}
	for i := range rows {
		bytes, err := g.downloadObject(ctx, rows[i].StorageBucket, rows[i].StoragePath)
		if err != nil {
			return nil, fmt.Errorf("store: download attachment %s: %w", rows[i].ID, err)
		}
		rows[i].Data = bytes
	}
	return rows, nil
}

func (g *Gateway) downloadObject(ctx context.Context, bucket, path string) ([]byte, error) {
	objPath := fmt.Sprintf("/storage/v1/object/authenticated/%s/%s", bucket, path)
	data, _, err := g.do(ctx, http.MethodGet, objPath, nil, "")
	return data, err
}

// GetTemplate loads a template by id. Accept is set to the single-object
// PostgREST content type so the gateway returns a bare object, not an
// array.
func (g *Gateway) GetTemplate(ctx context.Context, id string) (*EmailTemplate, error) {
	path := fmt.Sprintf("/rest/v1/collection_templates?id=eq.%s&select=id,subject,content_html,content_plain", url.QueryEscape(id))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "application/vnd.pgrst.object+json")
	if err != nil {
		return nil, err
	}
	var tmpl EmailTemplate
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("store: decode template: %w", err)
	}
	return &tmpl, nil
}

// GetBlacklistedEmails loads every blacklisted address for a business as
// a lower-cased set; blacklist matching is case-insensitive.
func (g *Gateway) GetBlacklistedEmails(ctx context.Context, businessID string) (map[string]struct{}, error) {
	path := fmt.Sprintf("/rest/v1/email_blacklist?business_id=eq.%s&select=email", url.QueryEscape(businessID))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("store: decode blacklist: %w", err)
	}
	set := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		set[strings.ToLower(r.Email)] = struct{}{}
	}
	return set, nil
}

// GetCustomerEmail resolves a customer id to its email address, used as
// the fallback step of recipient email resolution.
func (g *Gateway) GetCustomerEmail(ctx context.Context, customerID string) (string, error) {
	path := fmt.Sprintf("/rest/v1/customers?id=eq.%s&select=email", url.QueryEscape(customerID))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "application/vnd.pgrst.object+json")
	if err != nil {
		return "", err
	}
	var row struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return "", fmt.Errorf("store: decode customer email: %w", err)
	}
	return row.Email, nil
}

// GetBusinessName resolves a business id to its display name, returning
// any lookup failure as an error. GetBusinessNameOrDefault wraps it with
// the "APEX" fallback.
func (g *Gateway) GetBusinessName(ctx context.Context, businessID string) (string, error) {
	path := fmt.Sprintf("/rest/v1/businesses?id=eq.%s&select=name", url.QueryEscape(businessID))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "application/vnd.pgrst.object+json")
	if err != nil {
		return "", err
	}
	var row struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return "", fmt.Errorf("store: decode business name: %w", err)
	}
	return row.Name, nil
}

// GetBusinessNameOrDefault is the best-effort variant used by the Batch
// Processor: any failure degrades to the default display name rather than
// aborting dispatch.
func (g *Gateway) GetBusinessNameOrDefault(ctx context.Context, businessID string) string {
	name, err := g.GetBusinessName(ctx, businessID)
	if err != nil || name == "" {
		return "APEX"
	}
	return name
}

// UpdateClientStatus updates a recipient's status and, when provided,
// sets its custom_data column to customData, replacing the stored value;
// no merge with the existing column happens here.
func (g *Gateway) UpdateClientStatus(ctx context.Context, id, status string, customData map[string]interface{}) error {
	body := map[string]interface{}{"status": status}
	if customData != nil {
		body["custom_data"] = customData
	}
	path := fmt.Sprintf("/rest/v1/collection_clients?id=eq.%s", url.QueryEscape(id))
	_, _, err := g.do(ctx, http.MethodPatch, path, body, "")
	return err
}

// UpdateBatchStatus updates a batch's status column.
func (g *Gateway) UpdateBatchStatus(ctx context.Context, id, status string) error {
	path := fmt.Sprintf("/rest/v1/execution_batches?id=eq.%s", url.QueryEscape(id))
	_, _, err := g.do(ctx, http.MethodPatch, path, map[string]interface{}{"status": status}, "")
	return err
}

// GetExecutionBatches loads every batch belonging to an execution, used by
// the completion check.
func (g *Gateway) GetExecutionBatches(ctx context.Context, executionID string) ([]Batch, error) {
	path := fmt.Sprintf("/rest/v1/execution_batches?execution_id=eq.%s&select=*", url.QueryEscape(executionID))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	var rows []Batch
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("store: decode batches: %w", err)
	}
	return rows, nil
}

// UpdateExecutionStatus updates an execution's status. completed_at is
// only stamped when the target status is "completed" — correcting the
// original source's always-stamp quirk.
func (g *Gateway) UpdateExecutionStatus(ctx context.Context, id, status string) error {
	body := map[string]interface{}{"status": status}
	if status == ExecutionCompleted {
		body["completed_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	path := fmt.Sprintf("/rest/v1/collection_executions?id=eq.%s", url.QueryEscape(id))
	_, _, err := g.do(ctx, http.MethodPatch, path, body, "")
	return err
}

// GetBatchRetryCount loads the persisted pickup count for a batch,
// defaulting to 0 if no row exists yet.
func (g *Gateway) GetBatchRetryCount(ctx context.Context, batchID string) (int, error) {
	path := fmt.Sprintf("/rest/v1/batch_queue_messages?batch_id=eq.%s&select=retry_count", url.QueryEscape(batchID))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return 0, err
	}
	var rows []struct {
		RetryCount int `json:"retry_count"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("store: decode retry count: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].RetryCount, nil
}

// IncrementBatchRetryCount atomically increments and returns a batch's
// pickup counter via a single store-side RPC, so two workers racing on the
// same redelivered message cannot both read a stale count.
func (g *Gateway) IncrementBatchRetryCount(ctx context.Context, batchID string) (int, error) {
	data, _, err := g.do(ctx, http.MethodPost, "/rest/v1/rpc/increment_batch_retry_count",
		map[string]interface{}{"p_batch_id": batchID}, "")
	if err != nil {
		return 0, err
	}
	var count int
	if err := json.Unmarshal(data, &count); err != nil {
		return 0, fmt.Errorf("store: decode incremented retry count: %w", err)
	}
	return count, nil
}

// MarkBatchAsDLQ marks a batch and its queue row as dead-lettered. Best
// effort on the queue-row half: the batch's own status is the
// authoritative record, so only the primary write's failure surfaces.
func (g *Gateway) MarkBatchAsDLQ(ctx context.Context, batchID, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	batchPath := fmt.Sprintf("/rest/v1/execution_batches?id=eq.%s", url.QueryEscape(batchID))
	_, _, err := g.do(ctx, http.MethodPatch, batchPath, map[string]interface{}{
		"status":        BatchDLQ,
		"error_message": errMsg,
	}, "")
	if err != nil {
		return err
	}

	queuePath := fmt.Sprintf("/rest/v1/batch_queue_messages?batch_id=eq.%s", url.QueryEscape(batchID))
	_, _, _ = g.do(ctx, http.MethodPatch, queuePath, map[string]interface{}{
		"status":        BatchDLQ,
		"error_message": errMsg,
		"dlq_at":        now,
	}, "")
	return nil
}

// GetEarliestPendingBatchTime returns the earliest scheduled_for time
// across every pending batch, or nil if none are pending.
func (g *Gateway) GetEarliestPendingBatchTime(ctx context.Context) (*time.Time, error) {
	data, _, err := g.do(ctx, http.MethodPost, "/rest/v1/rpc/get_earliest_pending_batch_time", map[string]interface{}{}, "")
	if err != nil {
		return nil, err
	}
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("store: decode earliest pending time: %w", err)
	}
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("store: parse earliest pending time: %w", err)
	}
	return &t, nil
}

// AcquireSchedulerLock attempts to acquire the named single-leader lease.
func (g *Gateway) AcquireSchedulerLock(ctx context.Context, workerID string, ttlSeconds int) (bool, error) {
	data, _, err := g.do(ctx, http.MethodPost, "/rest/v1/rpc/acquire_scheduler_lock", map[string]interface{}{
		"p_worker_id":    workerID,
		"p_ttl_seconds": ttlSeconds,
	}, "")
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(data, &ok); err != nil {
		return false, fmt.Errorf("store: decode acquire lock result: %w", err)
	}
	return ok, nil
}

// ReleaseSchedulerLock releases the lease if the caller is its recorded
// holder; idempotent otherwise.
func (g *Gateway) ReleaseSchedulerLock(ctx context.Context, workerID string) (bool, error) {
	data, _, err := g.do(ctx, http.MethodPost, "/rest/v1/rpc/release_scheduler_lock", map[string]interface{}{
		"p_worker_id": workerID,
	}, "")
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(data, &ok); err != nil {
		return false, fmt.Errorf("store: decode release lock result: %w", err)
	}
	return ok, nil
}

// AppendAudit writes one append-only audit row.
func (g *Gateway) AppendAudit(ctx context.Context, entry AuditEntry) error {
	body := map[string]interface{}{
		"execution_id": entry.ExecutionID,
		"batch_id":     entry.BatchID,
		"worker_id":    entry.WorkerID,
		"event":        entry.Event,
		"details":      entry.Details,
		"created_at":   entry.CreatedAt.UTC().Format(time.RFC3339),
	}
	_, _, err := g.do(ctx, http.MethodPost, "/rest/v1/execution_audit_logs", body, "")
	return err
}

// FindClientByMessageID resolves a provider message id back to the
// recipient and execution that sent it, used by the Delivery Event
// Reconciler.
func (g *Gateway) FindClientByMessageID(ctx context.Context, messageID string) (clientID, executionID string, found bool, err error) {
	path := fmt.Sprintf("/rest/v1/collection_clients?custom_data->>message_id=eq.%s&select=id,execution_id", url.QueryEscape(messageID))
	data, _, err := g.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return "", "", false, err
	}
	var rows []struct {
		ID          string `json:"id"`
		ExecutionID string `json:"execution_id"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", "", false, fmt.Errorf("store: decode client lookup: %w", err)
	}
	if len(rows) == 0 {
		return "", "", false, nil
	}
	return rows[0].ID, rows[0].ExecutionID, true, nil
}

// CreateDeliveryEvent records a provider delivery-notification event
// against a recipient.
func (g *Gateway) CreateDeliveryEvent(ctx context.Context, clientID, executionID, eventType string, metadata map[string]interface{}) error {
	body := map[string]interface{}{
		"client_id":    clientID,
		"execution_id": executionID,
		"event_type":   eventType,
		"event_data":   metadata,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	_, _, err := g.do(ctx, http.MethodPost, "/rest/v1/collection_events", body, "")
	return err
}

func inList(ids []string) string {
	return strings.Join(ids, ",")
}
