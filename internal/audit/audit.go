// Package audit records append-only lifecycle events keyed by execution
// and, where applicable, batch. It is a thin typed wrapper over the Store
// Gateway's AppendAudit call rather than a standalone HTTP client, since
// the Store Gateway already owns the PostgREST wiring.
package audit

import (
	"context"
	"time"

	"github.com/ignite/collection-dispatcher/internal/store"
)

// Store is the subset of the Store Gateway the audit logger needs.
type Store interface {
	AppendAudit(ctx context.Context, entry store.AuditEntry) error
}

// Logger appends lifecycle events for one worker invocation. Failures are
// returned to the caller and are never fatal to the dispatch path — an
// audit write failure does not block the batch it describes.
type Logger struct {
	store    Store
	workerID string
}

// New constructs a Logger tagging every event with workerID.
func New(s Store, workerID string) *Logger {
	return &Logger{store: s, workerID: workerID}
}

// Log appends one event. batchID may be nil for execution-scoped events.
func (l *Logger) Log(ctx context.Context, executionID string, batchID *string, event string, details map[string]interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	return l.store.AppendAudit(ctx, store.AuditEntry{
		ExecutionID: executionID,
		BatchID:     batchID,
		WorkerID:    l.workerID,
		Event:       event,
		Details:     details,
		CreatedAt:   time.Now().UTC(),
	})
}
