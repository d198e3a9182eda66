package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", 5*time.Second, 1), srv
}

func TestGetExecution(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/collection_executions", r.URL.Path)
		assert.Equal(t, "id=eq.exec-1&select=*", r.URL.RawQuery)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]Execution{{ID: "exec-1", BusinessID: "biz-1", Status: ExecutionPending}})
	})

	exec, err := gw.GetExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", exec.ID)
	assert.Equal(t, "biz-1", exec.BusinessID)
}

func TestGetExecutionNotFound(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Execution{})
	})

	_, err := gw.GetExecution(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetClientsByIDsEmpty(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not make a request for an empty id list")
	})

	rows, err := gw.GetClientsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestGetTemplateUsesSingleObjectAccept(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))
		json.NewEncoder(w).Encode(EmailTemplate{ID: "tmpl-1", ContentHTML: "<p>hi</p>"})
	})

	tmpl, err := gw.GetTemplate(context.Background(), "tmpl-1")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", tmpl.Content())
}

func TestGetBlacklistedEmailsLowercases(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]struct {
			Email string `json:"email"`
		}{{Email: "Foo@Example.com"}})
	})

	set, err := gw.GetBlacklistedEmails(context.Background(), "biz-1")
	require.NoError(t, err)
	_, ok := set["foo@example.com"]
	assert.True(t, ok)
}

func TestUpdateClientStatusSetsPreferMinimal(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sent", body["status"])
		w.WriteHeader(http.StatusNoContent)
	})

	err := gw.UpdateClientStatus(context.Background(), "client-1", "sent", nil)
	assert.NoError(t, err)
}

func TestUpdateExecutionStatusStampsCompletedAtOnlyOnCompletion(t *testing.T) {
	var bodies []map[string]interface{}
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, gw.UpdateExecutionStatus(context.Background(), "exec-1", ExecutionRunning))
	require.NoError(t, gw.UpdateExecutionStatus(context.Background(), "exec-1", ExecutionCompleted))

	_, hasCompletedAt := bodies[0]["completed_at"]
	assert.False(t, hasCompletedAt)
	_, hasCompletedAt = bodies[1]["completed_at"]
	assert.True(t, hasCompletedAt)
}

func TestIncrementBatchRetryCount(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/increment_batch_retry_count", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "batch-1", body["p_batch_id"])
		json.NewEncoder(w).Encode(2)
	})

	count, err := gw.IncrementBatchRetryCount(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMarkBatchAsDLQToleratesQueueRowFailure(t *testing.T) {
	calls := 0
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		// Non-retryable, so the retry client doesn't mask the count.
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"boom"}`))
	})

	err := gw.MarkBatchAsDLQ(context.Background(), "batch-1", "too many retries")
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGetEarliestPendingBatchTimeNone(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(nil)
	})

	ts, err := gw.GetEarliestPendingBatchTime(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestGetEarliestPendingBatchTimeParsesRFC3339(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode("2026-08-01T12:00:00Z")
	})

	ts, err := gw.GetEarliestPendingBatchTime(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, 2026, ts.Year())
}

func TestAcquireSchedulerLock(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/acquire_scheduler_lock", r.URL.Path)
		json.NewEncoder(w).Encode(true)
	})

	ok, err := gw.AcquireSchedulerLock(context.Background(), "worker-1", 300)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetBusinessNameOrDefaultFallsBackOnError(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"down"}`))
	})

	name := gw.GetBusinessNameOrDefault(context.Background(), "biz-1")
	assert.Equal(t, "APEX", name)
}

func TestFindClientByMessageIDNotFound(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]struct {
			ID          string `json:"id"`
			ExecutionID string `json:"execution_id"`
		}{})
	})

	_, _, found, err := gw.FindClientByMessageID(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRPCPostsOmitPreferMinimal(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Prefer"), "rpc calls need their response bodies")
		json.NewEncoder(w).Encode(true)
	})

	ok, err := gw.AcquireSchedulerLock(context.Background(), "worker-1", 300)
	require.NoError(t, err)
	assert.True(t, ok)
}
