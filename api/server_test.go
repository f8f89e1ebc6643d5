package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmehra7/gridflow/queue"
	"github.com/pmehra7/gridflow/store"
)

func testServer(st store.Store) *Server {
	cfg := DefaultConfig()
	cfg.SubmitRate = 1000
	cfg.SubmitBurst = 1000
	return NewServer(st, cfg)
}

func postSubmit(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitEnqueuesJob(t *testing.T) {
	st := store.NewMemoryStore()
	handler := testServer(st).Handler()

	rec := postSubmit(t, handler, `{"workload":"sleep","size":50,"iterations":1,"priority":"high","deadline_sec":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID := resp["job_id"]
	require.NotEmpty(t, jobID)

	status, ok, err := queue.GetStatus(context.Background(), st, jobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, queue.StateQueued, status.State)
	require.NotNil(t, status.Info)
	assert.Equal(t, 5, status.Info.DeadlineSec)
	assert.Equal(t, queue.PriorityHigh, status.Info.Priority)

	n, err := st.ListLen(context.Background(), store.QueueHigh)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmitDefaults(t *testing.T) {
	st := store.NewMemoryStore()
	handler := testServer(st).Handler()

	rec := postSubmit(t, handler, `{"workload":"sleep","size":50,"iterations":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	status, ok, err := queue.GetStatus(context.Background(), st, resp["job_id"])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, queue.PriorityMed, status.Info.Priority)
	assert.Equal(t, 10, status.Info.DeadlineSec, "missing deadline defaults to the configured SLO")
}

func TestSubmitValidation(t *testing.T) {
	st := store.NewMemoryStore()
	handler := testServer(st).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"unknown workload", `{"workload":"fft","size":10,"iterations":1}`},
		{"size zero", `{"workload":"sleep","size":0,"iterations":1}`},
		{"size too large", `{"workload":"sleep","size":9000,"iterations":1}`},
		{"iterations too large", `{"workload":"sleep","size":10,"iterations":9999}`},
		{"bad priority", `{"workload":"sleep","size":10,"iterations":1,"priority":"urgent"}`},
		{"zero deadline", `{"workload":"sleep","size":10,"iterations":1,"deadline_sec":0}`},
		{"not json", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postSubmit(t, handler, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// Nothing reached a queue.
	for _, key := range store.PriorityOrder {
		n, err := st.ListLen(context.Background(), key)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestStatusEndpoint(t *testing.T) {
	st := store.NewMemoryStore()
	handler := testServer(st).Handler()

	rec := postSubmit(t, handler, `{"workload":"sleep","size":50,"iterations":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/status/"+resp["job_id"], nil)
	out := httptest.NewRecorder()
	handler.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	var status queue.Status
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &status))
	assert.Equal(t, queue.StateQueued, status.State)

	req = httptest.NewRequest(http.MethodGet, "/status/job-missing", nil)
	out = httptest.NewRecorder()
	handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNotFound, out.Code)
}

func TestHealthz(t *testing.T) {
	handler := testServer(store.NewMemoryStore()).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestClusterSnapshot(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	handler := testServer(st).Handler()

	require.NoError(t, queue.Heartbeat(ctx, st, "w1", 1, 3, time.Minute))
	_, err := queue.Enqueue(ctx, st, &queue.Job{
		Workload: queue.WorkloadSleep, Size: 10, Iterations: 1,
		Priority: queue.PriorityHigh, DeadlineSec: 10,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/cluster", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap ClusterSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.QueueHigh)
	require.Len(t, snap.Workers, 1)
	assert.Equal(t, "w1", snap.Workers[0].ID)
	assert.True(t, snap.Workers[0].Live)
	assert.Equal(t, 1, snap.Workers[0].Inflight)
	assert.Equal(t, 3, snap.Workers[0].Completed)
}

func TestSubmitRateLimit(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.SubmitRate = 0.001
	cfg.SubmitBurst = 1
	handler := NewServer(st, cfg).Handler()

	first := postSubmit(t, handler, `{"workload":"sleep","size":10,"iterations":1}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postSubmit(t, handler, `{"workload":"sleep","size":10,"iterations":1}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}
