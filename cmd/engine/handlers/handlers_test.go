package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/cmd/engine/executor"
	"github.com/flowgrid/flowgrid/common/crypto"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
	"github.com/flowgrid/flowgrid/common/progress"
	"github.com/flowgrid/flowgrid/common/queue"
	"github.com/flowgrid/flowgrid/common/store"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func newContext(e *echo.Echo, method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func seedWorkflow(t *testing.T, st store.Store) *models.Workflow {
	t.Helper()
	wf := &models.Workflow{
		Name: "order pipeline",
		Nodes: []models.Node{
			{ID: "A", Type: models.NodeTypeWebhook, Data: map[string]any{}},
		},
		Edges: []models.Edge{},
	}
	require.NoError(t, st.CreateWorkflow(context.Background(), wf))
	return wf
}

func TestCreateWorkflowRejectsMissingName(t *testing.T) {
	e := echo.New()
	h := NewWorkflowHandler(store.NewMemoryStore(), queue.NewMemoryQueue(8, testLogger()), testLogger())

	c, _ := newContext(e, http.MethodPost, "/api/workflows", `{"nodes":[],"edges":[]}`)
	err := h.CreateWorkflow(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestWorkflowCRUDRoundTrip(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	h := NewWorkflowHandler(st, queue.NewMemoryQueue(8, testLogger()), testLogger())

	c, rec := newContext(e, http.MethodPost, "/api/workflows",
		`{"name":"wf","nodes":[{"id":"A","type":"webhook","data":{}}],"edges":[]}`)
	require.NoError(t, h.CreateWorkflow(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	c, rec = newContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.GetWorkflow(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newContext(e, http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.DeleteWorkflow(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, _ = newContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("1")
	err := h.GetWorkflow(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestPatchWorkflowMergesFields(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	h := NewWorkflowHandler(st, queue.NewMemoryQueue(8, testLogger()), testLogger())
	wf := seedWorkflow(t, st)

	c, rec := newContext(e, http.MethodPatch, "/", `{"name":"renamed"}`)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.PatchWorkflow(c))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	// Untouched fields survive the merge
	assert.Len(t, updated.Nodes, 1)
}

func TestExecuteWorkflowEnqueuesRunRequest(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	q := queue.NewMemoryQueue(8, testLogger())
	h := NewWorkflowHandler(st, q, testLogger())
	wf := seedWorkflow(t, st)

	received := make(chan executor.RunRequest, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Subscribe(ctx, executor.RunRequestTopic, func(ctx context.Context, key string, value []byte) error {
		var req executor.RunRequest
		if err := json.Unmarshal(value, &req); err != nil {
			return err
		}
		received <- req
		return nil
	}))

	c, rec := newContext(e, http.MethodPost, "/", `{"triggerData":{"orderId":42}}`)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.ExecuteWorkflow(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["executionId"])

	select {
	case req := <-received:
		assert.Equal(t, resp["executionId"], req.ExecutionID)
		assert.Equal(t, wf.ID, req.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("run request never reached the queue")
	}

	exec, err := st.GetExecution(context.Background(), resp["executionId"])
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPending, exec.Status)
}

func TestExecuteWorkflowQueueFullFailsExecution(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	q := queue.NewMemoryQueue(1, testLogger())
	h := NewWorkflowHandler(st, q, testLogger())
	seedWorkflow(t, st)

	// Fill the single-slot topic so the next enqueue is rejected
	require.NoError(t, q.Publish(context.Background(), executor.RunRequestTopic, "k", []byte("{}")))

	c, _ := newContext(e, http.MethodPost, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("1")
	err := h.ExecuteWorkflow(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)

	// The created row was driven to failed, not left pending
	executions, listErr := st.ListExecutions(context.Background(), 1, 0)
	require.NoError(t, listErr)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionFailed, executions[0].Status)
	require.NotNil(t, executions[0].Error)
	assert.Contains(t, *executions[0].Error, "queue full")
}

func TestExecuteWorkflowUnknownID(t *testing.T) {
	e := echo.New()
	h := NewWorkflowHandler(store.NewMemoryStore(), queue.NewMemoryQueue(8, testLogger()), testLogger())

	c, _ := newContext(e, http.MethodPost, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("99")
	err := h.ExecuteWorkflow(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestCreateCredentialEncryptsData(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	cs, err := crypto.New("", testLogger())
	require.NoError(t, err)
	h := NewCredentialHandler(st, cs, testLogger())

	c, rec := newContext(e, http.MethodPost, "/api/credentials",
		`{"name":"db","type":"postgres","data":{"connectionString":"postgres://secret"}}`)
	require.NoError(t, h.CreateCredential(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// The response never carries the secret
	assert.NotContains(t, rec.Body.String(), "secret")

	var created models.Credential
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	stored, err := st.GetCredential(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Data, "postgres://secret")

	decrypted, err := cs.Decrypt(stored.Data, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"connectionString": "postgres://secret"}, decrypted)
}

func TestListCredentialsFiltersByType(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	cs, err := crypto.New("", testLogger())
	require.NoError(t, err)
	h := NewCredentialHandler(st, cs, testLogger())

	for _, payload := range []string{
		`{"name":"a","type":"postgres","data":"x"}`,
		`{"name":"b","type":"gmail-oauth","data":"y"}`,
	} {
		c, rec := newContext(e, http.MethodPost, "/api/credentials", payload)
		require.NoError(t, h.CreateCredential(c))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	c, rec := newContext(e, http.MethodGet, "/api/credentials?type=postgres", "")
	require.NoError(t, h.ListCredentials(c))

	var listed []models.Credential
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "a", listed[0].Name)
}

func TestStreamExecutionReplaysTerminalState(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	bus := progress.NewBus(testLogger())
	h := NewExecutionHandler(st, bus, testLogger())

	now := time.Now()
	errMsg := "node B failed"
	require.NoError(t, st.CreateExecution(context.Background(), &models.Execution{
		ID:         "exec-1",
		WorkflowID: 1,
		Status:     models.ExecutionFailed,
		StartedAt:  now,
		FinishedAt: &now,
		Error:      &errMsg,
	}))

	c, rec := newContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("exec-1")
	require.NoError(t, h.StreamExecution(c))

	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "), "expected SSE frame, got %q", body)

	var snapshot models.ExecutionProgress
	frame := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	require.NoError(t, json.Unmarshal([]byte(frame), &snapshot))
	assert.Equal(t, models.ExecutionFailed, snapshot.Status)
	assert.Equal(t, errMsg, snapshot.Error)

	// Terminal replay closes the stream and releases the subscription
	assert.Equal(t, 0, bus.SubscriberCount("exec-1"))
}

func TestStreamExecutionDeliversLiveSnapshots(t *testing.T) {
	e := echo.New()
	st := store.NewMemoryStore()
	bus := progress.NewBus(testLogger())
	h := NewExecutionHandler(st, bus, testLogger())

	require.NoError(t, st.CreateExecution(context.Background(), &models.Execution{
		ID:         "exec-2",
		WorkflowID: 1,
		Status:     models.ExecutionRunning,
		StartedAt:  time.Now(),
	}))

	c, rec := newContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("exec-2")

	done := make(chan error, 1)
	go func() {
		done <- h.StreamExecution(c)
	}()

	// Wait for the handler to register its subscription before emitting
	require.Eventually(t, func() bool {
		return bus.SubscriberCount("exec-2") == 1
	}, time.Second, 5*time.Millisecond)

	bus.Emit(context.Background(), &models.ExecutionProgress{
		ExecutionID: "exec-2",
		WorkflowID:  1,
		Status:      models.ExecutionRunning,
		Nodes:       []models.NodeProgress{{NodeID: "A", Status: models.NodeRunning}},
	})
	bus.Emit(context.Background(), &models.ExecutionProgress{
		ExecutionID: "exec-2",
		WorkflowID:  1,
		Status:      models.ExecutionCompleted,
		Nodes:       []models.NodeProgress{{NodeID: "A", Status: models.NodeSuccess}},
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream never closed after terminal snapshot")
	}

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 3) // replay + running + completed

	var last models.ExecutionProgress
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[2], "data: ")), &last))
	assert.Equal(t, models.ExecutionCompleted, last.Status)
}

func TestListExecutionsRequiresWorkflowID(t *testing.T) {
	e := echo.New()
	h := NewExecutionHandler(store.NewMemoryStore(), progress.NewBus(testLogger()), testLogger())

	c, _ := newContext(e, http.MethodGet, "/api/executions", "")
	err := h.ListExecutions(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
