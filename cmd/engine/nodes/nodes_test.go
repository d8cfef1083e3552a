package nodes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/cmd/engine/resolver"
	"github.com/flowgrid/flowgrid/cmd/engine/sandbox"
	"github.com/flowgrid/flowgrid/common/clients"
	"github.com/flowgrid/flowgrid/common/config"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func TestWebhookHandler_SeededTriggerData(t *testing.T) {
	h := NewWebhookHandler()

	trigger := map[string]any{"x": float64(1)}
	execContext := map[string]any{"A": trigger}

	out, err := h.Handle(context.Background(), models.Node{ID: "A", Type: models.NodeTypeWebhook}, execContext)
	require.NoError(t, err)
	assert.Equal(t, trigger, out)
}

func TestWebhookHandler_SyntheticStub(t *testing.T) {
	h := NewWebhookHandler()

	out, err := h.Handle(context.Background(), models.Node{ID: "A", Type: models.NodeTypeWebhook}, map[string]any{})
	require.NoError(t, err)

	stub, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, stub["received"])
	assert.NotEmpty(t, stub["timestamp"])
	assert.Equal(t, map[string]any{}, stub["body"])
	assert.Equal(t, map[string]any{}, stub["headers"])
	assert.Equal(t, map[string]any{}, stub["query"])
}

func TestHTTPRequestHandler_JSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"y":2}`))
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler(resolver.New(), 5*time.Second, testLogger())
	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeHTTPRequest,
		Data: map[string]any{"url": srv.URL},
	}

	out, err := h.Handle(context.Background(), node, map[string]any{})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, 200, result["statusCode"])
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, map[string]any{"y": float64(2)}, result["body"])
}

func TestHTTPRequestHandler_TemplateURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler(resolver.New(), 5*time.Second, testLogger())
	node := models.Node{
		ID:   "D",
		Type: models.NodeTypeHTTPRequest,
		Data: map[string]any{"url": srv.URL + "/{{B.v}}/{{C.v}}"},
	}
	execContext := map[string]any{
		"B": map[string]any{"v": float64(6)},
		"C": map[string]any{"v": float64(4)},
	}

	_, err := h.Handle(context.Background(), node, execContext)
	require.NoError(t, err)
	assert.Equal(t, "/6/4", gotPath)
}

func TestHTTPRequestHandler_PostBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler(resolver.New(), 5*time.Second, testLogger())
	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeHTTPRequest,
		Data: map[string]any{
			"url":    srv.URL,
			"method": "POST",
			"body":   map[string]any{"k": "v"},
		},
	}

	out, err := h.Handle(context.Background(), node, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"k": "v"}, gotBody)
	assert.Equal(t, 201, out.(map[string]any)["statusCode"])
}

func TestHTTPRequestHandler_Non2xxSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	h := NewHTTPRequestHandler(resolver.New(), 5*time.Second, testLogger())
	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeHTTPRequest,
		Data: map[string]any{"url": srv.URL},
	}

	out, err := h.Handle(context.Background(), node, map[string]any{})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, 500, result["statusCode"])
	assert.Equal(t, false, result["ok"])
	assert.Equal(t, "boom", result["body"])
}

func TestHTTPRequestHandler_NetworkErrorIsNodeIOError(t *testing.T) {
	h := NewHTTPRequestHandler(resolver.New(), 1*time.Second, testLogger())
	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeHTTPRequest,
		Data: map[string]any{"url": "http://127.0.0.1:1/unreachable"},
	}

	_, err := h.Handle(context.Background(), node, map[string]any{})
	require.Error(t, err)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, NodeIOError, handlerErr.Kind)
}

func TestCodeHandler_ItemsFromContext(t *testing.T) {
	s := sandbox.New(config.SandboxConfig{Timeout: 5 * time.Second}, testLogger())
	h := NewCodeHandler(s)

	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeCode,
		Data: map[string]any{"code": "return {v: items.find(i => i.nodeId === 'A').json.n * 2}"},
	}
	execContext := map[string]any{"A": map[string]any{"n": float64(3)}}

	out, err := h.Handle(context.Background(), node, execContext)
	require.NoError(t, err)
	assert.Equal(t, int64(6), out.(map[string]any)["v"])
}

func TestCodeHandler_ThrowIsCodeRuntimeError(t *testing.T) {
	s := sandbox.New(config.SandboxConfig{Timeout: 5 * time.Second}, testLogger())
	h := NewCodeHandler(s)

	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeCode,
		Data: map[string]any{"code": `throw new Error("bad input")`},
	}

	_, err := h.Handle(context.Background(), node, map[string]any{})
	require.Error(t, err)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, CodeRuntimeError, handlerErr.Kind)
	assert.Contains(t, handlerErr.Message, "bad input")
}

func TestCodeHandler_TimeoutIsCodeTimeout(t *testing.T) {
	s := sandbox.New(config.SandboxConfig{Timeout: 200 * time.Millisecond}, testLogger())
	h := NewCodeHandler(s)

	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeCode,
		Data: map[string]any{"code": "while (true) {}"},
	}

	_, err := h.Handle(context.Background(), node, map[string]any{})
	require.Error(t, err)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, CodeTimeout, handlerErr.Kind)
}

func TestAIChatHandler_Complete(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test-model","content":[{"type":"text","text":"hi there"}],"usage":{"input_tokens":5}}`))
	}))
	defer srv.Close()

	llm := clients.NewLLMClient(srv.URL, "key", "test-model", 5*time.Second, testLogger())
	h := NewAIChatHandler(resolver.New(), llm, true)

	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeAIChat,
		Data: map[string]any{"prompt": "say hi to {{A.name}}", "systemPrompt": "be brief"},
	}
	execContext := map[string]any{"A": map[string]any{"name": "ada"}}

	out, err := h.Handle(context.Background(), node, execContext)
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "hi there", result["text"])
	assert.Equal(t, "test-model", result["model"])

	assert.Equal(t, float64(2048), gotReq["max_tokens"])
	assert.Equal(t, "be brief", gotReq["system"])
	messages := gotReq["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "say hi to ada", messages[0].(map[string]any)["content"])
}

func TestAIChatHandler_MissingKeyIsConfigMissing(t *testing.T) {
	llm := clients.NewLLMClient("http://unused", "", "m", 5*time.Second, testLogger())
	h := NewAIChatHandler(resolver.New(), llm, false)

	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeAIChat,
		Data: map[string]any{"prompt": "hello"},
	}

	_, err := h.Handle(context.Background(), node, map[string]any{})
	require.Error(t, err)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, ConfigMissing, handlerErr.Kind)
}

func TestAIChatHandler_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate_limited"}`))
	}))
	defer srv.Close()

	llm := clients.NewLLMClient(srv.URL, "key", "m", 5*time.Second, testLogger())
	h := NewAIChatHandler(resolver.New(), llm, true)

	node := models.Node{
		ID:   "B",
		Type: models.NodeTypeAIChat,
		Data: map[string]any{"prompt": "hello"},
	}

	_, err := h.Handle(context.Background(), node, map[string]any{})
	require.Error(t, err)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, UpstreamError, handlerErr.Kind)
	assert.Contains(t, handlerErr.Message, "429")
	assert.Contains(t, handlerErr.Message, "rate_limited")
}

func TestFallbackHandler_EchoesData(t *testing.T) {
	h := NewFallbackHandler(testLogger())

	node := models.Node{
		ID:   "X",
		Type: "future-type",
		Data: map[string]any{"custom": "value"},
	}

	out, err := h.Handle(context.Background(), node, map[string]any{})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "value", result["custom"])
	assert.Equal(t, true, result["executed"])
	assert.Equal(t, "future-type", result["nodeType"])
}

func TestRegistry_DispatchAndFallback(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(models.NodeTypeWebhook, NewWebhookHandler())

	out, err := reg.Handle(context.Background(), models.Node{ID: "A", Type: models.NodeTypeWebhook}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out.(map[string]any)["received"])

	out, err = reg.Handle(context.Background(), models.Node{ID: "Z", Type: "unknown", Data: map[string]any{}}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out.(map[string]any)["executed"])
}
