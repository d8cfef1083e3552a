package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowgrid/flowgrid/cmd/engine/resolver"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPRequestHandler executes http-request nodes. Non-2xx responses are
// not failures: the node succeeds and downstream nodes branch on `ok`.
type HTTPRequestHandler struct {
	resolver *resolver.Resolver
	client   *http.Client
	log      *logger.Logger
}

// NewHTTPRequestHandler creates an http-request handler
func NewHTTPRequestHandler(r *resolver.Resolver, timeout time.Duration, log *logger.Logger) *HTTPRequestHandler {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPRequestHandler{
		resolver: r,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Handle implements Handler
func (h *HTTPRequestHandler) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	data := h.resolver.ResolveMap(node.Data, execContext)

	url, _ := data["url"].(string)
	if url == "" {
		return nil, NewHandlerError(ConfigMissing, fmt.Sprintf("node %s: url is required", node.ID))
	}

	method := strings.ToUpper(stringOr(data["method"], http.MethodGet))

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		if raw, present := data["body"]; present && raw != nil {
			encoded, err := encodeBody(raw)
			if err != nil {
				return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: encode body: %s", node.ID, err))
			}
			body = strings.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: %s", node.ID, err))
	}

	req.Header.Set("Content-Type", "application/json")
	if headers, ok := data["headers"].(map[string]any); ok {
		for key, value := range headers {
			req.Header.Set(key, stringOr(value, ""))
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: request failed: %s", node.ID, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: read response: %s", node.ID, err))
	}

	var parsedBody any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &parsedBody); err != nil {
			// Malformed JSON from upstream falls back to raw text
			parsedBody = string(raw)
		}
	} else {
		parsedBody = string(raw)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       parsedBody,
		"ok":         resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}

func encodeBody(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func stringOr(value any, fallback string) string {
	if s, ok := value.(string); ok && s != "" {
		return s
	}
	return fallback
}
