package sandbox

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/flowgrid/flowgrid/common/config"
	"github.com/flowgrid/flowgrid/common/logger"
)

func testSandbox(timeout time.Duration, allowlist ...string) *Sandbox {
	return New(config.SandboxConfig{
		Timeout:      timeout,
		EnvAllowlist: allowlist,
	}, logger.New("error", "text"))
}

func TestRun_ReturnValue(t *testing.T) {
	s := testSandbox(5 * time.Second)

	got, err := s.Run(context.Background(), "B", "return {v: 42}", nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := map[string]any{"v": int64(42)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestRun_ItemsAccess(t *testing.T) {
	s := testSandbox(5 * time.Second)

	items := []Item{
		{NodeID: "A", Output: map[string]any{"n": 3}},
		{NodeID: "X", Output: map[string]any{"n": 10}},
	}

	code := "return {v: items.find(i => i.nodeId === 'A').json.n * 2}"
	got, err := s.Run(context.Background(), "B", code, items, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", got)
	}
	if out["v"] != int64(6) {
		t.Errorf("got v=%v, want 6", out["v"])
	}
}

func TestRun_NodeData(t *testing.T) {
	s := testSandbox(5 * time.Second)

	nodeData := map[string]any{"label": "compute"}
	got, err := s.Run(context.Background(), "B", "return $node.label", nil, nodeData)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != "compute" {
		t.Errorf("got %v, want compute", got)
	}
}

func TestRun_EnvAllowlist(t *testing.T) {
	os.Setenv("SANDBOX_TEST_VISIBLE", "yes")
	os.Setenv("SANDBOX_TEST_HIDDEN", "no")
	defer os.Unsetenv("SANDBOX_TEST_VISIBLE")
	defer os.Unsetenv("SANDBOX_TEST_HIDDEN")

	s := testSandbox(5*time.Second, "SANDBOX_TEST_VISIBLE")

	got, err := s.Run(context.Background(), "B",
		"return {visible: $env.SANDBOX_TEST_VISIBLE, hidden: $env.SANDBOX_TEST_HIDDEN}", nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := got.(map[string]any)
	if out["visible"] != "yes" {
		t.Errorf("allowlisted var not visible: %v", out["visible"])
	}
	if out["hidden"] != nil {
		t.Errorf("non-allowlisted var leaked: %v", out["hidden"])
	}
}

func TestRun_AwaitResolvedPromise(t *testing.T) {
	s := testSandbox(5 * time.Second)

	got, err := s.Run(context.Background(), "B", "const v = await Promise.resolve(7); return {v}", nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := got.(map[string]any)
	if out["v"] != int64(7) {
		t.Errorf("got v=%v, want 7", out["v"])
	}
}

func TestRun_ThrowIsRuntimeError(t *testing.T) {
	s := testSandbox(5 * time.Second)

	_, err := s.Run(context.Background(), "B", `throw new Error("boom")`, nil, nil)

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if runtimeErr.Message == "" {
		t.Errorf("expected original message carried, got empty")
	}
}

func TestRun_SyntaxErrorIsRuntimeError(t *testing.T) {
	s := testSandbox(5 * time.Second)

	_, err := s.Run(context.Background(), "B", "return {", nil, nil)

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
}

func TestRun_InfiniteLoopTimesOut(t *testing.T) {
	s := testSandbox(200 * time.Millisecond)

	start := time.Now()
	_, err := s.Run(context.Background(), "B", "while (true) {}", nil, nil)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed > 3*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestRun_UnresolvablePromiseFails(t *testing.T) {
	s := testSandbox(5 * time.Second)

	_, err := s.Run(context.Background(), "B", "await new Promise(() => {}); return 1", nil, nil)

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected RuntimeError for pending promise, got %v", err)
	}
}

func TestRun_NoHostAccess(t *testing.T) {
	s := testSandbox(5 * time.Second)

	for _, code := range []string{
		"return typeof require",
		"return typeof process",
		"return typeof fetch",
	} {
		got, err := s.Run(context.Background(), "B", code, nil, nil)
		if err != nil {
			t.Fatalf("Run(%q) failed: %v", code, err)
		}
		if got != "undefined" {
			t.Errorf("Run(%q) = %v, want undefined", code, got)
		}
	}
}
