package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dop251/goja"

	"github.com/flowgrid/flowgrid/common/config"
	"github.com/flowgrid/flowgrid/common/logger"
)

const (
	defaultTimeout = 30 * time.Second

	// failsafeGrace bounds the host-side wait beyond the VM interrupt,
	// in case the interrupt lands while the VM is inside a host call
	failsafeGrace = 5 * time.Second
)

// ErrTimeout indicates user code exceeded the wall-clock limit
var ErrTimeout = errors.New("sandbox: execution timed out")

// RuntimeError carries the message of a throwing script
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Item is one context entry exposed to user code
type Item struct {
	NodeID string
	Output any
}

// Sandbox runs user JavaScript in a fresh goja VM per invocation. Each
// VM sees only the injected globals: no filesystem, no network, no
// process state beyond the configured env allowlist.
type Sandbox struct {
	timeout      time.Duration
	envAllowlist []string
	log          *logger.Logger
}

// New creates a sandbox from config
func New(cfg config.SandboxConfig, log *logger.Logger) *Sandbox {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Sandbox{
		timeout:      timeout,
		envAllowlist: cfg.EnvAllowlist,
		log:          log,
	}
}

// Run executes user code wrapped in an async IIFE and returns the value
// the IIFE resolves to. The wrapper makes `await` and `return` legal at
// the top level of the submitted snippet.
func (s *Sandbox) Run(ctx context.Context, nodeID, code string, items []Item, nodeData map[string]any) (any, error) {
	vm := goja.New()

	if err := s.inject(vm, nodeID, items, nodeData); err != nil {
		return nil, fmt.Errorf("sandbox setup: %w", err)
	}

	wrapped := fmt.Sprintf("(async () => {\n%s\n})()", code)

	interrupt := time.AfterFunc(s.timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer interrupt.Stop()

	type runResult struct {
		value goja.Value
		err   error
	}
	done := make(chan runResult, 1)
	go func() {
		value, err := vm.RunString(wrapped)
		done <- runResult{value, err}
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
		return nil, ctx.Err()
	case <-time.After(s.timeout + failsafeGrace):
		// The interrupt did not take; abandon the VM goroutine
		s.log.Error("sandbox failsafe tripped", "node_id", nodeID)
		return nil, ErrTimeout
	}

	if res.err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(res.err, &interrupted) {
			return nil, ErrTimeout
		}
		var exception *goja.Exception
		if errors.As(res.err, &exception) {
			return nil, &RuntimeError{Message: exception.Value().String()}
		}
		return nil, &RuntimeError{Message: res.err.Error()}
	}

	// goja drains the microtask queue before RunString returns, so a
	// promise still pending here is awaiting something that can never
	// resolve inside the sandbox.
	promise, ok := res.value.Export().(*goja.Promise)
	if !ok {
		return res.value.Export(), nil
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return promise.Result().Export(), nil
	case goja.PromiseStateRejected:
		return nil, &RuntimeError{Message: promise.Result().String()}
	default:
		return nil, &RuntimeError{Message: "script awaited a value that never resolves"}
	}
}

// inject sets up the sandbox globals: items, $node, $env and console
func (s *Sandbox) inject(vm *goja.Runtime, nodeID string, items []Item, nodeData map[string]any) error {
	entries := make([]map[string]any, 0, len(items))
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NodeID < sorted[j].NodeID })
	for _, item := range sorted {
		entries = append(entries, map[string]any{
			"nodeId": item.NodeID,
			"json":   item.Output,
		})
	}
	if err := vm.Set("items", entries); err != nil {
		return err
	}

	if nodeData == nil {
		nodeData = map[string]any{}
	}
	if err := vm.Set("$node", nodeData); err != nil {
		return err
	}

	env := make(map[string]string, len(s.envAllowlist))
	for _, name := range s.envAllowlist {
		env[name] = os.Getenv(name)
	}
	if err := vm.Set("$env", env); err != nil {
		return err
	}

	return vm.Set("console", s.console(vm, nodeID))
}

func (s *Sandbox) console(vm *goja.Runtime, nodeID string) map[string]any {
	format := func(args []goja.Value) string {
		out := ""
		for i, arg := range args {
			if i > 0 {
				out += " "
			}
			out += fmt.Sprint(arg.Export())
		}
		return out
	}

	return map[string]any{
		"log": func(args ...goja.Value) {
			s.log.Info(fmt.Sprintf("[%s] %s", nodeID, format(args)))
		},
		"warn": func(args ...goja.Value) {
			s.log.Warn(fmt.Sprintf("[%s] %s", nodeID, format(args)))
		},
		"error": func(args ...goja.Value) {
			s.log.Error(fmt.Sprintf("[%s] %s", nodeID, format(args)))
		},
	}
}
