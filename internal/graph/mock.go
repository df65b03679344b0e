package graph

import (
	"context"
	"sync"
	"time"

	"github.com/graphmill/graphload/internal/types"
)

// MockCall represents a recorded method call on the mock runner.
type MockCall struct {
	Method    string
	Cypher    string
	Params    map[string]any
	Timestamp time.Time
}

// MockRunner is a mock implementation of Runner for testing.
// It records every call for verification and supports scripted responses,
// including per-statement failure sequences for retry tests.
type MockRunner struct {
	mu sync.Mutex

	connected bool
	calls     []MockCall

	// Configurable responses
	connectErr error
	runErr     error
	writeErr   error
	runResult  Result

	// WriteFunc, when set, fully controls RunWrite responses.
	WriteFunc func(cypher string, params map[string]any) (Result, error)

	// ReadFunc, when set, fully controls Run responses.
	ReadFunc func(cypher string, params map[string]any) (Result, error)

	// failRemaining makes the next N write calls fail with failErr.
	failRemaining int
	failErr       error
}

// NewMockRunner creates a new mock runner for testing.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		calls: make([]MockCall, 0),
	}
}

// SetConnectError configures Connect to return err.
func (m *MockRunner) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// SetRunResult configures the result returned by Run and RunWrite.
func (m *MockRunner) SetRunResult(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runResult = result
}

// SetRunError configures Run to return err.
func (m *MockRunner) SetRunError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runErr = err
}

// SetWriteError configures RunWrite to return err on every call.
func (m *MockRunner) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailWritesTimes makes the next n RunWrite calls fail with err, after which
// writes succeed again. Used to simulate transient failures.
func (m *MockRunner) FailWritesTimes(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRemaining = n
	m.failErr = err
}

// Connect records the call and simulates connection.
func (m *MockRunner) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Connect", "", nil)
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

// Close records the call and marks the runner disconnected.
func (m *MockRunner) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Close", "", nil)
	m.connected = false
	return nil
}

// Health reports healthy while connected.
func (m *MockRunner) Health(ctx context.Context) types.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return types.Unhealthy("mock not connected")
	}
	return types.Healthy("mock runner")
}

// Run records the call and returns the scripted result.
func (m *MockRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("Run", cypher, params)
	if m.runErr != nil {
		return Result{}, m.runErr
	}
	if m.ReadFunc != nil {
		return m.ReadFunc(cypher, params)
	}
	return m.runResult, nil
}

// RunWrite records the call and returns the scripted result, honoring any
// configured failure sequence.
func (m *MockRunner) RunWrite(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record("RunWrite", cypher, params)

	if m.failRemaining > 0 {
		m.failRemaining--
		return Result{}, m.failErr
	}
	if m.writeErr != nil {
		return Result{}, m.writeErr
	}
	if m.WriteFunc != nil {
		return m.WriteFunc(cypher, params)
	}
	return m.runResult, nil
}

// InSession runs fn against the mock itself; the mock has no real sessions.
func (m *MockRunner) InSession(ctx context.Context, fn func(sr SessionRunner) error) error {
	return fn(mockSessionRunner{m: m, ctx: ctx})
}

type mockSessionRunner struct {
	m   *MockRunner
	ctx context.Context
}

func (s mockSessionRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return s.m.RunWrite(ctx, cypher, params)
}

// Calls returns a copy of all recorded calls.
func (m *MockRunner) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// WriteCalls returns only the recorded RunWrite calls.
func (m *MockRunner) WriteCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var writes []MockCall
	for _, c := range m.calls {
		if c.Method == "RunWrite" {
			writes = append(writes, c)
		}
	}
	return writes
}

// Reset clears recorded calls and scripted responses.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = m.calls[:0]
	m.connectErr = nil
	m.runErr = nil
	m.writeErr = nil
	m.runResult = Result{}
	m.WriteFunc = nil
	m.ReadFunc = nil
	m.failRemaining = 0
	m.failErr = nil
}

// record must be called with the mutex held.
func (m *MockRunner) record(method, cypher string, params map[string]any) {
	m.calls = append(m.calls, MockCall{
		Method:    method,
		Cypher:    cypher,
		Params:    params,
		Timestamp: time.Now(),
	})
}
