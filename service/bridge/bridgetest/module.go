// Package bridgetest provides an in-memory bridge.Module for tests.
package bridgetest

import (
	"context"
	"sync"
)

type Call struct {
	Method string
	Args   []any
	Notify bool
	// Bounded is set when the caller's context carried a deadline.
	Bounded bool
}

// Module records every call and answers Call from Results and Errors keyed
// by method name.
type Module struct {
	mu      sync.Mutex
	calls   []Call
	Results map[string]any
	Errors  map[string]error
}

func NewModule() *Module {
	return &Module{
		Results: make(map[string]any),
		Errors:  make(map[string]error),
	}
}

func (m *Module) Call(ctx context.Context, method string, args ...any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, bounded := ctx.Deadline()
	m.calls = append(m.calls, Call{Method: method, Args: args, Bounded: bounded})
	if err := m.Errors[method]; err != nil {
		return nil, err
	}
	return m.Results[method], nil
}

func (m *Module) Notify(ctx context.Context, method string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, bounded := ctx.Deadline()
	m.calls = append(m.calls, Call{Method: method, Args: args, Notify: true, Bounded: bounded})
	return m.Errors[method]
}

func (m *Module) SetResult(method string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[method] = v
}

func (m *Module) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method] = err
}

func (m *Module) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsTo returns the recorded calls of one method in order.
func (m *Module) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}
