package sink

import (
	"sync"

	"lyra/lyraerr"
)

// Memory is an in-memory Sink double for tests: it records every sample
// buffer written and can simulate Start/Close failures.
type Memory struct {
	mu       sync.Mutex
	state    State
	written  [][]float32
	failNext map[string]bool
}

// NewMemory constructs a Memory sink in the Closed state.
func NewMemory() *Memory {
	return &Memory{state: Closed, failNext: map[string]bool{}}
}

// FailNextStart/FailNextClose arm a one-shot failure for the named
// transition, for exercising the lifecycle's error paths.
func (m *Memory) FailNextStart() { m.arm("start") }
func (m *Memory) FailNextClose() { m.arm("close") }

func (m *Memory) arm(name string) {
	m.mu.Lock()
	m.failNext[name] = true
	m.mu.Unlock()
}

func (m *Memory) consume(name string) bool {
	if m.failNext[name] {
		m.failNext[name] = false
		return true
	}
	return false
}

func (m *Memory) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consume("start") {
		return lyraerr.New(lyraerr.Unavailable, "simulated start failure")
	}
	m.state = Running
	return nil
}

func (m *Memory) Write(samples []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Running {
		return lyraerr.New(lyraerr.FailedPrecondition, "sink is not running")
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	m.written = append(m.written, cp)
	return nil
}

func (m *Memory) CloseTemporarily() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consume("close") {
		return lyraerr.New(lyraerr.Unavailable, "simulated stop failure")
	}
	m.state = TemporarilyClosed
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consume("close") {
		return lyraerr.New(lyraerr.Unavailable, "simulated stop failure")
	}
	m.state = Closed
	return nil
}

// State reports the sink's current lifecycle state.
func (m *Memory) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Written returns all sample buffers written so far.
func (m *Memory) Written() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]float32, len(m.written))
	copy(out, m.written)
	return out
}
