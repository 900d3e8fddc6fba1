package sink

import "testing"

func TestMemoryLifecycleTransitions(t *testing.T) {
	m := NewMemory()
	if m.State() != Closed {
		t.Fatalf("initial state = %v, want Closed", m.State())
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.State() != Running {
		t.Fatalf("state after Start = %v, want Running", m.State())
	}
	if err := m.Write([]float32{0.1, -0.2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.Written(); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("Written = %v", got)
	}
	if err := m.CloseTemporarily(); err != nil {
		t.Fatalf("CloseTemporarily: %v", err)
	}
	if m.State() != TemporarilyClosed {
		t.Fatalf("state after CloseTemporarily = %v, want TemporarilyClosed", m.State())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.State() != Closed {
		t.Fatalf("state after Close = %v, want Closed", m.State())
	}
}

func TestMemoryWriteFailsWhenNotRunning(t *testing.T) {
	m := NewMemory()
	if err := m.Write([]float32{1}); err == nil {
		t.Fatal("expected error writing to non-running sink")
	}
}

func TestMemorySimulatedStartFailure(t *testing.T) {
	m := NewMemory()
	m.FailNextStart()
	if err := m.Start(); err == nil {
		t.Fatal("expected simulated start failure")
	}
	if m.State() != Closed {
		t.Fatalf("state after failed start = %v, want Closed", m.State())
	}
	if err := m.Start(); err != nil {
		t.Fatalf("second Start should succeed: %v", err)
	}
}

func TestMemorySimulatedCloseFailure(t *testing.T) {
	m := NewMemory()
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.FailNextClose()
	if err := m.Close(); err == nil {
		t.Fatal("expected simulated close failure")
	}
}
