package eventbus

import "testing"

func TestFanOut(t *testing.T) {
	b := New[string](4)
	a := b.Subscribe()
	c := b.Subscribe()

	b.Emit("hello")

	if v := <-a; v != "hello" {
		t.Errorf("a got %q", v)
	}
	if v := <-c; v != "hello" {
		t.Errorf("c got %q", v)
	}
}

func TestDropOnSlowConsumer(t *testing.T) {
	b := New[int](1)
	ch := b.Subscribe()
	b.Emit(1)
	b.Emit(2) // channel still has 1 buffered; this should be dropped, not block

	if v := <-ch; v != 1 {
		t.Errorf("expected first event to survive, got %d", v)
	}
	select {
	case v := <-ch:
		t.Errorf("expected no second event, got %d", v)
	default:
	}
}

func TestPruneOnClosedReceiver(t *testing.T) {
	b := New[int](1)
	b.Subscribe()
	close(b.senders[0]) // the subscriber only holds a receive-only view

	b.Emit(1) // send on closed channel recovers and prunes
	if b.Len() != 0 {
		t.Errorf("expected subscriber pruned after close, Len=%d", b.Len())
	}
}
