package socketio

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRapidStateTriggersCollapseToOne(t *testing.T) {
	var stateCalls int32
	var queueCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&stateCalls, 1) },
		func() { atomic.AddInt32(&queueCalls, 1) },
	)
	defer d.Stop()

	// A seek drag fires many state changes in quick succession.
	for i := 0; i < 10; i++ {
		d.TriggerState()
	}

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&stateCalls); got != 1 {
		t.Errorf("expected 1 state callback, got %d", got)
	}
	if got := atomic.LoadInt32(&queueCalls); got != 0 {
		t.Errorf("expected 0 queue callbacks, got %d", got)
	}
}

func TestDebouncerMixedTriggersWithinWindow(t *testing.T) {
	var stateCalls int32
	var queueCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&stateCalls, 1) },
		func() { atomic.AddInt32(&queueCalls, 1) },
	)
	defer d.Stop()

	d.TriggerState()
	d.TriggerQueue()
	d.TriggerState()
	d.TriggerQueue()

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&stateCalls); got != 1 {
		t.Errorf("expected 1 state callback for mixed triggers, got %d", got)
	}
	if got := atomic.LoadInt32(&queueCalls); got != 1 {
		t.Errorf("expected 1 queue callback for mixed triggers, got %d", got)
	}
}

func TestDebouncerSeparateWindowsFireIndependently(t *testing.T) {
	var stateCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&stateCalls, 1) },
		func() {},
	)
	defer d.Stop()

	d.TriggerState()
	time.Sleep(100 * time.Millisecond)

	d.TriggerState()
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&stateCalls); got != 2 {
		t.Errorf("expected 2 state callbacks for separate windows, got %d", got)
	}
}

func TestDebouncerStopPreventsCallbacks(t *testing.T) {
	var stateCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&stateCalls, 1) },
		func() {},
	)

	d.TriggerState()
	d.Stop()

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&stateCalls); got != 0 {
		t.Errorf("expected 0 state callbacks after stop, got %d", got)
	}
}

func TestDebouncerTriggerAfterStopIsIgnored(t *testing.T) {
	var stateCalls int32
	var queueCalls int32

	d := NewBroadcastDebouncer(50*time.Millisecond,
		func() { atomic.AddInt32(&stateCalls, 1) },
		func() { atomic.AddInt32(&queueCalls, 1) },
	)

	d.Stop()
	d.TriggerState()
	d.TriggerQueue()

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&stateCalls) + atomic.LoadInt32(&queueCalls); got != 0 {
		t.Errorf("expected no callbacks after stop, got %d", got)
	}
}
