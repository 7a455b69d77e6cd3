package socketio

import (
	"sync"
	"time"
)

// BroadcastDebouncer collapses rapid orchestrator change notifications
// into batched broadcasts. Multiple triggers within the window result in
// a single broadcast for each pending type (state and/or queue).
type BroadcastDebouncer struct {
	window        time.Duration
	stateCallback func()
	queueCallback func()

	mu           sync.Mutex
	pendingState bool
	pendingQueue bool
	timer        *time.Timer
	stopped      bool
}

// NewBroadcastDebouncer creates a debouncer with the given window.
// stateCallback fires for pending state pushes, queueCallback for
// pending queue pushes.
func NewBroadcastDebouncer(window time.Duration, stateCallback, queueCallback func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:        window,
		stateCallback: stateCallback,
		queueCallback: queueCallback,
	}
}

// TriggerState marks the playback state as dirty.
func (d *BroadcastDebouncer) TriggerState() {
	d.trigger(true, false)
}

// TriggerQueue marks the queue as dirty.
func (d *BroadcastDebouncer) TriggerQueue() {
	d.trigger(false, true)
}

func (d *BroadcastDebouncer) trigger(state, queue bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pendingState = d.pendingState || state
	d.pendingQueue = d.pendingQueue || queue

	// Restart the window on every trigger.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires callbacks for any pending flags and resets them.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	doState := d.pendingState
	doQueue := d.pendingQueue
	d.pendingState = false
	d.pendingQueue = false
	d.mu.Unlock()

	if doState && d.stateCallback != nil {
		d.stateCallback()
	}
	if doQueue && d.queueCallback != nil {
		d.queueCallback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingState = false
	d.pendingQueue = false
}
