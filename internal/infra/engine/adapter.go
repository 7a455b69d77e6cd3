package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// initState tracks engine initialization explicitly so tests can reset it
// without a process restart.
type initState int

const (
	stateUninitialized initState = iota
	stateInitializing
	stateReady
)

// DefaultOptions is the fixed engine configuration: the full transport
// capability set on remote/lock-screen controls, and stop-and-remove-
// notification on app kill. Not runtime-tunable.
func DefaultOptions() Options {
	return Options{
		Capabilities: []Capability{
			CapabilityPlay,
			CapabilityPause,
			CapabilityStop,
			CapabilitySkipToNext,
			CapabilitySkipToPrevious,
			CapabilitySeekTo,
		},
		KillBehavior: KillStopAndRemoveNotification,
	}
}

// Snapshot is a point-in-time view of the engine's queue and transport.
type Snapshot struct {
	Queue       []Track
	ActiveIndex int
	State       TransportState
}

// Adapter mediates between the orchestration layer and the engine API.
// It owns initialization, wraps transport calls so engine failures are
// logged instead of crashing callers, and rebuilds the queue for the
// operations the engine has no primitive for.
type Adapter struct {
	api  API
	opts Options

	initMu sync.Mutex
	init   initState
}

// NewAdapter wraps the given engine API.
func NewAdapter(api API) *Adapter {
	return &Adapter{
		api:  api,
		opts: DefaultOptions(),
	}
}

// EnsureInitialized brings the engine up exactly once. Concurrent calls
// serialize on the init lock; every caller returns only after the engine is
// ready. An engine report of "already initialized" is treated as success,
// since a headless service may have started it first.
func (a *Adapter) EnsureInitialized() error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.init == stateReady {
		return nil
	}

	a.init = stateInitializing
	if err := a.api.Setup(); err != nil {
		if isAlreadyInitialized(err) {
			a.init = stateReady
			return nil
		}
		a.init = stateUninitialized
		return fmt.Errorf("engine setup: %w", err)
	}

	if err := a.api.UpdateOptions(a.opts); err != nil {
		// The engine is up; running without remote-control options beats
		// refusing to play at all.
		log.Warn().Err(err).Msg("Failed to apply engine options")
	}

	a.init = stateReady
	return nil
}

// ResetInitForTest returns the adapter to the uninitialized state.
func (a *Adapter) ResetInitForTest() {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	a.init = stateUninitialized
}

func isAlreadyInitialized(err error) bool {
	return errors.Is(err, ErrAlreadyInitialized) ||
		strings.Contains(err.Error(), "already been initialized")
}

// EnqueueAndPlay replaces the queue with the single given track and starts
// playback.
func (a *Adapter) EnqueueAndPlay(track Track) error {
	if err := a.api.Reset(); err != nil {
		return a.logged("reset", err)
	}
	if err := a.api.Add(track); err != nil {
		return a.logged("add", err)
	}
	if err := a.api.Play(); err != nil {
		return a.logged("play", err)
	}
	return nil
}

// Play resumes playback.
func (a *Adapter) Play() error { return a.logged("play", a.api.Play()) }

// Pause pauses playback.
func (a *Adapter) Pause() error { return a.logged("pause", a.api.Pause()) }

// Stop stops playback.
func (a *Adapter) Stop() error { return a.logged("stop", a.api.Stop()) }

// Next skips to the next queue entry.
func (a *Adapter) Next() error { return a.logged("next", a.api.SkipToNext()) }

// Previous skips to the previous queue entry.
func (a *Adapter) Previous() error { return a.logged("previous", a.api.SkipToPrevious()) }

// Skip jumps to the given queue index.
func (a *Adapter) Skip(index int) error { return a.logged("skip", a.api.Skip(index)) }

// SeekTo seeks within the active track (seconds).
func (a *Adapter) SeekTo(seconds float64) error { return a.logged("seek", a.api.SeekTo(seconds)) }

// SetRepeatMode applies the repeat mode on the engine.
func (a *Adapter) SetRepeatMode(mode RepeatMode) error {
	return a.logged("set repeat mode", a.api.SetRepeatMode(mode))
}

// Add appends tracks to the engine queue.
func (a *Adapter) Add(tracks ...Track) error { return a.logged("add", a.api.Add(tracks...)) }

// RemoveByID removes the track with the given id. The engine has no native
// remove-by-id, so the queue is rebuilt: filter out the target, reset, re-add
// the remainder. The rebuild is not atomic; a command landing between reset
// and re-add observes a transiently empty queue.
func (a *Adapter) RemoveByID(id string) error {
	queue, err := a.api.Queue()
	if err != nil {
		return a.logged("queue read", err)
	}

	remaining := make([]Track, 0, len(queue))
	found := false
	for _, t := range queue {
		if t.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, t)
	}
	if !found {
		return nil
	}

	if err := a.api.Reset(); err != nil {
		return a.logged("reset", err)
	}
	if len(remaining) == 0 {
		return nil
	}
	return a.logged("re-add", a.api.Add(remaining...))
}

// ReplaceQueue swaps the whole queue for the given order.
func (a *Adapter) ReplaceQueue(tracks []Track) error {
	if err := a.api.Reset(); err != nil {
		return a.logged("reset", err)
	}
	if len(tracks) == 0 {
		return nil
	}
	return a.logged("re-add", a.api.Add(tracks...))
}

// Queue returns the engine's current queue.
func (a *Adapter) Queue() ([]Track, error) {
	queue, err := a.api.Queue()
	if err != nil {
		return nil, a.logged("queue read", err)
	}
	return queue, nil
}

// ActiveTrack returns the engine's active track, nil when stopped.
func (a *Adapter) ActiveTrack() (*Track, error) {
	return a.api.ActiveTrack()
}

// State returns the transport state.
func (a *Adapter) State() (TransportState, error) {
	return a.api.State()
}

// Progress returns the playhead position.
func (a *Adapter) Progress() (Progress, error) {
	return a.api.Progress()
}

// GetSnapshot reads queue, active index, and transport state in one pass.
// Best effort: a partial read still returns what it got.
func (a *Adapter) GetSnapshot() Snapshot {
	snap := Snapshot{ActiveIndex: -1, State: StateNone}

	if queue, err := a.api.Queue(); err == nil {
		snap.Queue = queue
	} else {
		log.Warn().Err(err).Msg("Engine queue read failed")
	}
	if idx, err := a.api.ActiveIndex(); err == nil {
		snap.ActiveIndex = idx
	}
	if state, err := a.api.State(); err == nil {
		snap.State = state
	}
	return snap
}

// Events exposes the engine notification stream.
func (a *Adapter) Events() <-chan Event {
	return a.api.Events()
}

// Ping reports engine reachability.
func (a *Adapter) Ping() error {
	return a.api.Ping()
}

// logged records a failed engine call and passes the error through.
// Playback commands are best effort; callers decide whether to surface the
// error, but nothing here panics or crashes the player.
func (a *Adapter) logged(op string, err error) error {
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("Engine call failed")
	}
	return err
}
