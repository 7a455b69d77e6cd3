// Package engine wraps the persistent background audio engine behind a
// small imperative API plus an adapter that makes its use safe from the
// orchestration layer.
package engine

import "errors"

// ErrAlreadyInitialized is reported by Setup when the engine was brought up
// by another code path (for example a headless remote-control service).
// Callers treat it as success.
var ErrAlreadyInitialized = errors.New("engine has already been initialized")

// Track is a queue entry as the engine sees it.
type Track struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Artwork string `json:"artwork,omitempty"`
}

// TransportState is the engine's playback transport state.
type TransportState string

const (
	StateNone    TransportState = "none"
	StatePlaying TransportState = "playing"
	StatePaused  TransportState = "paused"
	StateStopped TransportState = "stopped"
)

// RepeatMode mirrors the engine's repeat setting.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatTrack
	RepeatQueue
)

// String returns the wire name of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatTrack:
		return "track"
	case RepeatQueue:
		return "queue"
	default:
		return "off"
	}
}

// Next cycles off -> track -> queue -> off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatTrack
	case RepeatTrack:
		return RepeatQueue
	default:
		return RepeatOff
	}
}

// Progress is the playhead position within the active track.
type Progress struct {
	PositionMS int64 `json:"positionMs"`
	DurationMS int64 `json:"durationMs"`
}

// Capability is a transport capability exposed on OS-level remote controls.
type Capability string

const (
	CapabilityPlay           Capability = "play"
	CapabilityPause          Capability = "pause"
	CapabilityStop           Capability = "stop"
	CapabilitySkipToNext     Capability = "skip-to-next"
	CapabilitySkipToPrevious Capability = "skip-to-previous"
	CapabilitySeekTo         Capability = "seek-to"
)

// KillBehavior controls what the engine does when the host app is killed.
type KillBehavior string

// KillStopAndRemoveNotification stops playback and removes any system
// notification when the app dies.
const KillStopAndRemoveNotification KillBehavior = "stop-playback-and-remove-notification"

// Options is the engine configuration applied once at initialization.
type Options struct {
	Capabilities []Capability
	KillBehavior KillBehavior
}

// EventKind discriminates engine events.
type EventKind int

const (
	// EventActiveTrackChanged fires when the engine's active track changes.
	EventActiveTrackChanged EventKind = iota
	// EventQueueEnded fires when playback runs off the end of the queue.
	EventQueueEnded
)

// Event is an engine-originated notification.
type Event struct {
	Kind  EventKind
	Track *Track // set for EventActiveTrackChanged
	Index int    // queue index of Track, -1 when unknown
}

// API is the imperative surface of the background audio engine. The engine
// outlives individual UI screens; exactly one instance exists per process.
type API interface {
	// Setup brings the engine up. It may return ErrAlreadyInitialized when
	// another code path already did.
	Setup() error
	// UpdateOptions applies the fixed transport capabilities and app-kill
	// behavior. Called once, right after a successful Setup.
	UpdateOptions(opts Options) error

	Reset() error
	Add(tracks ...Track) error
	Play() error
	Pause() error
	Stop() error
	Skip(index int) error
	SkipToNext() error
	SkipToPrevious() error
	SeekTo(seconds float64) error
	SetRepeatMode(mode RepeatMode) error

	Queue() ([]Track, error)
	ActiveTrack() (*Track, error)
	ActiveIndex() (int, error)
	State() (TransportState, error)
	Progress() (Progress, error)

	// Events returns the engine's notification stream. The channel is owned
	// by the engine and closed when it shuts down.
	Events() <-chan Event

	// Ping reports whether the engine is reachable.
	Ping() error
}
