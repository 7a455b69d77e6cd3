package engine

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// MPD implements API on top of an MPD server via gompd. MPD carries the
// queue and the transport; this type adds reconnection, a sidecar of track
// metadata keyed by stream URL (MPD only remembers the URL for remote
// streams), and translation of MPD idle events into engine Events.
type MPD struct {
	mu       sync.RWMutex
	client   *mpd.Client
	watcher  *mpd.Watcher
	host     string
	port     int
	password string

	// metadata for tracks we enqueued, keyed by stream URL
	known map[string]Track

	events chan Event

	// last observed player state, for queue-ended detection
	lastState  string
	lastSongID string
}

// NewMPD creates an MPD-backed engine. Setup must be called before use.
func NewMPD(host string, port int, password string) *MPD {
	return &MPD{
		host:     host,
		port:     port,
		password: password,
		known:    make(map[string]Track),
		events:   make(chan Event, 16),
	}
}

// Setup connects to MPD and starts the idle watcher.
func (e *MPD) Setup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return ErrAlreadyInitialized
	}
	if err := e.connectLocked(); err != nil {
		return err
	}
	return e.startWatcherLocked()
}

// UpdateOptions records the fixed engine configuration. MPD has no notion of
// lock-screen capabilities or app-kill behavior; the options matter for
// OS-backed engines and are logged here for parity.
func (e *MPD) UpdateOptions(opts Options) error {
	log.Debug().
		Int("capabilities", len(opts.Capabilities)).
		Str("kill_behavior", string(opts.KillBehavior)).
		Msg("Engine options applied")
	return nil
}

// connectLocked establishes the control connection (must hold lock).
func (e *MPD) connectLocked() error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if e.password != "" {
		if err := client.Command("password %s", e.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	e.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnected checks the connection and reconnects if needed.
func (e *MPD) ensureConnected() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return e.connectLocked()
	}

	if err := e.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		e.client.Close()
		e.client = nil
		return e.connectLocked()
	}

	return nil
}

// startWatcherLocked starts the idle watcher feeding the event channel.
func (e *MPD) startWatcherLocked() error {
	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	watcher, err := mpd.NewWatcher("tcp", addr, e.password, "player")
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	e.watcher = watcher

	go func() {
		defer close(e.events)
		for {
			select {
			case subsystem, ok := <-watcher.Event:
				if !ok {
					return
				}
				if subsystem == "player" {
					e.emitPlayerChange()
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("MPD watcher error")
				time.Sleep(time.Second)
			}
		}
	}()

	return nil
}

// emitPlayerChange inspects the new player state and emits the matching
// engine event. Queue exhaustion shows up as a stop with no current song
// index right after a play.
func (e *MPD) emitPlayerChange() {
	status, err := e.status()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read MPD status")
		return
	}

	state := status["state"]

	e.mu.Lock()
	prevState := e.lastState
	e.lastState = state
	e.mu.Unlock()

	if state == "stop" {
		if prevState == "play" && status["song"] == "" {
			e.send(Event{Kind: EventQueueEnded, Index: -1})
		}
		return
	}

	song, err := e.currentSong()
	if err != nil || song["file"] == "" {
		return
	}

	e.mu.Lock()
	changed := song["Id"] != e.lastSongID
	e.lastSongID = song["Id"]
	e.mu.Unlock()

	if !changed {
		return
	}

	track := e.trackFromAttrs(song)
	index := -1
	if pos, err := strconv.Atoi(status["song"]); err == nil {
		index = pos
	}
	e.send(Event{Kind: EventActiveTrackChanged, Track: &track, Index: index})
}

// send drops the event if nobody is draining the channel fast enough rather
// than stalling the watcher goroutine.
func (e *MPD) send(ev Event) {
	select {
	case e.events <- ev:
	default:
		log.Warn().Int("kind", int(ev.Kind)).Msg("Engine event dropped, channel full")
	}
}

func (e *MPD) status() (mpd.Attrs, error) {
	if err := e.ensureConnected(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Status()
}

func (e *MPD) currentSong() (mpd.Attrs, error) {
	if err := e.ensureConnected(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.CurrentSong()
}

// trackFromAttrs rebuilds a Track from MPD song attrs, preferring the
// metadata recorded at enqueue time.
func (e *MPD) trackFromAttrs(attrs mpd.Attrs) Track {
	url := attrs["file"]

	e.mu.RLock()
	known, ok := e.known[url]
	e.mu.RUnlock()
	if ok {
		return known
	}

	return Track{
		ID:     url,
		URL:    url,
		Title:  attrs["Title"],
		Artist: attrs["Artist"],
	}
}

// Reset clears the MPD queue and the metadata sidecar.
func (e *MPD) Reset() error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.Lock()
	e.known = make(map[string]Track)
	e.mu.Unlock()

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Clear()
}

// Add appends tracks to the MPD queue and records their metadata.
func (e *MPD) Add(tracks ...Track) error {
	if err := e.ensureConnected(); err != nil {
		return err
	}

	e.mu.Lock()
	for _, t := range tracks {
		e.known[t.URL] = t
	}
	e.mu.Unlock()

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, t := range tracks {
		if err := e.client.Add(t.URL); err != nil {
			return fmt.Errorf("failed to add %s: %w", t.ID, err)
		}
	}
	return nil
}

// Play starts or resumes playback of the current queue position.
func (e *MPD) Play() error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Play(-1)
}

// Pause pauses playback.
func (e *MPD) Pause() error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Pause(true)
}

// Stop stops playback.
func (e *MPD) Stop() error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Stop()
}

// Skip jumps to the given queue index.
func (e *MPD) Skip(index int) error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Play(index)
}

// SkipToNext advances to the next queue entry.
func (e *MPD) SkipToNext() error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Next()
}

// SkipToPrevious moves to the previous queue entry.
func (e *MPD) SkipToPrevious() error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client.Previous()
}

// SeekTo seeks within the current track (seconds).
func (e *MPD) SeekTo(seconds float64) error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	status, err := e.client.Status()
	if err != nil {
		return err
	}
	songPos, err := strconv.Atoi(status["song"])
	if err != nil {
		return fmt.Errorf("no song playing")
	}
	return e.client.Seek(songPos, int(seconds))
}

// SetRepeatMode maps the engine repeat mode onto MPD's repeat/single pair.
func (e *MPD) SetRepeatMode(mode RepeatMode) error {
	if err := e.ensureConnected(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	repeat := mode != RepeatOff
	single := mode == RepeatTrack
	if err := e.client.Repeat(repeat); err != nil {
		return err
	}
	return e.client.Single(single)
}

// Queue returns the current MPD queue as engine tracks.
func (e *MPD) Queue() ([]Track, error) {
	if err := e.ensureConnected(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	playlist, err := e.client.PlaylistInfo(-1, -1)
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(playlist))
	for _, song := range playlist {
		tracks = append(tracks, e.trackFromAttrs(song))
	}
	return tracks, nil
}

// ActiveTrack returns the currently playing track, or nil when stopped.
func (e *MPD) ActiveTrack() (*Track, error) {
	song, err := e.currentSong()
	if err != nil {
		return nil, err
	}
	if song["file"] == "" {
		return nil, nil
	}
	track := e.trackFromAttrs(song)
	return &track, nil
}

// ActiveIndex returns the queue index of the active track, -1 when stopped.
func (e *MPD) ActiveIndex() (int, error) {
	status, err := e.status()
	if err != nil {
		return -1, err
	}
	pos, err := strconv.Atoi(status["song"])
	if err != nil {
		return -1, nil
	}
	return pos, nil
}

// State returns the transport state.
func (e *MPD) State() (TransportState, error) {
	status, err := e.status()
	if err != nil {
		return StateNone, err
	}
	switch status["state"] {
	case "play":
		return StatePlaying, nil
	case "pause":
		return StatePaused, nil
	case "stop":
		return StateStopped, nil
	default:
		return StateNone, nil
	}
}

// Progress returns the playhead position in milliseconds. MPD reports
// seconds with a decimal fraction.
func (e *MPD) Progress() (Progress, error) {
	status, err := e.status()
	if err != nil {
		return Progress{}, err
	}

	var p Progress
	if elapsed, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
		p.PositionMS = int64(elapsed * 1000)
	}
	if duration, err := strconv.ParseFloat(status["duration"], 64); err == nil {
		p.DurationMS = int64(duration * 1000)
	}
	return p, nil
}

// Events returns the engine notification stream.
func (e *MPD) Events() <-chan Event {
	return e.events
}

// Ping checks the control connection.
func (e *MPD) Ping() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.client == nil {
		return fmt.Errorf("not connected")
	}
	return e.client.Ping()
}

// Close shuts down the watcher and the control connection.
func (e *MPD) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.watcher != nil {
		e.watcher.Close()
		e.watcher = nil
	}
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}
