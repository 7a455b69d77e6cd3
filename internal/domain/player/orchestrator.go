// Package player orchestrates playback: it mediates between UI commands,
// the background audio engine and the content catalog, owns the queue
// semantics, and refills the queue when playback runs off its end.
package player

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cadencefm/cadence-player-backend/internal/domain/catalog"
	"github.com/cadencefm/cadence-player-backend/internal/infra/engine"
)

// restartThresholdMS: Previous restarts the current track rather than
// skipping back when more of it than this has played.
const restartThresholdMS = 3000

// Catalog is the orchestrator's view of the content API.
type Catalog interface {
	Resolve(ctx context.Context, id string) (catalog.Track, error)
	SongsByGenre(ctx context.Context, slug string) ([]catalog.Track, error)
	SongsByCategory(ctx context.Context, slug string) ([]catalog.Track, error)
	RecordPlay(ctx context.Context, songID string) error
}

// History records tracks as they start playing.
type History interface {
	Add(track catalog.Track)
}

// Status is a snapshot of everything the UI renders.
type Status struct {
	CurrentTrack *catalog.Track        `json:"currentTrack"`
	Queue        []engine.Track        `json:"queue"`
	ActiveIndex  int                   `json:"activeIndex"`
	State        engine.TransportState `json:"state"`
	Progress     engine.Progress       `json:"progress"`
	RepeatMode   string                `json:"repeatMode"`
	Shuffled     bool                  `json:"shuffled"`
}

// Orchestrator owns playback control flow. All commands go through it;
// the engine reports back through its event channel, consumed by Run.
type Orchestrator struct {
	engine  *engine.Adapter
	catalog Catalog
	history History
	rng     *rand.Rand

	mu       sync.Mutex
	current  *catalog.Track
	known    map[string]catalog.Track // id -> resolved track, everything we ever enqueued
	repeat   engine.RepeatMode
	shuffled bool

	filling        bool   // an auto-fill is in flight
	lastAutoFilled string // terminal track id of the last auto-fill

	onChange func(Status)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithHistory records every track that starts playing.
func WithHistory(h History) OrchestratorOption {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithChangeListener is called after every state-affecting operation and
// engine event, with a fresh status snapshot.
func WithChangeListener(fn func(Status)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onChange = fn
	}
}

// SetChangeListener installs the change listener after construction,
// for wiring loops where the listener needs the orchestrator first.
// Call before Run starts.
func (o *Orchestrator) SetChangeListener(fn func(Status)) {
	o.onChange = fn
}

// WithRand fixes the shuffle randomness source.
func WithRand(rng *rand.Rand) OrchestratorOption {
	return func(o *Orchestrator) {
		o.rng = rng
	}
}

// NewOrchestrator creates the orchestrator.
func NewOrchestrator(eng *engine.Adapter, cat Catalog, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine:  eng,
		catalog: cat,
		known:   map[string]catalog.Track{},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run consumes engine events until ctx is cancelled. Exactly one Run
// loop should be active per orchestrator.
func (o *Orchestrator) Run(ctx context.Context) {
	events := o.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handleEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev engine.Event) {
	switch ev.Kind {
	case engine.EventActiveTrackChanged:
		o.onActiveTrackChanged(ctx, ev.Track)
	case engine.EventQueueEnded:
		o.onQueueEnded(ctx)
	}
	o.notifyChange()
}

func (o *Orchestrator) onActiveTrackChanged(ctx context.Context, t *engine.Track) {
	if t == nil {
		return
	}

	o.mu.Lock()
	track, ok := o.known[t.ID]
	if !ok {
		// The engine knows things we never enqueued (remote control), so
		// build a display track from what it reports.
		track = catalog.Track{
			ID:         t.ID,
			Title:      t.Title,
			Author:     t.Artist,
			ArtworkURI: t.Artwork,
			StreamURL:  t.URL,
		}
		if track.Title == "" {
			track.Title = catalog.FallbackTitle
		}
		if track.Author == "" {
			track.Author = catalog.FallbackAuthor
		}
		if track.ArtworkURI == "" {
			track.ArtworkURI = catalog.FallbackArtwork
		}
	}
	o.current = &track
	o.mu.Unlock()

	log.Info().Str("songId", track.ID).Str("title", track.Title).Msg("Active track changed")

	if o.history != nil {
		o.history.Add(track)
	}
	if catalog.IsDocumentID(track.ID) {
		if err := o.catalog.RecordPlay(ctx, track.ID); err != nil {
			log.Warn().Err(err).Str("songId", track.ID).Msg("Failed to record play")
		}
	}
}

// onQueueEnded kicks off an auto-fill with similar songs, unless repeat
// will restart the queue anyway.
func (o *Orchestrator) onQueueEnded(ctx context.Context) {
	o.mu.Lock()
	if o.repeat != engine.RepeatOff || o.filling || o.current == nil {
		o.mu.Unlock()
		return
	}
	terminal := *o.current
	if o.lastAutoFilled == terminal.ID {
		// Already filled off this track once; filling again would loop
		// on the same similar set forever.
		o.mu.Unlock()
		return
	}
	o.filling = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.filling = false
		o.mu.Unlock()
	}()

	if err := o.autoFill(ctx, terminal); err != nil {
		log.Warn().Err(err).Str("songId", terminal.ID).Msg("Auto-fill failed")
	}
}

func (o *Orchestrator) autoFill(ctx context.Context, terminal catalog.Track) error {
	// The terminal track may predate slug bookkeeping; re-resolve when it
	// carries no similarity key.
	if terminal.GenreSlug == "" && terminal.CategorySlug == "" && catalog.IsDocumentID(terminal.ID) {
		resolved, err := o.catalog.Resolve(ctx, terminal.ID)
		if err != nil {
			return err
		}
		terminal = resolved
	}

	candidates, err := o.similarTo(ctx, terminal)
	if err != nil {
		return err
	}

	queue, err := o.engine.Queue()
	if err != nil {
		return err
	}
	queued := make(map[string]bool, len(queue)+1)
	for _, t := range queue {
		queued[t.ID] = true
	}
	queued[terminal.ID] = true

	var fresh []engine.Track
	o.mu.Lock()
	for _, c := range candidates {
		if queued[c.ID] {
			continue
		}
		queued[c.ID] = true
		o.known[c.ID] = c
		fresh = append(fresh, engineTrack(c))
	}
	o.lastAutoFilled = terminal.ID
	o.mu.Unlock()

	if len(fresh) == 0 {
		log.Info().Str("songId", terminal.ID).Msg("No fresh similar songs, leaving queue ended")
		return nil
	}

	baseLen := len(queue)
	if err := o.engine.Add(fresh...); err != nil {
		return err
	}
	if err := o.engine.Skip(baseLen); err != nil {
		return err
	}
	if err := o.engine.Play(); err != nil {
		return err
	}

	log.Info().
		Str("songId", terminal.ID).
		Int("added", len(fresh)).
		Msg("Auto-filled queue with similar songs")
	return nil
}

// similarTo tries the terminal track's genre first, then its category.
func (o *Orchestrator) similarTo(ctx context.Context, terminal catalog.Track) ([]catalog.Track, error) {
	if terminal.GenreSlug != "" {
		tracks, err := o.catalog.SongsByGenre(ctx, terminal.GenreSlug)
		if err != nil {
			log.Warn().Err(err).Str("genre", terminal.GenreSlug).Msg("Genre lookup failed")
		} else if len(tracks) > 0 {
			return tracks, nil
		}
	}
	if terminal.CategorySlug != "" {
		return o.catalog.SongsByCategory(ctx, terminal.CategorySlug)
	}
	return nil, nil
}

// PlayByID resolves the song and replaces the queue with it.
func (o *Orchestrator) PlayByID(ctx context.Context, id string) error {
	if !catalog.IsDocumentID(id) {
		return catalog.ErrInvalidID
	}
	if err := o.engine.EnsureInitialized(); err != nil {
		return err
	}

	track, err := o.catalog.Resolve(ctx, id)
	if err != nil {
		return err
	}

	if err := o.engine.EnqueueAndPlay(engineTrack(track)); err != nil {
		return err
	}

	o.mu.Lock()
	o.known[track.ID] = track
	o.current = &track
	o.shuffled = false
	o.lastAutoFilled = ""
	o.mu.Unlock()

	o.notifyChange()
	return nil
}

// PlayPauseToggle flips between play and pause. With an empty queue it
// does nothing at all.
func (o *Orchestrator) PlayPauseToggle() error {
	snap := o.engine.GetSnapshot()
	if len(snap.Queue) == 0 {
		return nil
	}

	var err error
	if snap.State == engine.StatePlaying {
		err = o.engine.Pause()
	} else {
		err = o.engine.Play()
	}
	if err != nil {
		return err
	}
	o.notifyChange()
	return nil
}

// Next skips forward and keeps playing.
func (o *Orchestrator) Next() error {
	if err := o.engine.Next(); err != nil {
		return err
	}
	if err := o.engine.Play(); err != nil {
		return err
	}
	o.notifyChange()
	return nil
}

// Previous restarts the current track when it has played past the
// restart threshold, otherwise skips back. Both paths resume playback.
func (o *Orchestrator) Previous() error {
	progress, err := o.engine.Progress()
	if err != nil {
		return err
	}

	if progress.PositionMS > restartThresholdMS {
		if err := o.engine.SeekTo(0); err != nil {
			return err
		}
	} else {
		if err := o.engine.Previous(); err != nil {
			return err
		}
	}
	if err := o.engine.Play(); err != nil {
		return err
	}
	o.notifyChange()
	return nil
}

// AddToQueue appends a resolved track, skipping ids already queued.
func (o *Orchestrator) AddToQueue(track catalog.Track) error {
	queue, err := o.engine.Queue()
	if err != nil {
		return err
	}
	for _, t := range queue {
		if t.ID == track.ID {
			log.Debug().Str("songId", track.ID).Msg("Track already queued, skipping")
			return nil
		}
	}

	if err := o.engine.Add(engineTrack(track)); err != nil {
		return err
	}

	o.mu.Lock()
	o.known[track.ID] = track
	o.mu.Unlock()

	o.notifyChange()
	return nil
}

// AddToQueueByID resolves the song, then appends it.
func (o *Orchestrator) AddToQueueByID(ctx context.Context, id string) error {
	track, err := o.catalog.Resolve(ctx, id)
	if err != nil {
		return err
	}
	return o.AddToQueue(track)
}

// RemoveFromQueue removes the track with the given id.
func (o *Orchestrator) RemoveFromQueue(id string) error {
	if err := o.engine.RemoveByID(id); err != nil {
		return err
	}
	o.notifyChange()
	return nil
}

// ShuffleQueue reorders the queue randomly, keeping the active track
// first so playback is not interrupted.
func (o *Orchestrator) ShuffleQueue() error {
	snap := o.engine.GetSnapshot()
	if len(snap.Queue) < 2 {
		return nil
	}

	rest := make([]engine.Track, 0, len(snap.Queue))
	var head []engine.Track
	for i, t := range snap.Queue {
		if i == snap.ActiveIndex {
			head = append(head, t)
			continue
		}
		rest = append(rest, t)
	}

	o.mu.Lock()
	o.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	o.shuffled = true
	o.mu.Unlock()

	shuffledQueue := append(head, rest...)
	if err := o.engine.ReplaceQueue(shuffledQueue); err != nil {
		return err
	}
	if snap.State == engine.StatePlaying {
		if err := o.engine.Play(); err != nil {
			return err
		}
	}
	o.notifyChange()
	return nil
}

// ToggleRepeat advances repeat off -> track -> queue -> off. The engine
// is updated first; local state follows only on success.
func (o *Orchestrator) ToggleRepeat() (engine.RepeatMode, error) {
	o.mu.Lock()
	next := o.repeat.Next()
	o.mu.Unlock()

	if err := o.engine.SetRepeatMode(next); err != nil {
		return o.RepeatMode(), err
	}

	o.mu.Lock()
	o.repeat = next
	o.mu.Unlock()

	o.notifyChange()
	return next, nil
}

// RepeatMode returns the current repeat mode.
func (o *Orchestrator) RepeatMode() engine.RepeatMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.repeat
}

// Seek moves the playhead within the current track, in seconds.
func (o *Orchestrator) Seek(seconds float64) error {
	if err := o.engine.SeekTo(seconds); err != nil {
		return err
	}
	o.notifyChange()
	return nil
}

// Stop halts playback without touching the queue.
func (o *Orchestrator) Stop() error {
	if err := o.engine.Stop(); err != nil {
		return err
	}
	o.notifyChange()
	return nil
}

// PlayFromQueue jumps to the given queue index and plays it.
func (o *Orchestrator) PlayFromQueue(index int) error {
	snap := o.engine.GetSnapshot()
	if index < 0 || index >= len(snap.Queue) {
		return nil
	}
	if err := o.engine.Skip(index); err != nil {
		return err
	}
	if err := o.engine.Play(); err != nil {
		return err
	}
	o.notifyChange()
	return nil
}

// Status builds a fresh snapshot for the UI.
func (o *Orchestrator) Status() Status {
	snap := o.engine.GetSnapshot()
	progress, err := o.engine.Progress()
	if err != nil {
		progress = engine.Progress{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		CurrentTrack: o.current,
		Queue:        snap.Queue,
		ActiveIndex:  snap.ActiveIndex,
		State:        snap.State,
		Progress:     progress,
		RepeatMode:   o.repeat.String(),
		Shuffled:     o.shuffled,
	}
}

// CurrentTrack returns the track the orchestrator believes is active.
func (o *Orchestrator) CurrentTrack() *catalog.Track {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Orchestrator) notifyChange() {
	if o.onChange == nil {
		return
	}
	o.onChange(o.Status())
}

func engineTrack(t catalog.Track) engine.Track {
	return engine.Track{
		ID:      t.ID,
		URL:     t.StreamURL,
		Title:   t.Title,
		Artist:  t.Author,
		Artwork: t.ArtworkURI,
	}
}
