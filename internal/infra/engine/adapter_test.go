package engine_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cadencefm/cadence-player-backend/internal/infra/engine"
)

// fakeEngine records every call so tests can assert on call order and count.
type fakeEngine struct {
	mu           sync.Mutex
	setupCalls   int
	setupErr     error
	optionsCalls int
	calls        []string
	errOn        map[string]error

	queue    []engine.Track
	active   int
	state    engine.TransportState
	progress engine.Progress
	events   chan engine.Event
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		active: -1,
		state:  engine.StateNone,
		errOn:  map[string]error{},
		events: make(chan engine.Event, 16),
	}
}

func (f *fakeEngine) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.errOn[op]
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Setup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupCalls++
	return f.setupErr
}

func (f *fakeEngine) UpdateOptions(engine.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optionsCalls++
	return nil
}

func (f *fakeEngine) Reset() error {
	if err := f.record("reset"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = nil
	f.active = -1
	return nil
}

func (f *fakeEngine) Add(tracks ...engine.Track) error {
	if err := f.record(fmt.Sprintf("add:%d", len(tracks))); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, tracks...)
	return nil
}

func (f *fakeEngine) Play() error {
	if err := f.record("play"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) > 0 {
		if f.active < 0 {
			f.active = 0
		}
		f.state = engine.StatePlaying
	}
	return nil
}

func (f *fakeEngine) Pause() error {
	if err := f.record("pause"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = engine.StatePaused
	return nil
}

func (f *fakeEngine) Stop() error {
	if err := f.record("stop"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = engine.StateStopped
	return nil
}

func (f *fakeEngine) Skip(index int) error {
	if err := f.record(fmt.Sprintf("skip:%d", index)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = index
	return nil
}

func (f *fakeEngine) SkipToNext() error     { return f.record("skipToNext") }
func (f *fakeEngine) SkipToPrevious() error { return f.record("skipToPrevious") }

func (f *fakeEngine) SeekTo(seconds float64) error {
	return f.record(fmt.Sprintf("seekTo:%g", seconds))
}

func (f *fakeEngine) SetRepeatMode(mode engine.RepeatMode) error {
	return f.record("repeat:" + mode.String())
}

func (f *fakeEngine) Queue() ([]engine.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errOn["queue"]; err != nil {
		return nil, err
	}
	return append([]engine.Track(nil), f.queue...), nil
}

func (f *fakeEngine) ActiveTrack() (*engine.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active < 0 || f.active >= len(f.queue) {
		return nil, nil
	}
	t := f.queue[f.active]
	return &t, nil
}

func (f *fakeEngine) ActiveIndex() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeEngine) State() (engine.TransportState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeEngine) Progress() (engine.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress, nil
}

func (f *fakeEngine) Events() <-chan engine.Event { return f.events }
func (f *fakeEngine) Ping() error                 { return nil }

func TestEnsureInitializedConcurrent(t *testing.T) {
	fake := newFakeEngine()
	adapter := engine.NewAdapter(fake)

	const callers = 10
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- adapter.EnsureInitialized()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("EnsureInitialized returned error: %v", err)
		}
	}
	if fake.setupCalls != 1 {
		t.Errorf("expected exactly 1 setup call, got %d", fake.setupCalls)
	}
	if fake.optionsCalls != 1 {
		t.Errorf("expected exactly 1 options call, got %d", fake.optionsCalls)
	}
}

func TestEnsureInitializedAlreadyInitialized(t *testing.T) {
	t.Run("sentinel error is treated as success", func(t *testing.T) {
		fake := newFakeEngine()
		fake.setupErr = engine.ErrAlreadyInitialized
		adapter := engine.NewAdapter(fake)

		if err := adapter.EnsureInitialized(); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		// Another code path configured the engine; options must not be
		// applied a second time.
		if fake.optionsCalls != 0 {
			t.Errorf("expected 0 options calls, got %d", fake.optionsCalls)
		}
	})

	t.Run("message match is treated as success", func(t *testing.T) {
		fake := newFakeEngine()
		fake.setupErr = errors.New("The player has already been initialized via setupPlayer")
		adapter := engine.NewAdapter(fake)

		if err := adapter.EnsureInitialized(); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})

	t.Run("other setup errors propagate and allow retry", func(t *testing.T) {
		fake := newFakeEngine()
		fake.setupErr = errors.New("no audio device")
		adapter := engine.NewAdapter(fake)

		if err := adapter.EnsureInitialized(); err == nil {
			t.Fatal("expected error")
		}

		fake.setupErr = nil
		if err := adapter.EnsureInitialized(); err != nil {
			t.Fatalf("retry should succeed, got %v", err)
		}
		if fake.setupCalls != 2 {
			t.Errorf("expected 2 setup calls after retry, got %d", fake.setupCalls)
		}
	})
}

func TestResetInitForTest(t *testing.T) {
	fake := newFakeEngine()
	adapter := engine.NewAdapter(fake)

	if err := adapter.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	adapter.ResetInitForTest()
	if err := adapter.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	if fake.setupCalls != 2 {
		t.Errorf("expected setup to run again after reset, got %d calls", fake.setupCalls)
	}
}

func TestEnqueueAndPlay(t *testing.T) {
	fake := newFakeEngine()
	adapter := engine.NewAdapter(fake)

	track := engine.Track{ID: "507f1f77bcf86cd799439011", URL: "https://x/a.mp3", Title: "Song A"}
	if err := adapter.EnqueueAndPlay(track); err != nil {
		t.Fatal(err)
	}

	want := []string{"reset", "add:1", "play"}
	got := fake.callLog()
	if len(got) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, got)
		}
	}
	if len(fake.queue) != 1 || fake.queue[0].ID != track.ID {
		t.Errorf("expected queue [%s], got %+v", track.ID, fake.queue)
	}
}

func TestRemoveByID(t *testing.T) {
	tracks := []engine.Track{
		{ID: "a", URL: "https://x/a.mp3"},
		{ID: "b", URL: "https://x/b.mp3"},
		{ID: "c", URL: "https://x/c.mp3"},
	}

	t.Run("rebuilds queue without target", func(t *testing.T) {
		fake := newFakeEngine()
		fake.queue = append([]engine.Track(nil), tracks...)
		adapter := engine.NewAdapter(fake)

		if err := adapter.RemoveByID("b"); err != nil {
			t.Fatal(err)
		}
		if len(fake.queue) != 2 || fake.queue[0].ID != "a" || fake.queue[1].ID != "c" {
			t.Errorf("expected queue [a c], got %+v", fake.queue)
		}
	})

	t.Run("missing id is a no-op", func(t *testing.T) {
		fake := newFakeEngine()
		fake.queue = append([]engine.Track(nil), tracks...)
		adapter := engine.NewAdapter(fake)

		if err := adapter.RemoveByID("nope"); err != nil {
			t.Fatal(err)
		}
		for _, call := range fake.callLog() {
			if call == "reset" {
				t.Error("reset should not run when the id is absent")
			}
		}
	})

	t.Run("removing the last track leaves an empty queue", func(t *testing.T) {
		fake := newFakeEngine()
		fake.queue = []engine.Track{{ID: "a", URL: "https://x/a.mp3"}}
		adapter := engine.NewAdapter(fake)

		if err := adapter.RemoveByID("a"); err != nil {
			t.Fatal(err)
		}
		if len(fake.queue) != 0 {
			t.Errorf("expected empty queue, got %+v", fake.queue)
		}
	})
}

func TestTransportErrorsAreReturnedNotPanicked(t *testing.T) {
	fake := newFakeEngine()
	fake.errOn["play"] = errors.New("transport failure")
	adapter := engine.NewAdapter(fake)

	if err := adapter.Play(); err == nil {
		t.Error("expected the engine error to be passed through")
	}
}

func TestGetSnapshotPartialFailure(t *testing.T) {
	fake := newFakeEngine()
	fake.errOn["queue"] = errors.New("connection reset")
	fake.state = engine.StatePaused
	adapter := engine.NewAdapter(fake)

	snap := adapter.GetSnapshot()
	if snap.Queue != nil {
		t.Errorf("expected nil queue on read failure, got %+v", snap.Queue)
	}
	if snap.State != engine.StatePaused {
		t.Errorf("expected state to survive queue failure, got %s", snap.State)
	}
}

func TestRepeatModeCycle(t *testing.T) {
	mode := engine.RepeatOff
	seen := []string{}
	for i := 0; i < 3; i++ {
		mode = mode.Next()
		seen = append(seen, mode.String())
	}
	if seen[0] != "track" || seen[1] != "queue" || seen[2] != "off" {
		t.Errorf("expected cycle track/queue/off, got %v", seen)
	}
}
