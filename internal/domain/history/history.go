// Package history keeps a local record of recently played songs.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cadencefm/cadence-player-backend/internal/domain/catalog"
)

// duplicateWindow collapses repeated starts of the same song, which
// happen when the engine re-emits the active track on reconnect.
const duplicateWindow = 5 * time.Second

// Entry is one play of a song.
type Entry struct {
	ID        string    `json:"id"`
	SongID    string    `json:"songId"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Artwork   string    `json:"artwork,omitempty"`
	PlayedAt  time.Time `json:"playedAt"`
	PlayCount int       `json:"playCount"`
}

// Store persists play history as a JSON file under the data directory.
type Store struct {
	filePath   string
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewStore creates a history store rooted at dataDir and loads any
// existing history file.
func NewStore(dataDir string) *Store {
	s := &Store{
		filePath:   filepath.Join(dataDir, "play_history.json"),
		entries:    []Entry{},
		maxEntries: 1000,
	}
	s.load()
	return s
}

// Add records that the given track started playing.
func (s *Store) Add(track catalog.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := len(s.entries) - 1; i >= 0 && i >= len(s.entries)-5; i-- {
		if s.entries[i].SongID == track.ID && now.Sub(s.entries[i].PlayedAt) < duplicateWindow {
			s.entries[i].PlayedAt = now
			s.entries[i].PlayCount++
			s.saveAsync()
			return
		}
	}

	s.entries = append(s.entries, Entry{
		ID:        uuid.New().String(),
		SongID:    track.ID,
		Title:     track.Title,
		Author:    track.Author,
		Artwork:   track.ArtworkURI,
		PlayedAt:  now,
		PlayCount: 1,
	})
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}

	log.Debug().Str("songId", track.ID).Str("title", track.Title).Msg("Recorded play history")
	s.saveAsync()
}

// Recent returns up to limit entries, most recent first.
func (s *Store) Recent(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make([]Entry, len(s.entries))
	copy(recent, s.entries)
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].PlayedAt.After(recent[j].PlayedAt)
	})

	if limit <= 0 {
		limit = 50
	}
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

// PlayCount returns the total recorded plays of a song.
func (s *Store) PlayCount(songID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if e.SongID == songID {
			count += e.PlayCount
		}
	}
	return count
}

// Clear drops all history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []Entry{}
	s.saveAsync()
	log.Info().Msg("Play history cleared")
}

func (s *Store) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", s.filePath).Msg("Failed to read play history")
		}
		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Msg("Failed to parse play history")
		return
	}
	s.entries = entries
	log.Info().Int("count", len(entries)).Msg("Loaded play history")
}

// saveAsync writes the history file off the caller's goroutine.
func (s *Store) saveAsync() {
	entriesCopy := make([]Entry, len(s.entries))
	copy(entriesCopy, s.entries)

	go func() {
		data, err := json.MarshalIndent(entriesCopy, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal play history")
			return
		}
		if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
			log.Error().Err(err).Msg("Failed to create history directory")
			return
		}
		if err := os.WriteFile(s.filePath, data, 0644); err != nil {
			log.Error().Err(err).Msg("Failed to save play history")
		}
	}()
}
