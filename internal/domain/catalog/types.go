// Package catalog talks to the content API: it resolves song documents
// into playable tracks, looks up similar songs by genre or category,
// fetches lyrics and reports plays.
package catalog

import "errors"

// Fallbacks substituted when a song document is missing display fields.
// Playback must never block on cosmetic metadata.
const (
	FallbackTitle   = "Untitled"
	FallbackAuthor  = "Unknown Artist"
	FallbackArtwork = "https://cdn.cadence.fm/assets/artwork-placeholder.png"
)

var (
	// ErrInvalidID is returned for song ids that are not 24-char hex
	// document ids. No request is made for these.
	ErrInvalidID = errors.New("invalid song id")

	// ErrNoPlayableURL is returned when a song document carries no
	// playable stream URL under any known field name.
	ErrNoPlayableURL = errors.New("song has no playable url")

	// ErrNotFound is returned when the content API has no document for
	// the requested id or slug.
	ErrNotFound = errors.New("not found")
)

// Track is a fully resolved, playable song.
type Track struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	ArtworkURI   string `json:"artwork"`
	StreamURL    string `json:"url"`
	GenreSlug    string `json:"genreSlug,omitempty"`
	CategorySlug string `json:"categorySlug,omitempty"`
}

// LyricLine is one timed line of a song's lyrics.
type LyricLine struct {
	TimeMS int64  `json:"timeMs"`
	Text   string `json:"text"`
}
