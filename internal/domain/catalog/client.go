package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the production content API.
	DefaultBaseURL = "https://api.cadence.fm"

	// DefaultUserAgent identifies this backend to the content API.
	DefaultUserAgent = "Cadence/0.1.0 (https://github.com/cadencefm/cadence-player-backend)"
)

// documentIDPattern matches 24-char hex document ids, case-insensitive.
var documentIDPattern = regexp.MustCompile(`^[a-fA-F0-9]{24}$`)

// IsDocumentID reports whether id looks like a content API document id.
func IsDocumentID(id string) bool {
	return documentIDPattern.MatchString(id)
}

// TokenSource supplies the bearer credential for content API requests.
// An empty token means anonymous access, which the API tolerates for
// public catalog reads.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the content API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	tokens     TokenSource
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTokenSource sets the bearer credential source.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

// NewClient creates a content API client. Requests carry no client-side
// timeout by default; callers bound lookups through their context.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			// Anonymous catalog reads still work; log and go without.
			log.Warn().Err(err).Msg("Failed to read API credential")
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		// Success
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return parsed, nil
}

// Resolve fetches the song document for id and normalizes it into a
// playable track. Ids that do not look like document ids are rejected
// without a request.
func (c *Client) Resolve(ctx context.Context, id string) (Track, error) {
	if !IsDocumentID(id) {
		return Track{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	body, err := c.do(ctx, http.MethodGet, "/api/content/songs/"+url.PathEscape(id), nil)
	if err != nil {
		return Track{}, fmt.Errorf("fetch song %s: %w", id, err)
	}

	track, err := trackFromDocument(unwrapSong(body))
	if err != nil {
		return Track{}, fmt.Errorf("song %s: %w", id, err)
	}
	if track.ID == "" {
		track.ID = id
	}

	log.Debug().
		Str("songId", track.ID).
		Str("title", track.Title).
		Msg("Resolved song")
	return track, nil
}

// SongsByGenre returns the playable tracks of a genre. Documents without
// a stream URL are skipped, not errors.
func (c *Client) SongsByGenre(ctx context.Context, slug string) ([]Track, error) {
	return c.songsBySlug(ctx, "/api/content/genres/", slug)
}

// SongsByCategory returns the playable tracks of a category.
func (c *Client) SongsByCategory(ctx context.Context, slug string) ([]Track, error) {
	return c.songsBySlug(ctx, "/api/content/categories/", slug)
}

func (c *Client) songsBySlug(ctx context.Context, prefix, slug string) ([]Track, error) {
	if slug == "" {
		return nil, nil
	}

	body, err := c.do(ctx, http.MethodGet, prefix+url.PathEscape(slug), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s%s: %w", prefix, slug, err)
	}

	var tracks []Track
	for _, item := range unwrapList(body) {
		doc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		track, err := trackFromDocument(doc)
		if err != nil {
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// RecordPlay reports a completed play of the given song. Best effort;
// callers typically log and drop the error.
func (c *Client) RecordPlay(ctx context.Context, songID string) error {
	payload := map[string]string{
		"itemType": "song",
		"itemId":   songID,
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/content/plays", payload); err != nil {
		return fmt.Errorf("record play %s: %w", songID, err)
	}
	return nil
}

// Lyrics fetches the timed lyrics of a song. Songs without lyrics return
// an empty slice, not an error.
func (c *Client) Lyrics(ctx context.Context, id string) ([]LyricLine, error) {
	if !IsDocumentID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	body, err := c.do(ctx, http.MethodGet, "/api/content/songs/"+url.PathEscape(id)+"/lyrics", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch lyrics %s: %w", id, err)
	}

	var lines []LyricLine
	for _, item := range unwrapList(body) {
		doc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		line := LyricLine{Text: stringField(doc, "text")}
		if ms, ok := doc["timeMs"].(float64); ok {
			line.TimeMS = int64(ms)
		}
		lines = append(lines, line)
	}
	return lines, nil
}
