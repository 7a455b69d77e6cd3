package catalog

// Song documents come from several backend generations and name the same
// field differently. Extraction walks a fixed alias list and takes the
// first non-empty hit, so newer field names win over legacy ones.

// streamURLAliases in priority order. A document may carry several; the
// first one present is the playable URL.
var streamURLAliases = []string{"trackUrl", "url", "audioUrl", "previewUrl", "streamUrl"}

var (
	titleAliases   = []string{"title", "name", "trackTitle"}
	authorAliases  = []string{"author", "artist", "artistName"}
	artworkAliases = []string{"trackImg", "artwork", "artworkUrl", "coverUrl", "imageUrl", "thumbnail"}
)

func stringField(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func firstString(doc map[string]any, aliases []string) string {
	for _, key := range aliases {
		if v := stringField(doc, key); v != "" {
			return v
		}
	}
	return ""
}

// extractAuthor also accepts an artists array, taking the first entry's
// name, as written by the playlist importer.
func extractAuthor(doc map[string]any) string {
	if v := firstString(doc, authorAliases); v != "" {
		return v
	}
	if artists, ok := doc["artists"].([]any); ok && len(artists) > 0 {
		if first, ok := artists[0].(map[string]any); ok {
			if v := firstString(first, []string{"name", "title"}); v != "" {
				return v
			}
		}
		if name, ok := artists[0].(string); ok {
			return name
		}
	}
	return ""
}

// extractSlug reads a flat slug field or a nested {slug: ...} object.
func extractSlug(doc map[string]any, flat, nested string) string {
	if v := stringField(doc, flat); v != "" {
		return v
	}
	if obj, ok := doc[nested].(map[string]any); ok {
		return stringField(obj, "slug")
	}
	return ""
}

func extractID(doc map[string]any) string {
	for _, key := range []string{"_id", "id", "songId"} {
		if v := stringField(doc, key); v != "" {
			return v
		}
	}
	return ""
}

// trackFromDocument normalizes a raw song document. The stream URL is the
// only hard requirement; display fields fall back to placeholders.
func trackFromDocument(doc map[string]any) (Track, error) {
	streamURL := firstString(doc, streamURLAliases)
	if streamURL == "" {
		return Track{}, ErrNoPlayableURL
	}

	t := Track{
		ID:           extractID(doc),
		Title:        firstString(doc, titleAliases),
		Author:       extractAuthor(doc),
		ArtworkURI:   firstString(doc, artworkAliases),
		StreamURL:    streamURL,
		GenreSlug:    extractSlug(doc, "genreSlug", "genre"),
		CategorySlug: extractSlug(doc, "categorySlug", "category"),
	}
	if t.Title == "" {
		t.Title = FallbackTitle
	}
	if t.Author == "" {
		t.Author = FallbackAuthor
	}
	if t.ArtworkURI == "" {
		t.ArtworkURI = FallbackArtwork
	}
	return t, nil
}

// unwrapList digs the songs array out of a list response envelope.
var listEnvelopeAliases = []string{"data", "songs", "tracks", "items"}

func unwrapList(body map[string]any) []any {
	for _, key := range listEnvelopeAliases {
		if items, ok := body[key].([]any); ok {
			return items
		}
	}
	return nil
}

// unwrapSong digs the song document out of a single-item envelope. Some
// endpoints return the document bare, so the body itself is the last try.
func unwrapSong(body map[string]any) map[string]any {
	for _, key := range []string{"song", "data"} {
		if doc, ok := body[key].(map[string]any); ok {
			return doc
		}
	}
	return body
}
