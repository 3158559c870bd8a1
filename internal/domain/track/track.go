// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"strings"
)

// LocalURIPrefix marks tracks that only exist in a user's local files.
const LocalURIPrefix = "spotify:local:"

// Image represents one size of an album cover.
type Image struct {
	URL    string
	Width  int
	Height int
}

// ArtistRef is an artist reference as it appears on a track.
// Identity is the URI.
type ArtistRef struct {
	URI  string
	Name string
}

// Track represents a Spotify track as shown in the library and recommendation views.
// URI is the only key used for equality and deduplication.
type Track struct {
	URI         string      // Spotify track URI
	Name        string      // Track name
	AlbumName   string      // Album name
	AlbumArt    []Image     // Album art, in API order
	Artists     []ArtistRef // Artists, in credit order
	ExternalURL string      // open.spotify.com URL
	Genres      []string    // Genres (from artist info, empty until enriched)
	IsLocal     bool        // Local file without a playable reference
	IsPlayable  *bool       // Playable in the requested market (nil if market not specified)
}

// ArtistURIs returns the URIs of all credited artists.
func (t Track) ArtistURIs() []string {
	uris := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		uris[i] = a.URI
	}
	return uris
}

// ArtistNames returns the names of all credited artists.
func (t Track) ArtistNames() []string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return names
}

// WithGenres returns a copy of the track carrying the given genres.
func (t Track) WithGenres(genres []string) Track {
	g := make([]string, len(genres))
	copy(g, genres)
	t.Genres = g
	return t
}

// IsAvailable reports whether the track can be stored and played.
func (t Track) IsAvailable() bool {
	if t.URI == "" || t.IsLocal || strings.HasPrefix(t.URI, LocalURIPrefix) {
		return false
	}
	if t.IsPlayable != nil {
		return *t.IsPlayable
	}
	return true
}

// SrcSet builds an HTML srcset attribute from the album art.
func (t Track) SrcSet() string {
	parts := make([]string, 0, len(t.AlbumArt))
	for _, img := range t.AlbumArt {
		if img.URL == "" {
			continue
		}
		if img.Width > 0 {
			parts = append(parts, fmt.Sprintf("%s %dw", img.URL, img.Width))
		} else {
			parts = append(parts, img.URL)
		}
	}
	return strings.Join(parts, ", ")
}

// URIs returns the URIs of the given tracks in order.
func URIs(tracks []Track) []string {
	uris := make([]string, len(tracks))
	for i, t := range tracks {
		uris[i] = t.URI
	}
	return uris
}
