// Package seed provides the Seed Set used to drive recommendations.
package seed

import "github.com/osa030/seedbox/internal/domain/track"

// MaxSeeds is the combined artist + track limit of the recommendations endpoint.
const MaxSeeds = 5

// TrackSeed is a seed track together with the view it was picked from.
type TrackSeed struct {
	URI    string
	Source string // e.g. "liked", "recent", "search", or a playlist name
}

// Set is the user's selection of seed tracks, artists and genres.
// Add and remove are idempotent and keyed by URI (or genre string).
// Not safe for concurrent use; the owning session serializes access.
type Set struct {
	tracks  []TrackSeed
	artists []track.ArtistRef
	genres  []string
}

// NewSet creates an empty seed set.
func NewSet() *Set {
	return &Set{
		tracks:  make([]TrackSeed, 0),
		artists: make([]track.ArtistRef, 0),
		genres:  make([]string, 0),
	}
}

// AddTrack adds a seed track. Returns false if the URI was already present.
func (s *Set) AddTrack(uri, source string) bool {
	if uri == "" || s.HasTrack(uri) {
		return false
	}
	s.tracks = append(s.tracks, TrackSeed{URI: uri, Source: source})
	return true
}

// RemoveTrack removes a seed track. Returns false if it was not present.
func (s *Set) RemoveTrack(uri string) bool {
	for i, t := range s.tracks {
		if t.URI == uri {
			s.tracks = append(s.tracks[:i:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// HasTrack reports whether uri is a seed track.
func (s *Set) HasTrack(uri string) bool {
	for _, t := range s.tracks {
		if t.URI == uri {
			return true
		}
	}
	return false
}

// AddArtist adds a seed artist. Returns false if the URI was already present.
func (s *Set) AddArtist(a track.ArtistRef) bool {
	if a.URI == "" || s.HasArtist(a.URI) {
		return false
	}
	s.artists = append(s.artists, a)
	return true
}

// RemoveArtist removes a seed artist. Returns false if it was not present.
func (s *Set) RemoveArtist(uri string) bool {
	for i, a := range s.artists {
		if a.URI == uri {
			s.artists = append(s.artists[:i:i], s.artists[i+1:]...)
			return true
		}
	}
	return false
}

// HasArtist reports whether uri is a seed artist.
func (s *Set) HasArtist(uri string) bool {
	for _, a := range s.artists {
		if a.URI == uri {
			return true
		}
	}
	return false
}

// AddGenre adds a genre. Returns false if it was already present.
func (s *Set) AddGenre(genre string) bool {
	if genre == "" {
		return false
	}
	for _, g := range s.genres {
		if g == genre {
			return false
		}
	}
	s.genres = append(s.genres, genre)
	return true
}

// RemoveGenre removes a genre. Returns false if it was not present.
func (s *Set) RemoveGenre(genre string) bool {
	for i, g := range s.genres {
		if g == genre {
			s.genres = append(s.genres[:i:i], s.genres[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the set.
func (s *Set) Clear() {
	s.tracks = make([]TrackSeed, 0)
	s.artists = make([]track.ArtistRef, 0)
	s.genres = make([]string, 0)
}

// Tracks returns a copy of the seed tracks in insertion order.
func (s *Set) Tracks() []TrackSeed {
	return append([]TrackSeed(nil), s.tracks...)
}

// Artists returns a copy of the seed artists in insertion order.
func (s *Set) Artists() []track.ArtistRef {
	return append([]track.ArtistRef(nil), s.artists...)
}

// Genres returns a copy of the seed genres in insertion order.
func (s *Set) Genres() []string {
	return append([]string(nil), s.genres...)
}

// TrackURIs returns the seed track URIs in insertion order.
func (s *Set) TrackURIs() []string {
	uris := make([]string, len(s.tracks))
	for i, t := range s.tracks {
		uris[i] = t.URI
	}
	return uris
}

// ArtistURIs returns the seed artist URIs in insertion order.
func (s *Set) ArtistURIs() []string {
	uris := make([]string, len(s.artists))
	for i, a := range s.artists {
		uris[i] = a.URI
	}
	return uris
}

// Count returns the number of seeds that count towards MaxSeeds.
// Genres are not counted.
func (s *Set) Count() int {
	return len(s.tracks) + len(s.artists)
}

// TooFew reports whether there is nothing to seed from.
func (s *Set) TooFew() bool {
	return s.Count() == 0
}

// TooMany reports whether the set exceeds MaxSeeds.
func (s *Set) TooMany() bool {
	return s.Count() > MaxSeeds
}

// Valid reports whether a recommendation request can be built from the set.
func (s *Set) Valid() bool {
	return !s.TooFew() && !s.TooMany()
}
