// Package playlist provides the Playlist domain entity.
package playlist

import "fmt"

// Playlist represents one of the user's Spotify playlists.
// Name is unique within a fetched list after DisambiguateNames.
type Playlist struct {
	ID                  string // Spotify Playlist ID
	URI                 string // Spotify Playlist URI
	Name                string // Display name (with " (n)" suffix on collisions)
	TrackCount          int    // Total tracks reported by the API
	HasGenreAnnotations bool   // Tracks were enriched with genres
}

// WithGenreFlag returns a copy of the playlist marked as genre-annotated.
func (p Playlist) WithGenreFlag() Playlist {
	p.HasGenreAnnotations = true
	return p
}

// DisambiguateNames makes playlist names unique in fetch order.
// The first occurrence keeps its name, later ones get " (2)", " (3)", ...
func DisambiguateNames(playlists []Playlist) []Playlist {
	counts := make(map[string]int, len(playlists))
	taken := make(map[string]bool, len(playlists))
	for _, p := range playlists {
		taken[p.Name] = true
	}

	result := make([]Playlist, len(playlists))
	for i, p := range playlists {
		base := p.Name
		counts[base]++
		if counts[base] > 1 {
			name := fmt.Sprintf("%s (%d)", base, counts[base])
			// A real playlist may already be called "Chill (2)".
			for taken[name] {
				counts[base]++
				name = fmt.Sprintf("%s (%d)", base, counts[base])
			}
			taken[name] = true
			p.Name = name
		}
		result[i] = p
	}
	return result
}

// Names returns the display names in order.
func Names(playlists []Playlist) []string {
	names := make([]string, len(playlists))
	for i, p := range playlists {
		names[i] = p.Name
	}
	return names
}
