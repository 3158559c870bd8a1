package session

import (
	"github.com/osa030/seedbox/internal/app/recommend"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/domain/playlist"
	"github.com/osa030/seedbox/internal/domain/seed"
	"github.com/osa030/seedbox/internal/domain/track"
)

// ArtistView is an artist reference as rendered by clients.
type ArtistView struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// TrackView is a track as rendered by clients.
type TrackView struct {
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Album       string       `json:"album"`
	Artists     []ArtistView `json:"artists"`
	Genres      []string     `json:"genres"`
	ExternalURL string       `json:"external_url,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	SrcSet      string       `json:"srcset,omitempty"`
	Seeded      bool         `json:"seeded"`
}

// ListView is one stored library list.
type ListView struct {
	Source    string      `json:"source"`
	HasMore   bool        `json:"has_more"`
	HasGenres bool        `json:"has_genres"`
	Tracks    []TrackView `json:"tracks"`
}

// PlaylistView is one fetched playlist.
type PlaylistView struct {
	URI                 string `json:"uri"`
	Name                string `json:"name"`
	TrackCount          int    `json:"track_count"`
	HasGenreAnnotations bool   `json:"has_genre_annotations"`
	Selected            bool   `json:"selected"`
}

// SearchView is the search form and its artist results.
type SearchView struct {
	Filters        search.Filters `json:"filters"`
	Query          string         `json:"query"`
	Disabled       bool           `json:"disabled"`
	Artists        []ArtistView   `json:"artists"`
	HasMoreArtists bool           `json:"has_more_artists"`
}

// SeedTrackView is a seed track with the view it was picked from.
type SeedTrackView struct {
	URI    string `json:"uri"`
	Source string `json:"source"`
}

// SeedView is the seed selection with its derived bounds.
type SeedView struct {
	Tracks  []SeedTrackView `json:"tracks"`
	Artists []ArtistView    `json:"artists"`
	Genres  []string        `json:"genres"`
	Count   int             `json:"count"`
	TooFew  bool            `json:"too_few"`
	TooMany bool            `json:"too_many"`
}

// PlaybackView is the last playback outcome.
type PlaybackView struct {
	State  string `json:"state"`
	Device string `json:"device,omitempty"`
	Queued int    `json:"queued"`
}

// ExportView describes an exported playlist.
type ExportView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// Snapshot is the full view model of a session.
type Snapshot struct {
	ID                  string                      `json:"id"`
	Lists               []ListView                  `json:"lists"`
	Playlists           []PlaylistView              `json:"playlists"`
	SelectedPlaylist    string                      `json:"selected_playlist"`
	Search              SearchView                  `json:"search"`
	Seeds               SeedView                    `json:"seeds"`
	Parameters          map[string]recommend.Target `json:"parameters"`
	RecommendationCount int                         `json:"recommendation_count"`
	CanRecommend        bool                        `json:"can_recommend"`
	Recommendations     []TrackView                 `json:"recommendations"`
	Exports             []ExportView                `json:"exports"`
	Playback            PlaybackView                `json:"playback"`
	CachedArtists       int                         `json:"cached_artists"`
}

func newTrackView(t track.Track, seeds *seed.Set) TrackView {
	v := TrackView{
		URI:         t.URI,
		Name:        t.Name,
		Album:       t.AlbumName,
		Artists:     artistViews(t.Artists),
		Genres:      append([]string{}, t.Genres...),
		ExternalURL: t.ExternalURL,
		SrcSet:      t.SrcSet(),
		Seeded:      seeds != nil && seeds.HasTrack(t.URI),
	}
	if len(t.AlbumArt) > 0 {
		v.ImageURL = t.AlbumArt[0].URL
	}
	return v
}

func trackViews(tracks []track.Track, seeds *seed.Set) []TrackView {
	views := make([]TrackView, len(tracks))
	for i, t := range tracks {
		views[i] = newTrackView(t, seeds)
	}
	return views
}

// ArtistViews converts artist references for rendering.
func ArtistViews(artists []track.ArtistRef) []ArtistView {
	return artistViews(artists)
}

func artistViews(artists []track.ArtistRef) []ArtistView {
	views := make([]ArtistView, len(artists))
	for i, a := range artists {
		views[i] = ArtistView{URI: a.URI, Name: a.Name}
	}
	return views
}

func playlistViews(playlists []playlist.Playlist, selected string) []PlaylistView {
	views := make([]PlaylistView, len(playlists))
	for i, p := range playlists {
		views[i] = PlaylistView{
			URI:                 p.URI,
			Name:                p.Name,
			TrackCount:          p.TrackCount,
			HasGenreAnnotations: p.HasGenreAnnotations,
			Selected:            p.Name == selected,
		}
	}
	return views
}

func newSeedView(s *seed.Set) SeedView {
	tracks := s.Tracks()
	views := make([]SeedTrackView, len(tracks))
	for i, t := range tracks {
		views[i] = SeedTrackView{URI: t.URI, Source: t.Source}
	}
	return SeedView{
		Tracks:  views,
		Artists: artistViews(s.Artists()),
		Genres:  append([]string{}, s.Genres()...),
		Count:   s.Count(),
		TooFew:  s.TooFew(),
		TooMany: s.TooMany(),
	}
}
