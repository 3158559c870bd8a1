package spotify

import (
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/osa030/seedbox/internal/domain/playlist"
	"github.com/osa030/seedbox/internal/domain/track"
)

// convertSimpleTrack converts a Spotify SimpleTrack to domain Track.
func convertSimpleTrack(t *spotify.SimpleTrack) track.Track {
	artists := make([]track.ArtistRef, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = track.ArtistRef{URI: string(a.URI), Name: a.Name}
	}

	uri := string(t.URI)
	if uri == "" && t.ID != "" {
		uri = "spotify:track:" + string(t.ID)
	}

	externalURL := t.ExternalURLs["spotify"]
	if externalURL == "" && t.ID != "" {
		externalURL = GetTrackURL(string(t.ID))
	}

	return track.Track{
		URI:         uri,
		Name:        t.Name,
		AlbumName:   t.Album.Name,
		AlbumArt:    convertImages(t.Album.Images),
		Artists:     artists,
		ExternalURL: externalURL,
		Genres:      []string{},
		IsLocal:     strings.HasPrefix(uri, track.LocalURIPrefix),
	}
}

// convertFullTrack converts a Spotify FullTrack to domain Track.
func convertFullTrack(t *spotify.FullTrack) track.Track {
	result := convertSimpleTrack(&t.SimpleTrack)
	result.AlbumName = t.Album.Name
	result.AlbumArt = convertImages(t.Album.Images)
	// Track relinking: IsPlayable is only present when a market was requested
	if t.IsPlayable != nil {
		playable := *t.IsPlayable
		result.IsPlayable = &playable
	}
	return result
}

func convertImages(images []spotify.Image) []track.Image {
	result := make([]track.Image, len(images))
	for i, img := range images {
		result[i] = track.Image{
			URL:    img.URL,
			Width:  int(img.Width),
			Height: int(img.Height),
		}
	}
	return result
}

func convertPlaylist(p spotify.SimplePlaylist) playlist.Playlist {
	uri := string(p.URI)
	if uri == "" {
		uri = "spotify:playlist:" + string(p.ID)
	}
	return playlist.Playlist{
		ID:         string(p.ID),
		URI:        uri,
		Name:       p.Name,
		TrackCount: int(p.Tracks.Total),
	}
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}
