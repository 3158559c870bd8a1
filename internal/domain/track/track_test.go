package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrack_IsAvailable(t *testing.T) {
	trueVal := true
	falseVal := false

	tests := []struct {
		name       string
		track      Track
		expected   bool
	}{
		{
			name:     "regular track",
			track:    Track{URI: "spotify:track:abc"},
			expected: true,
		},
		{
			name:     "local file uri",
			track:    Track{URI: "spotify:local:Artist:Album:Song:215"},
			expected: false,
		},
		{
			name:     "local flag",
			track:    Track{URI: "spotify:track:abc", IsLocal: true},
			expected: false,
		},
		{
			name:     "empty uri",
			track:    Track{},
			expected: false,
		},
		{
			name:     "isPlayable true",
			track:    Track{URI: "spotify:track:abc", IsPlayable: &trueVal},
			expected: true,
		},
		{
			name:     "isPlayable false takes precedence",
			track:    Track{URI: "spotify:track:abc", IsPlayable: &falseVal},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.IsAvailable())
		})
	}
}

func TestTrack_ArtistAccessors(t *testing.T) {
	tr := Track{
		URI: "spotify:track:1",
		Artists: []ArtistRef{
			{URI: "spotify:artist:a", Name: "Alpha"},
			{URI: "spotify:artist:b", Name: "Beta"},
		},
	}

	assert.Equal(t, []string{"spotify:artist:a", "spotify:artist:b"}, tr.ArtistURIs())
	assert.Equal(t, []string{"Alpha", "Beta"}, tr.ArtistNames())
	assert.Empty(t, Track{}.ArtistURIs())
}

func TestTrack_WithGenres(t *testing.T) {
	original := Track{URI: "spotify:track:1", Name: "Song"}
	genres := []string{"indie", "rock"}

	enriched := original.WithGenres(genres)
	genres[0] = "mutated"

	assert.Empty(t, original.Genres, "original must not change")
	assert.Equal(t, []string{"indie", "rock"}, enriched.Genres)
	assert.Equal(t, original.URI, enriched.URI)
	assert.Equal(t, original.Name, enriched.Name)
}

func TestTrack_SrcSet(t *testing.T) {
	tr := Track{
		AlbumArt: []Image{
			{URL: "https://i.scdn.co/large", Width: 640, Height: 640},
			{URL: "https://i.scdn.co/small", Width: 64, Height: 64},
			{URL: ""},
			{URL: "https://i.scdn.co/unsized"},
		},
	}

	assert.Equal(t,
		"https://i.scdn.co/large 640w, https://i.scdn.co/small 64w, https://i.scdn.co/unsized",
		tr.SrcSet())
	assert.Equal(t, "", Track{}.SrcSet())
}

func TestURIs(t *testing.T) {
	tracks := []Track{{URI: "a"}, {URI: "b"}, {URI: "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, URIs(tracks))
	assert.Equal(t, []string{}, URIs(nil))
}
