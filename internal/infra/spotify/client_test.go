package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     string
		expected string
	}{
		{
			name:     "Spotify playlist URI format",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			kind:     "playlist",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify playlist URL format",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			kind:     "playlist",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			kind:     "playlist",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Localized track URL",
			input:    "https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC/",
			kind:     "track",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Artist URI",
			input:    "spotify:artist:0OdUWJ0sBjDrqHygGUXeCF",
			kind:     "artist",
			expected: "0OdUWJ0sBjDrqHygGUXeCF",
		},
		{
			name:     "Plain ID",
			input:    "  4uLU6hMCjMI75M1A2tKUQC ",
			kind:     "track",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Empty string",
			input:    "",
			kind:     "track",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractID(tt.input, tt.kind)
			assert.Equal(t, tt.expected, result,
				"extractID(%s, %s) should return %s", tt.input, tt.kind, tt.expected)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "api 429", err: spotify.Error{Message: "slow down", Status: 429}, expected: true},
		{name: "api 503", err: spotify.Error{Message: "unavailable", Status: 503}, expected: true},
		{name: "api 404", err: spotify.Error{Message: "not found", Status: 404}, expected: false},
		{name: "api 401", err: spotify.Error{Message: "expired", Status: 401}, expected: false},
		{name: "rate limit text", err: errors.New("rate limit exceeded"), expected: true},
		{name: "502 text", err: errors.New("502 Bad Gateway"), expected: true},
		{name: "generic error", err: errors.New("something went wrong"), expected: false},
		{name: "no more pages", err: spotify.ErrNoMorePages, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestChunk(t *testing.T) {
	ids := make([]spotify.ID, 250)
	for i := range ids {
		ids[i] = spotify.ID(fmt.Sprintf("id%d", i))
	}

	batches := chunk(ids, 100)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 100)
	assert.Len(t, batches[2], 50)
	assert.Equal(t, spotify.ID("id249"), batches[2][49])
	assert.Empty(t, chunk(nil, 100))
}

// newTestClient starts a fake Web API and returns a client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewWithHTTPClient(http.DefaultClient, Config{Market: "JP", MaxRetries: 3},
		spotify.WithBaseURL(server.URL+"/"))
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestClient_ArtistGenres(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/artists"))
		assert.Equal(t, "a1,a2", r.URL.Query().Get("ids"))
		writeJSON(w, `{"artists": [
			{"id": "a1", "uri": "spotify:artist:a1", "name": "One", "genres": ["indie", "rock"]},
			{"id": "a2", "uri": "spotify:artist:a2", "name": "Two", "genres": []}
		]}`)
	})

	genres, err := client.ArtistGenres(context.Background(), []string{"spotify:artist:a1", "spotify:artist:a2"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"spotify:artist:a1": {"indie", "rock"},
		"spotify:artist:a2": {},
	}, genres)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ArtistGenres_RejectsOversizedBatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	uris := make([]string, ArtistBatchSize+1)
	for i := range uris {
		uris[i] = fmt.Sprintf("spotify:artist:%d", i)
	}

	_, err := client.ArtistGenres(context.Background(), uris)
	assert.Error(t, err)
}

func TestClient_AllPlaylists_FollowsNextLinks(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "2" {
			writeJSON(w, `{"items": [
				{"id": "p3", "uri": "spotify:playlist:p3", "name": "Workout", "tracks": {"total": 7}}
			], "next": ""}`)
			return
		}
		writeJSON(w, fmt.Sprintf(`{"items": [
			{"id": "p1", "uri": "spotify:playlist:p1", "name": "Chill", "tracks": {"total": 3}},
			{"id": "p2", "uri": "spotify:playlist:p2", "name": "Chill", "tracks": {"total": 4}}
		], "next": "%s/me/playlists?offset=2&limit=2"}`, serverURL))
	}))
	defer server.Close()
	serverURL = server.URL

	client := NewWithHTTPClient(http.DefaultClient, Config{}, spotify.WithBaseURL(server.URL+"/"))

	playlists, err := client.AllPlaylists(context.Background())
	require.NoError(t, err)
	require.Len(t, playlists, 3)
	assert.Equal(t, "p1", playlists[0].ID)
	assert.Equal(t, "spotify:playlist:p3", playlists[2].URI)
	assert.Equal(t, "Workout", playlists[2].Name)
	assert.Equal(t, 7, playlists[2].TrackCount)
}

func TestClient_AllPlaylistTracks_SkipsEpisodesAndMarksLocal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/playlists/pl1/")
		writeJSON(w, `{"items": [
			{"is_local": false, "track": {"type": "track", "id": "t1", "uri": "spotify:track:t1", "name": "One",
				"album": {"name": "Album", "images": [{"url": "https://i/640", "width": 640, "height": 640}]},
				"artists": [{"id": "a1", "uri": "spotify:artist:a1", "name": "Artist"}],
				"external_urls": {"spotify": "https://open.spotify.com/track/t1"}}},
			{"is_local": true, "track": {"type": "track", "uri": "spotify:local:Artist:Album:Song:200", "name": "Song",
				"album": {"name": "Album"}, "artists": []}},
			{"is_local": false, "track": {"type": "episode", "id": "e1", "name": "Podcast"}}
		], "next": ""}`)
	})

	tracks, err := client.AllPlaylistTracks(context.Background(), "spotify:playlist:pl1")
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, "spotify:track:t1", tracks[0].URI)
	assert.Equal(t, "Album", tracks[0].AlbumName)
	assert.Equal(t, "https://open.spotify.com/track/t1", tracks[0].ExternalURL)
	assert.Equal(t, 640, tracks[0].AlbumArt[0].Width)
	assert.Equal(t, []string{"spotify:artist:a1"}, tracks[0].ArtistURIs())
	assert.False(t, tracks[0].IsLocal)

	assert.True(t, tracks[1].IsLocal)
	assert.False(t, tracks[1].IsAvailable())
}

func TestClient_SearchTracks_ReportsMore(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, `artist:"Boards of Canada"`, r.URL.Query().Get("q"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		writeJSON(w, `{"tracks": {"items": [
			{"id": "t9", "uri": "spotify:track:t9", "name": "Roygbiv", "album": {"name": "MHTRTC"}, "artists": []}
		], "next": "https://api.spotify.com/v1/search?offset=21"}}`)
	})

	tracks, more, err := client.SearchTracks(context.Background(), `artist:"Boards of Canada"`, 20, 20)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Roygbiv", tracks[0].Name)
}

func TestClient_SearchArtists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "artist", r.URL.Query().Get("type"))
		writeJSON(w, `{"artists": {"items": [
			{"id": "a1", "uri": "spotify:artist:a1", "name": "Autechre", "genres": ["idm"]}
		], "next": null}}`)
	})

	artists, more, err := client.SearchArtists(context.Background(), `genre:"idm"`, 10, 0)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, artists, 1)
	assert.Equal(t, "spotify:artist:a1", artists[0].URI)
	assert.Equal(t, "Autechre", artists[0].Name)
}

func TestClient_SearchRequiresQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, _, err := client.SearchTracks(context.Background(), "", 10, 0)
	assert.Error(t, err)
}

func TestClient_Recommendations_SendsOnlyGivenTargets(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if strings.HasSuffix(r.URL.Path, "/tracks") {
			writeJSON(w, `{"tracks": [{"id": "r1", "uri": "spotify:track:r1", "name": "Rec", "is_playable": true}]}`)
			return
		}
		assert.True(t, strings.HasSuffix(r.URL.Path, "/recommendations"))
		assert.Equal(t, "t1,t2", q.Get("seed_tracks"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, "0.7", q.Get("target_danceability"))
		_, hasEnergy := q["target_energy"]
		assert.False(t, hasEnergy)
		writeJSON(w, `{"tracks": [
			{"id": "r1", "uri": "spotify:track:r1", "name": "Rec",
			 "album": {"name": "A"}, "artists": [{"id": "x", "uri": "spotify:artist:x", "name": "X"}]}
		]}`)
	})

	tracks, err := client.Recommendations(context.Background(),
		nil, []string{"spotify:track:t1", "spotify:track:t2"}, 20,
		map[string]float64{"target_danceability": 0.7})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "spotify:track:r1", tracks[0].URI)
}

func TestClient_Recommendations_MarksPlayability(t *testing.T) {
	var lookups int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/tracks") {
			atomic.AddInt32(&lookups, 1)
			assert.Equal(t, "r1,r2,r3", r.URL.Query().Get("ids"))
			assert.Equal(t, "JP", r.URL.Query().Get("market"))
			writeJSON(w, `{"tracks": [
				{"id": "r1", "uri": "spotify:track:r1", "name": "One", "is_playable": false},
				{"id": "r2", "uri": "spotify:track:r2", "name": "Two", "is_playable": true},
				null
			]}`)
			return
		}
		writeJSON(w, `{"tracks": [
			{"id": "r1", "uri": "spotify:track:r1", "name": "One", "album": {"name": "A"}, "artists": [], "is_playable": false},
			{"id": "r2", "uri": "spotify:track:r2", "name": "Two", "album": {"name": "A"}, "artists": []},
			{"id": "r3", "uri": "spotify:track:r3", "name": "Three", "album": {"name": "A"}, "artists": []}
		]}`)
	})

	tracks, err := client.Recommendations(context.Background(), nil, []string{"spotify:track:t1"}, 3, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&lookups))

	require.NotNil(t, tracks[0].IsPlayable)
	assert.False(t, tracks[0].IsAvailable())
	require.NotNil(t, tracks[1].IsPlayable)
	assert.True(t, tracks[1].IsAvailable())
	assert.Nil(t, tracks[2].IsPlayable, "unknown ids keep the recommendation as is")
	assert.True(t, tracks[2].IsAvailable())
}

func TestClient_Recommendations_UnknownTarget(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Recommendations(context.Background(), nil, []string{"t1"}, 10,
		map[string]float64{"target_tempo": 0.5})
	assert.Error(t, err)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, `{"error": {"status": 503, "message": "try again"}}`)
			return
		}
		writeJSON(w, `{"devices": [
			{"id": "d1", "name": "Desk", "type": "Computer", "is_active": true},
			{"id": "d2", "name": "Phone", "type": "Smartphone", "is_active": false}
		]}`)
	})

	devices, err := client.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, devices, 2)
	assert.True(t, devices[0].Active)
	assert.False(t, devices[1].Active)
}

func TestClient_MarksAuthFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, `{"error": {"status": 401, "message": "The access token expired"}}`)
	})

	_, err := client.RecentlyPlayed(context.Background())
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, ErrAuthFailure))
}
