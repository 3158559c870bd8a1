package connect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/app/session"
	"github.com/osa030/seedbox/internal/domain/playlist"
	"github.com/osa030/seedbox/internal/domain/track"
	"github.com/osa030/seedbox/internal/infra/spotify"
)

// stubAPI serves a tiny fixed library.
type stubAPI struct {
	mu      sync.Mutex
	targets map[string]float64
	created []string
}

func stubTracks(prefix string, n int) []track.Track {
	tracks := make([]track.Track, n)
	for i := range tracks {
		tracks[i] = track.Track{
			URI:     fmt.Sprintf("spotify:track:%s%d", prefix, i),
			Name:    fmt.Sprintf("%s %d", prefix, i),
			Artists: []track.ArtistRef{{URI: "spotify:artist:" + prefix, Name: prefix}},
		}
	}
	return tracks
}

func (s *stubAPI) RecentlyPlayed(context.Context) ([]track.Track, error) {
	return stubTracks("recent", 2), nil
}

func (s *stubAPI) SavedTracks(_ context.Context, _, offset int) ([]track.Track, bool, error) {
	if offset > 0 {
		return []track.Track{}, false, nil
	}
	return stubTracks("liked", 3), false, nil
}

func (s *stubAPI) AllPlaylists(context.Context) ([]playlist.Playlist, error) {
	return []playlist.Playlist{{ID: "p1", URI: "spotify:playlist:p1", Name: "Focus"}}, nil
}

func (s *stubAPI) AllPlaylistTracks(context.Context, string) ([]track.Track, error) {
	return stubTracks("focus", 2), nil
}

func (s *stubAPI) SearchTracks(_ context.Context, query string, _, _ int) ([]track.Track, bool, error) {
	return stubTracks("found", 1), false, nil
}

func (s *stubAPI) SearchArtists(context.Context, string, int, int) ([]track.ArtistRef, bool, error) {
	return []track.ArtistRef{}, false, nil
}

func (s *stubAPI) ArtistGenres(_ context.Context, uris []string) (map[string][]string, error) {
	out := make(map[string][]string, len(uris))
	for _, uri := range uris {
		out[uri] = []string{"ambient"}
	}
	return out, nil
}

func (s *stubAPI) Devices(context.Context) ([]spotify.Device, error) {
	return nil, nil
}

func (s *stubAPI) Play(context.Context, []string) error { return nil }

func (s *stubAPI) Queue(context.Context, string) error { return nil }

func (s *stubAPI) Recommendations(_ context.Context, _, _ []string, _ int, targets map[string]float64) ([]track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = targets
	return stubTracks("rec", 3), nil
}

func (s *stubAPI) CreatePlaylist(_ context.Context, name, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, name)
	return "created1", nil
}

func (s *stubAPI) AddTracksToPlaylist(context.Context, string, []string) error { return nil }

func (s *stubAPI) GetPlaylistURL(id string) string {
	return "https://open.spotify.com/playlist/" + id
}

func newTestServer(t *testing.T, token string) (*Client, *stubAPI, *session.Registry) {
	t.Helper()
	api := &stubAPI{}
	registry := session.NewRegistry(api, session.Options{})
	path, handler := NewAssistantService(registry).Handler(connect.WithInterceptors(NewTokenInterceptor(token)))

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewClient(server.Client(), server.URL, token), api, registry
}

func TestAssistantService_RecommendFlow(t *testing.T) {
	client, api, _ := newTestServer(t, "")
	ctx := context.Background()

	id, err := client.OpenSession(ctx)
	require.NoError(t, err)

	snap, err := client.LoadLibrary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Focus", snap.SelectedPlaylist)

	var seeds SeedResponse
	require.NoError(t, client.Call(ctx, AddSeedTrackProcedure, SeedTrackRequest{SessionID: id, URI: "spotify:track:liked0"}, &seeds))
	assert.True(t, seeds.Changed)
	assert.Equal(t, "liked", seeds.Seeds.Tracks[0].Source)

	value, enabled := 70, true
	require.NoError(t, client.Call(ctx, SetParameterProcedure, SetParameterRequest{
		SessionID: id, Parameter: "danceability", Value: &value, Enabled: &enabled,
	}, nil))
	require.NoError(t, client.Call(ctx, SetRecommendationCountProcedure, SetRecommendationCountRequest{SessionID: id, Count: 10}, nil))

	recs, err := client.Recommend(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"ambient"}, recs[0].Genres)
	api.mu.Lock()
	assert.Equal(t, map[string]float64{"target_danceability": 0.7}, api.targets)
	api.mu.Unlock()

	var export session.ExportView
	require.NoError(t, client.Call(ctx, ExportProcedure, ExportRequest{SessionID: id, Name: "Deep Focus"}, &export))
	assert.Equal(t, "https://open.spotify.com/playlist/created1", export.URL)
	assert.Equal(t, 3, export.Count)

	var played PlaybackResponse
	require.NoError(t, client.Call(ctx, PlayProcedure, PlayRequest{SessionID: id}, &played))
	assert.False(t, played.Played, "no active device")

	snap, err = client.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.RecommendationCount)
	assert.True(t, snap.Parameters["danceability"].Enabled)
	assert.Len(t, snap.Exports, 1)
}

func TestAssistantService_Search(t *testing.T) {
	client, _, _ := newTestServer(t, "")
	ctx := context.Background()
	id, err := client.OpenSession(ctx)
	require.NoError(t, err)

	err = client.Call(ctx, SearchProcedure, SearchRequest{SessionID: id}, nil)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	var staged search.Filters
	require.NoError(t, client.Call(ctx, StageGenreProcedure, StageGenreRequest{SessionID: id, Genre: "ambient"}, &staged))
	assert.True(t, staged.Genre.Enabled)

	var resp SearchResponse
	require.NoError(t, client.Call(ctx, SearchProcedure, SearchRequest{SessionID: id}, &resp))
	assert.Equal(t, `genre:"ambient"`, resp.Query)
	assert.Len(t, resp.Tracks, 1)
}

func TestAssistantService_ErrorCodes(t *testing.T) {
	client, _, _ := newTestServer(t, "")
	ctx := context.Background()
	id, err := client.OpenSession(ctx)
	require.NoError(t, err)

	tests := []struct {
		name      string
		procedure string
		req       any
		code      connect.Code
	}{
		{name: "no seeds", procedure: RecommendProcedure, req: SessionRequest{SessionID: id}, code: connect.CodeInvalidArgument},
		{name: "unknown session", procedure: SnapshotProcedure, req: SessionRequest{SessionID: "nope"}, code: connect.CodeNotFound},
		{name: "empty playlist name", procedure: ExportProcedure, req: ExportRequest{SessionID: id}, code: connect.CodeInvalidArgument},
		{name: "nothing to export", procedure: ExportProcedure, req: ExportRequest{SessionID: id, Name: "x"}, code: connect.CodeFailedPrecondition},
		{name: "unknown parameter", procedure: SetParameterProcedure, req: SetParameterRequest{SessionID: id, Parameter: "tempo"}, code: connect.CodeInvalidArgument},
		{name: "count out of range", procedure: SetRecommendationCountProcedure, req: SetRecommendationCountRequest{SessionID: id, Count: 500}, code: connect.CodeInvalidArgument},
		{name: "unknown track", procedure: AddSeedTrackProcedure, req: SeedTrackRequest{SessionID: id, URI: "spotify:track:x"}, code: connect.CodeNotFound},
		{name: "unknown playlist", procedure: SelectPlaylistProcedure, req: SelectPlaylistRequest{SessionID: id, Name: "Nope"}, code: connect.CodeNotFound},
		{name: "bad source", procedure: AnnotateGenresProcedure, req: AnnotateGenresRequest{SessionID: id, Source: "albums"}, code: connect.CodeInvalidArgument},
		{name: "nothing to annotate", procedure: AnnotateGenresProcedure, req: AnnotateGenresRequest{SessionID: id, Source: "search"}, code: connect.CodeFailedPrecondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Call(ctx, tt.procedure, tt.req, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestAssistantService_CloseSession(t *testing.T) {
	client, _, registry := newTestServer(t, "")
	ctx := context.Background()
	id, err := client.OpenSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Count())

	require.NoError(t, client.CloseSession(ctx, id))
	assert.Zero(t, registry.Count())

	err = client.CloseSession(ctx, id)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestTokenInterceptor(t *testing.T) {
	authed, _, _ := newTestServer(t, "secret")
	ctx := context.Background()

	_, err := authed.OpenSession(ctx)
	require.NoError(t, err)

	anonymous := NewClient(authed.httpClient, authed.baseURL, "")
	_, err = anonymous.OpenSession(ctx)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	wrong := NewClient(authed.httpClient, authed.baseURL, "guess")
	_, err = wrong.OpenSession(ctx)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	err = wrong.Subscribe(ctx, "any", func(StreamMessage) error { return nil })
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestAssistantService_Subscribe(t *testing.T) {
	client, _, _ := newTestServer(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := client.OpenSession(ctx)
	require.NoError(t, err)

	messages := make(chan StreamMessage, 8)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(ctx, id, func(m StreamMessage) error {
			messages <- m
			return nil
		})
	}()

	first := <-messages
	require.NotNil(t, first.Snapshot, "first message carries the snapshot")
	assert.Equal(t, id, first.Snapshot.ID)

	require.NoError(t, client.Call(ctx, AddSeedGenreProcedure, SeedGenreRequest{SessionID: id, Genre: "ambient"}, nil))
	event := <-messages
	require.NotNil(t, event.Event)
	assert.Equal(t, notification.KindSeedsChanged, event.Event.Kind)

	require.NoError(t, client.CloseSession(ctx, id))
	event = <-messages
	require.NotNil(t, event.Event)
	assert.Equal(t, notification.KindSessionClosed, event.Event.Kind)

	assert.NoError(t, <-done, "stream ends when the session closes")
}

func TestAssistantService_SubscribeClosedSession(t *testing.T) {
	client, _, registry := newTestServer(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := client.OpenSession(ctx)
	require.NoError(t, err)
	// Closed while a caller still holds the manager
	m, err := registry.Get(id)
	require.NoError(t, err)
	m.Close()

	err = client.Subscribe(ctx, id, func(StreamMessage) error { return nil })
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}
