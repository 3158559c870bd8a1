package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/seedbox/internal/app/library"
	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/recommend"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/domain/playlist"
	"github.com/osa030/seedbox/internal/domain/track"
	"github.com/osa030/seedbox/internal/infra/spotify"
)

type recommendationCall struct {
	seedArtists []string
	seedTracks  []string
	limit       int
	targets     map[string]float64
}

// fakeAPI is an in-memory Web API.
type fakeAPI struct {
	recent         []track.Track
	liked          []track.Track
	playlists      []playlist.Playlist
	playlistTracks map[string][]track.Track
	searchTracks   map[string][]track.Track
	searchArtists  map[string][]track.ArtistRef
	genres         map[string][]string
	recommended    []track.Track
	devices        []spotify.Device

	recommendErr error
	addErr       error

	genreCalls      int
	recommendations []recommendationCall
	played          [][]string
	queued          []string
	created         []string
	added           map[string][]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		recent: makeTracks("recent", 3),
		liked:  makeTracks("liked", 8),
		playlists: []playlist.Playlist{
			{ID: "p1", URI: "spotify:playlist:p1", Name: "Chill"},
			{ID: "p2", URI: "spotify:playlist:p2", Name: "Chill"},
		},
		playlistTracks: map[string][]track.Track{
			"spotify:playlist:p1": makeTracks("chill", 2),
			"spotify:playlist:p2": makeTracks("chill2-", 2),
		},
		searchTracks:  map[string][]track.Track{},
		searchArtists: map[string][]track.ArtistRef{},
		genres: map[string][]string{
			"spotify:artist:liked":  {"indie pop"},
			"spotify:artist:recent": {"jazz"},
			"spotify:artist:rec":    {"dream pop", "shoegaze"},
		},
		recommended: makeTracks("rec", 4),
		added:       make(map[string][]string),
	}
}

func (f *fakeAPI) RecentlyPlayed(context.Context) ([]track.Track, error) {
	return f.recent, nil
}

func (f *fakeAPI) SavedTracks(_ context.Context, limit, offset int) ([]track.Track, bool, error) {
	return page(f.liked, limit, offset)
}

func (f *fakeAPI) AllPlaylists(context.Context) ([]playlist.Playlist, error) {
	return f.playlists, nil
}

func (f *fakeAPI) AllPlaylistTracks(_ context.Context, ref string) ([]track.Track, error) {
	return f.playlistTracks[ref], nil
}

func (f *fakeAPI) SearchTracks(_ context.Context, query string, limit, offset int) ([]track.Track, bool, error) {
	return page(f.searchTracks[query], limit, offset)
}

func (f *fakeAPI) SearchArtists(_ context.Context, query string, limit, offset int) ([]track.ArtistRef, bool, error) {
	all := f.searchArtists[query]
	if offset >= len(all) {
		return []track.ArtistRef{}, false, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], end < len(all), nil
}

func (f *fakeAPI) ArtistGenres(_ context.Context, uris []string) (map[string][]string, error) {
	f.genreCalls++
	out := make(map[string][]string, len(uris))
	for _, uri := range uris {
		out[uri] = f.genres[uri]
	}
	return out, nil
}

func (f *fakeAPI) Devices(context.Context) ([]spotify.Device, error) {
	return f.devices, nil
}

func (f *fakeAPI) Play(_ context.Context, uris []string) error {
	f.played = append(f.played, uris)
	return nil
}

func (f *fakeAPI) Queue(_ context.Context, uri string) error {
	f.queued = append(f.queued, uri)
	return nil
}

func (f *fakeAPI) Recommendations(_ context.Context, seedArtists, seedTracks []string, limit int, targets map[string]float64) ([]track.Track, error) {
	f.recommendations = append(f.recommendations, recommendationCall{seedArtists, seedTracks, limit, targets})
	if f.recommendErr != nil {
		return nil, f.recommendErr
	}
	return f.recommended, nil
}

func (f *fakeAPI) CreatePlaylist(_ context.Context, name, _ string) (string, error) {
	id := fmt.Sprintf("new%d", len(f.created)+1)
	f.created = append(f.created, name)
	return id, nil
}

func (f *fakeAPI) AddTracksToPlaylist(_ context.Context, id string, refs []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added[id] = append(f.added[id], refs...)
	return nil
}

func (f *fakeAPI) GetPlaylistURL(id string) string {
	return "https://open.spotify.com/playlist/" + id
}

func page(all []track.Track, limit, offset int) ([]track.Track, bool, error) {
	if offset >= len(all) {
		return []track.Track{}, false, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], end < len(all), nil
}

func makeTracks(prefix string, n int) []track.Track {
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

func newTestManager(t *testing.T) (*Manager, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	m := NewManager("test-session", api, Options{DefaultCount: 20})
	_, err := m.LoadLibrary(context.Background())
	require.NoError(t, err)
	return m, api
}

func TestManager_LoadLibrary(t *testing.T) {
	m, _ := newTestManager(t)
	snap := m.Snapshot()

	assert.Equal(t, "test-session", snap.ID)
	assert.Equal(t, "Chill", snap.SelectedPlaylist)
	require.Len(t, snap.Playlists, 2)
	assert.Equal(t, "Chill (2)", snap.Playlists[1].Name)
	assert.True(t, snap.Playlists[0].Selected)

	counts := make(map[string]int)
	for _, l := range snap.Lists {
		counts[l.Source] = len(l.Tracks)
	}
	assert.Equal(t, map[string]int{"liked": 8, "recent": 3, "search": 0, "playlist:Chill": 2}, counts)
	assert.True(t, snap.Seeds.TooFew)
	assert.False(t, snap.CanRecommend)
	assert.Equal(t, 20, snap.RecommendationCount)
}

func TestManager_RecommendScenario(t *testing.T) {
	m, api := newTestManager(t)
	ctx := context.Background()

	liked, err := m.Tracks("liked")
	require.NoError(t, err)
	for _, tr := range liked[:5] {
		added, err := m.AddSeedTrack(tr.URI, "")
		require.NoError(t, err)
		assert.True(t, added)
	}
	require.NoError(t, m.SetRecommendationCount(20))
	require.NoError(t, m.SetParameter(recommend.Danceability, 70))
	require.NoError(t, m.EnableParameter(recommend.Danceability, true))
	require.NoError(t, m.SetParameter(recommend.Energy, 10))

	recs, err := m.Recommend(ctx)
	require.NoError(t, err)

	require.Len(t, api.recommendations, 1)
	call := api.recommendations[0]
	assert.Equal(t, 20, call.limit)
	assert.Equal(t, track.URIs(liked[:5]), call.seedTracks)
	assert.Empty(t, call.seedArtists)
	assert.Equal(t, map[string]float64{"target_danceability": 0.70}, call.targets)

	require.Len(t, recs, 4)
	assert.Equal(t, []string{"dream pop", "shoegaze"}, recs[0].Genres, "results are enriched")

	snap := m.Snapshot()
	assert.Equal(t, "liked", snap.Seeds.Tracks[0].Source)
	assert.Len(t, snap.Recommendations, 4)
}

func TestManager_RecommendRejectsInvalidSeeds(t *testing.T) {
	m, api := newTestManager(t)
	ctx := context.Background()

	_, err := m.Recommend(ctx)
	assert.ErrorIs(t, err, recommend.ErrInvalidSeed)
	assert.Empty(t, api.recommendations, "no API call without seeds")

	liked, err := m.Tracks("liked")
	require.NoError(t, err)
	for _, tr := range liked[:6] {
		_, err := m.AddSeedTrack(tr.URI, "liked")
		require.NoError(t, err)
	}
	assert.True(t, m.Snapshot().Seeds.TooMany)

	_, err = m.Recommend(ctx)
	assert.ErrorIs(t, err, recommend.ErrInvalidSeed)
	assert.Empty(t, api.recommendations)
}

func TestManager_FailedRecommendKeepsResults(t *testing.T) {
	m, api := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddSeedTrack("spotify:track:recent0", "")
	require.NoError(t, err)
	_, err = m.Recommend(ctx)
	require.NoError(t, err)

	api.recommendErr = errors.New("503 service unavailable")
	_, err = m.Recommend(ctx)
	require.Error(t, err)
	assert.Len(t, m.Recommendations(), 4)
}

// noErr fails the test when a seed edit errs and returns whether it changed the set.
func noErr(t *testing.T) func(bool, error) bool {
	return func(changed bool, err error) bool {
		t.Helper()
		require.NoError(t, err)
		return changed
	}
}

func TestManager_Seeds(t *testing.T) {
	m, _ := newTestManager(t)
	must := noErr(t)

	_, err := m.AddSeedTrack("spotify:track:unknown", "")
	assert.ErrorIs(t, err, ErrUnknownTrack)

	added, err := m.AddSeedTrack("spotify:track:chill0", "")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = m.AddSeedTrack("spotify:track:chill0", "")
	require.NoError(t, err)
	assert.False(t, added, "duplicate is a no-op")

	added, err = m.AddSeedArtist(track.ArtistRef{URI: "spotify:artist:recent"})
	require.NoError(t, err)
	assert.True(t, added)

	_, err = m.AddSeedArtist(track.ArtistRef{URI: "spotify:artist:nobody"})
	assert.ErrorIs(t, err, ErrUnknownArtist)

	assert.True(t, must(m.AddSeedGenre("jazz")))
	assert.False(t, must(m.AddSeedGenre("jazz")))

	snap := m.Snapshot()
	assert.Equal(t, "Chill", snap.Seeds.Tracks[0].Source)
	assert.Equal(t, []ArtistView{{URI: "spotify:artist:recent", Name: "recent"}}, snap.Seeds.Artists)
	assert.Equal(t, []string{"jazz"}, snap.Seeds.Genres)
	assert.Equal(t, 2, snap.Seeds.Count, "genres are not counted")

	assert.True(t, must(m.RemoveSeedTrack("spotify:track:chill0")))
	assert.False(t, must(m.RemoveSeedTrack("spotify:track:chill0")))
	assert.True(t, must(m.RemoveSeedArtist("spotify:artist:recent")))
	assert.True(t, must(m.RemoveSeedGenre("jazz")))

	require.NoError(t, m.ClearSeeds())
	assert.True(t, m.Snapshot().Seeds.TooFew)
}

func TestManager_Search(t *testing.T) {
	m, api := newTestManager(t)
	ctx := context.Background()
	api.searchTracks[`artist:"Slowdive"`] = makeTracks("slowdive", 25)
	api.searchTracks[`genre:"shoegaze"`] = makeTracks("shoegaze", 5)
	api.searchArtists[`artist:"Slowdive"`] = []track.ArtistRef{{URI: "spotify:artist:sd", Name: "Slowdive"}}

	_, err := m.Search(ctx, false)
	assert.ErrorIs(t, err, search.ErrEmptyQuery)

	_, err = m.SetSearch(search.Filters{
		Artist: search.Clause{Enabled: true, Value: "Slowdive"},
		Track:  search.Clause{Enabled: false, Value: "Alison"},
	})
	require.NoError(t, err)
	result, err := m.Search(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, `artist:"Slowdive"`, result.Query)
	assert.Len(t, result.Tracks, 20)
	assert.True(t, result.HasMore)

	result, err = m.Search(ctx, true)
	require.NoError(t, err)
	assert.Len(t, result.Tracks, 5)
	stored, err := m.Tracks("search")
	require.NoError(t, err)
	assert.Len(t, stored, 25)

	// A staged genre changes the query, so "more" starts over
	filters, err := m.StageGenre("shoegaze")
	require.NoError(t, err)
	filters.Artist.Enabled = false
	_, err = m.SetSearch(filters)
	require.NoError(t, err)
	_, err = m.Search(ctx, true)
	require.NoError(t, err)
	stored, err = m.Tracks("search")
	require.NoError(t, err)
	assert.Equal(t, makeTracks("shoegaze", 5), stored)

	_, err = m.StageGenre("  ")
	assert.Error(t, err)
}

func TestManager_SearchArtists(t *testing.T) {
	m, api := newTestManager(t)
	api.searchArtists[`artist:"Slowdive"`] = []track.ArtistRef{{URI: "spotify:artist:sd", Name: "Slowdive"}}

	filters, err := m.SetSearch(search.Filters{
		Artist: search.Clause{Enabled: true, Value: "Slowdive"},
		Year:   search.Clause{Enabled: true, Value: "1993"},
		Type:   search.ResultArtists,
	})
	require.NoError(t, err)
	assert.False(t, filters.Year.Enabled, "artist searches drop the year clause")

	result, err := m.Search(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, search.ResultArtists, result.Type)
	assert.Equal(t, []track.ArtistRef{{URI: "spotify:artist:sd", Name: "Slowdive"}}, result.Artists)

	added, err := m.AddSeedArtist(track.ArtistRef{URI: "spotify:artist:sd"})
	require.NoError(t, err)
	assert.True(t, added)
}

func TestManager_AnnotateGenres(t *testing.T) {
	m, api := newTestManager(t)
	ctx := context.Background()

	tracks, err := m.AnnotateGenres(ctx, "recent")
	require.NoError(t, err)
	assert.Equal(t, []string{"jazz"}, tracks[0].Genres)

	_, err = m.AnnotateGenres(ctx, "recent")
	require.NoError(t, err)
	assert.Equal(t, 1, api.genreCalls, "cached artists are not looked up again")

	_, err = m.AnnotateGenres(ctx, "albums")
	assert.Error(t, err)

	_, err = m.AnnotateGenres(ctx, "playlist:Chill")
	require.NoError(t, err)
	assert.True(t, m.Snapshot().Playlists[0].HasGenreAnnotations)
}

func TestManager_Playback(t *testing.T) {
	m, api := newTestManager(t)
	ctx := context.Background()

	played, err := m.PlayTracks(ctx, []string{"spotify:track:liked0"})
	require.NoError(t, err)
	assert.False(t, played, "no active device")
	assert.Empty(t, api.played)

	_, err = m.PlayRecommendations(ctx)
	assert.ErrorIs(t, err, ErrNoRecommendations)

	api.devices = []spotify.Device{{ID: "d1", Name: "Desk", Active: true}}
	_, err = m.AddSeedTrack("spotify:track:liked0", "")
	require.NoError(t, err)
	_, err = m.Recommend(ctx)
	require.NoError(t, err)

	played, err = m.PlayRecommendations(ctx)
	require.NoError(t, err)
	assert.True(t, played)
	assert.Equal(t, track.URIs(api.recommended), api.played[0])

	queued, err := m.Queue(ctx, "spotify:track:liked1")
	require.NoError(t, err)
	assert.True(t, queued)

	snap := m.Snapshot()
	assert.Equal(t, PlaybackView{State: "playing", Device: "Desk", Queued: 1}, snap.Playback)
}

func TestManager_ExportPlaylist(t *testing.T) {
	m, api := newTestManager(t)
	ctx := context.Background()

	_, err := m.ExportPlaylist(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyPlaylistName)

	_, err = m.ExportPlaylist(ctx, "Mix")
	assert.ErrorIs(t, err, ErrNoRecommendations)
	assert.Empty(t, api.created)

	_, err = m.AddSeedTrack("spotify:track:liked0", "")
	require.NoError(t, err)
	_, err = m.Recommend(ctx)
	require.NoError(t, err)

	export, err := m.ExportPlaylist(ctx, "Mix")
	require.NoError(t, err)
	assert.Equal(t, ExportView{
		ID:    "new1",
		Name:  "Mix",
		URL:   "https://open.spotify.com/playlist/new1",
		Count: 4,
	}, export)
	assert.Equal(t, track.URIs(api.recommended), api.added["new1"])
	assert.Equal(t, []ExportView{export}, m.Snapshot().Exports)

	api.addErr = errors.New("500 internal")
	_, err = m.ExportPlaylist(ctx, "Mix 2")
	assert.Error(t, err)
	assert.Len(t, m.Snapshot().Exports, 1)
}

func TestManager_PublishesEvents(t *testing.T) {
	m, _ := newTestManager(t)
	stream := notification.NewChannelStream(16)
	_, err := m.Hub().Subscribe(stream)
	require.NoError(t, err)

	_, err = m.AddSeedTrack("spotify:track:liked0", "")
	require.NoError(t, err)
	require.NoError(t, m.EnableParameter(recommend.Energy, true))
	_, _, err = m.MoreLiked(context.Background())
	require.NoError(t, err)

	var kinds []notification.Kind
	for i := 0; i < 3; i++ {
		kinds = append(kinds, (<-stream.Events()).Kind)
	}
	assert.Equal(t, []notification.Kind{
		notification.KindSeedsChanged,
		notification.KindParametersChanged,
		notification.KindLibraryChanged,
	}, kinds)
}

func TestManager_ClosedSessionRejectsActions(t *testing.T) {
	m, _ := newTestManager(t)
	stream := notification.NewChannelStream(4)
	_, err := m.Hub().Subscribe(stream)
	require.NoError(t, err)

	m.Close()
	m.Close()
	assert.True(t, m.Closed())
	assert.Equal(t, notification.KindSessionClosed, (<-stream.Events()).Kind)
	assert.Zero(t, m.Hub().SubscriberCount())

	_, err = m.Hub().Subscribe(notification.NewChannelStream(4))
	assert.ErrorIs(t, err, notification.ErrHubClosed)

	ctx := context.Background()
	actions := []struct {
		name string
		run  func() error
	}{
		{"load library", func() error { _, err := m.LoadLibrary(ctx); return err }},
		{"recommend", func() error { _, err := m.Recommend(ctx); return err }},
		{"add seed track", func() error { _, err := m.AddSeedTrack("spotify:track:liked0", ""); return err }},
		{"remove seed track", func() error { _, err := m.RemoveSeedTrack("spotify:track:liked0"); return err }},
		{"add seed genre", func() error { _, err := m.AddSeedGenre("jazz"); return err }},
		{"remove seed genre", func() error { _, err := m.RemoveSeedGenre("jazz"); return err }},
		{"clear seeds", m.ClearSeeds},
		{"stage genre", func() error { _, err := m.StageGenre("jazz"); return err }},
		{"set search", func() error { _, err := m.SetSearch(search.Filters{}); return err }},
		{"set parameter", func() error { return m.SetParameter(recommend.Energy, 10) }},
		{"enable parameter", func() error { return m.EnableParameter(recommend.Energy, true) }},
		{"set count", func() error { return m.SetRecommendationCount(10) }},
	}
	for _, tt := range actions {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), ErrSessionClosed)
		})
	}

	snap := m.Snapshot()
	assert.Equal(t, 20, snap.RecommendationCount, "rejected edits leave state alone")
	assert.Empty(t, snap.Seeds.Genres)
}

func TestManager_RecommendDropsUnplayable(t *testing.T) {
	m, api := newTestManager(t)
	unplayable, playable := false, true
	api.recommended = makeTracks("rec", 3)
	api.recommended[0].IsPlayable = &playable
	api.recommended[1].IsPlayable = &unplayable

	_, err := m.AddSeedTrack("spotify:track:liked0", "")
	require.NoError(t, err)
	recs, err := m.Recommend(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"spotify:track:rec0", "spotify:track:rec2"}, track.URIs(recs))
}

func TestManager_ConcurrentActionsShareGenreLookups(t *testing.T) {
	api := newFakeAPI()
	api.liked = make([]track.Track, 70)
	for i := range api.liked {
		api.liked[i] = track.Track{
			URI:     fmt.Sprintf("spotify:track:liked%d", i),
			Name:    fmt.Sprintf("liked %d", i),
			Artists: []track.ArtistRef{{URI: fmt.Sprintf("spotify:artist:liked-%d", i), Name: fmt.Sprintf("artist %d", i)}},
		}
	}
	m := NewManager("concurrent", api, Options{LikedPageSize: 100, DefaultCount: 20})
	ctx := context.Background()
	_, err := m.LoadLibrary(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.AnnotateGenres(ctx, "liked"); err != nil {
				errs <- err
			}
			if _, err := m.AnnotateGenres(ctx, "recent"); err != nil {
				errs <- err
			}
			_ = m.Snapshot()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	// 70 liked artists take two batches, the recent artist one more
	assert.Equal(t, 3, api.genreCalls)
	assert.True(t, m.Snapshot().Lists[0].HasGenres)
}

func TestManager_SetRecommendationCount(t *testing.T) {
	m, _ := newTestManager(t)

	assert.ErrorIs(t, m.SetRecommendationCount(0), recommend.ErrInvalidLimit)
	assert.ErrorIs(t, m.SetRecommendationCount(101), recommend.ErrInvalidLimit)
	require.NoError(t, m.SetRecommendationCount(100))
	assert.Equal(t, 100, m.Snapshot().RecommendationCount)
}

func TestManager_Tracks(t *testing.T) {
	m, _ := newTestManager(t)

	tracks, err := m.Tracks(library.PlaylistSource("Chill").String())
	require.NoError(t, err)
	assert.Len(t, tracks, 2)

	tracks, err = m.Tracks("recommendations")
	require.NoError(t, err)
	assert.Empty(t, tracks)
}
