// Package main provides the command line client for the seedbox server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/seedbox/internal/api/connect"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/app/session"
)

var (
	app    = kingpin.New("seedctl", "seedbox recommendation assistant client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "API token (or set SEEDBOX_API_TOKEN env)").Envar("SEEDBOX_API_TOKEN").String()

	openCmd = app.Command("open", "Open a new session")

	closeCmd     = app.Command("close", "Close a session")
	closeSession = closeCmd.Arg("session", "Session ID").Required().String()

	loadCmd     = app.Command("load", "Load the library into a session")
	loadSession = loadCmd.Arg("session", "Session ID").Required().String()

	moreCmd     = app.Command("more", "Fetch the next page of liked songs")
	moreSession = moreCmd.Arg("session", "Session ID").Required().String()

	statusCmd     = app.Command("status", "Show the session state")
	statusSession = statusCmd.Arg("session", "Session ID").Required().String()

	playlistCmd     = app.Command("playlist", "Select a playlist")
	playlistSession = playlistCmd.Arg("session", "Session ID").Required().String()
	playlistName    = playlistCmd.Arg("name", "Playlist name (prompted when omitted)").String()

	genresCmd     = app.Command("genres", "Annotate a list with artist genres")
	genresSession = genresCmd.Arg("session", "Session ID").Required().String()
	genresSource  = genresCmd.Arg("source", "recent, liked, playlist, search or recommendations").Required().String()

	searchCmd     = app.Command("search", "Search tracks or artists")
	searchSession = searchCmd.Arg("session", "Session ID").Required().String()
	searchArtist  = searchCmd.Flag("artist", "Artist filter").String()
	searchTrack   = searchCmd.Flag("track", "Track filter").String()
	searchGenre   = searchCmd.Flag("genre", "Genre filter").String()
	searchYear    = searchCmd.Flag("year", "Year or range, e.g. 1990-1999").String()
	searchType    = searchCmd.Flag("type", "Result type").Default("track").Enum("track", "artist")
	searchMore    = searchCmd.Flag("more", "Append the next page of the last search").Bool()

	seedCmd = app.Command("seed", "Edit recommendation seeds")

	seedTrackCmd     = seedCmd.Command("track", "Add a track seed")
	seedTrackSession = seedTrackCmd.Arg("session", "Session ID").Required().String()
	seedTrackURI     = seedTrackCmd.Arg("uri", "Track URI").Required().String()
	seedTrackRemove  = seedTrackCmd.Flag("remove", "Remove instead of add").Bool()

	seedArtistCmd     = seedCmd.Command("artist", "Add an artist seed")
	seedArtistSession = seedArtistCmd.Arg("session", "Session ID").Required().String()
	seedArtistURI     = seedArtistCmd.Arg("uri", "Artist URI").Required().String()
	seedArtistRemove  = seedArtistCmd.Flag("remove", "Remove instead of add").Bool()

	seedGenreCmd     = seedCmd.Command("genre", "Add a genre seed")
	seedGenreSession = seedGenreCmd.Arg("session", "Session ID").Required().String()
	seedGenreName    = seedGenreCmd.Arg("genre", "Genre").Required().String()
	seedGenreRemove  = seedGenreCmd.Flag("remove", "Remove instead of add").Bool()

	seedClearCmd     = seedCmd.Command("clear", "Remove every seed")
	seedClearSession = seedClearCmd.Arg("session", "Session ID").Required().String()

	paramCmd     = app.Command("param", "Set a tunable parameter")
	paramSession = paramCmd.Arg("session", "Session ID").Required().String()
	paramName    = paramCmd.Arg("name", "acousticness, energy, liveness, danceability or instrumentalness").Required().String()
	paramValue   = paramCmd.Arg("value", "Target value 0-100").Int()
	paramOff     = paramCmd.Flag("off", "Disable the parameter").Bool()

	countCmd     = app.Command("count", "Set how many recommendations to request")
	countSession = countCmd.Arg("session", "Session ID").Required().String()
	countValue   = countCmd.Arg("count", "Number of tracks (1-100)").Required().Int()

	recommendCmd     = app.Command("recommend", "Request recommendations")
	recommendSession = recommendCmd.Arg("session", "Session ID").Required().String()

	playCmd     = app.Command("play", "Play tracks on the active device")
	playSession = playCmd.Arg("session", "Session ID").Required().String()
	playURIs    = playCmd.Arg("uris", "Track URIs (recommendations when omitted)").Strings()

	queueCmd     = app.Command("queue", "Queue a track on the active device")
	queueSession = queueCmd.Arg("session", "Session ID").Required().String()
	queueURI     = queueCmd.Arg("uri", "Track URI").Required().String()

	exportCmd     = app.Command("export", "Save the recommendations as a new playlist")
	exportSession = exportCmd.Arg("session", "Session ID").Required().String()
	exportName    = exportCmd.Arg("name", "Playlist name (prompted when omitted)").String()

	watchCmd     = app.Command("watch", "Stream session events")
	watchSession = watchCmd.Arg("session", "Session ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx := context.Background()

	var err error
	switch command {
	case openCmd.FullCommand():
		err = open(ctx, client)
	case closeCmd.FullCommand():
		err = client.CloseSession(ctx, *closeSession)
	case loadCmd.FullCommand():
		err = load(ctx, client, *loadSession)
	case moreCmd.FullCommand():
		err = moreLiked(ctx, client, *moreSession)
	case statusCmd.FullCommand():
		err = status(ctx, client, *statusSession)
	case playlistCmd.FullCommand():
		err = selectPlaylist(ctx, client, *playlistSession, *playlistName)
	case genresCmd.FullCommand():
		err = annotate(ctx, client, *genresSession, *genresSource)
	case searchCmd.FullCommand():
		err = runSearch(ctx, client, *searchSession)
	case seedTrackCmd.FullCommand():
		err = editSeed(ctx, client, *seedTrackRemove, apiconnect.AddSeedTrackProcedure, apiconnect.RemoveSeedTrackProcedure,
			apiconnect.SeedTrackRequest{SessionID: *seedTrackSession, URI: *seedTrackURI})
	case seedArtistCmd.FullCommand():
		err = editSeed(ctx, client, *seedArtistRemove, apiconnect.AddSeedArtistProcedure, apiconnect.RemoveSeedArtistProcedure,
			apiconnect.SeedArtistRequest{SessionID: *seedArtistSession, URI: *seedArtistURI})
	case seedGenreCmd.FullCommand():
		err = editSeed(ctx, client, *seedGenreRemove, apiconnect.AddSeedGenreProcedure, apiconnect.RemoveSeedGenreProcedure,
			apiconnect.SeedGenreRequest{SessionID: *seedGenreSession, Genre: *seedGenreName})
	case seedClearCmd.FullCommand():
		err = editSeed(ctx, client, false, apiconnect.ClearSeedsProcedure, "",
			apiconnect.SessionRequest{SessionID: *seedClearSession})
	case paramCmd.FullCommand():
		err = setParameter(ctx, client, *paramSession, *paramName, *paramValue, !*paramOff)
	case countCmd.FullCommand():
		err = client.Call(ctx, apiconnect.SetRecommendationCountProcedure,
			apiconnect.SetRecommendationCountRequest{SessionID: *countSession, Count: *countValue}, nil)
	case recommendCmd.FullCommand():
		err = recommend(ctx, client, *recommendSession)
	case playCmd.FullCommand():
		err = play(ctx, client, apiconnect.PlayProcedure, apiconnect.PlayRequest{SessionID: *playSession, URIs: *playURIs})
	case queueCmd.FullCommand():
		err = play(ctx, client, apiconnect.QueueProcedure, apiconnect.QueueRequest{SessionID: *queueSession, URI: *queueURI})
	case exportCmd.FullCommand():
		err = export(ctx, client, *exportSession, *exportName)
	case watchCmd.FullCommand():
		err = watch(ctx, client, *watchSession)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func open(ctx context.Context, client *apiconnect.Client) error {
	id, err := client.OpenSession(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Session opened: %s\n", id)
	return nil
}

func load(ctx context.Context, client *apiconnect.Client, sessionID string) error {
	var snap session.Snapshot
	action := func(ctx context.Context) error {
		var err error
		snap, err = client.LoadLibrary(ctx, sessionID)
		return err
	}
	if err := spinner.New().Title("Loading library...").Context(ctx).ActionWithErr(action).Run(); err != nil {
		return err
	}
	printLists(snap)
	return nil
}

func moreLiked(ctx context.Context, client *apiconnect.Client, sessionID string) error {
	var resp apiconnect.TracksResponse
	if err := client.Call(ctx, apiconnect.MoreLikedProcedure, apiconnect.SessionRequest{SessionID: sessionID}, &resp); err != nil {
		return err
	}
	fmt.Printf("Liked songs: %d (more: %v)\n", len(resp.Tracks), resp.HasMore)
	return nil
}

func status(ctx context.Context, client *apiconnect.Client, sessionID string) error {
	snap, err := client.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== SESSION %s ===\n", snap.ID)
	printLists(snap)
	printSeeds(snap.Seeds)

	fmt.Println("\nParameters:")
	for name, target := range snap.Parameters {
		state := "off"
		if target.Enabled {
			state = "on"
		}
		fmt.Printf("  %-18s %3d (%s)\n", name, target.Value, state)
	}
	fmt.Printf("\nRecommendation count: %d (can recommend: %v)\n", snap.RecommendationCount, snap.CanRecommend)
	printTracks("Recommendations", snap.Recommendations)

	fmt.Printf("\nPlayback: %s", snap.Playback.State)
	if snap.Playback.Device != "" {
		fmt.Printf(" on %s", snap.Playback.Device)
	}
	fmt.Printf(" (queued: %d)\n", snap.Playback.Queued)

	for _, e := range snap.Exports {
		fmt.Printf("Exported: %s (%d tracks) %s\n", e.Name, e.Count, e.URL)
	}
	fmt.Printf("Cached artists: %d\n", snap.CachedArtists)
	return nil
}

func selectPlaylist(ctx context.Context, client *apiconnect.Client, sessionID, name string) error {
	if name == "" {
		snap, err := client.Snapshot(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(snap.Playlists) == 0 {
			return fmt.Errorf("no playlists loaded, run load first")
		}
		options := make([]huh.Option[string], len(snap.Playlists))
		for i, p := range snap.Playlists {
			options[i] = huh.NewOption(fmt.Sprintf("%s (%d)", p.Name, p.TrackCount), p.Name)
		}
		err = huh.NewSelect[string]().
			Height(10).
			Title("Choose a playlist").
			Options(options...).
			Value(&name).
			Run()
		if err != nil {
			return err
		}
	}

	var resp apiconnect.TracksResponse
	req := apiconnect.SelectPlaylistRequest{SessionID: sessionID, Name: name}
	if err := client.Call(ctx, apiconnect.SelectPlaylistProcedure, req, &resp); err != nil {
		return err
	}
	printTracks(name, resp.Tracks)
	return nil
}

func annotate(ctx context.Context, client *apiconnect.Client, sessionID, source string) error {
	var resp apiconnect.TracksResponse
	action := func(ctx context.Context) error {
		req := apiconnect.AnnotateGenresRequest{SessionID: sessionID, Source: source}
		return client.Call(ctx, apiconnect.AnnotateGenresProcedure, req, &resp)
	}
	if err := spinner.New().Title("Looking up genres...").Context(ctx).ActionWithErr(action).Run(); err != nil {
		return err
	}
	printTracks(source, resp.Tracks)
	return nil
}

func runSearch(ctx context.Context, client *apiconnect.Client, sessionID string) error {
	req := apiconnect.SearchRequest{SessionID: sessionID, More: *searchMore}
	if !*searchMore {
		req.Filters = &search.Filters{
			Artist: clause(*searchArtist),
			Track:  clause(*searchTrack),
			Genre:  clause(*searchGenre),
			Year:   clause(*searchYear),
			Type:   search.ResultType(*searchType),
		}
	}

	var resp apiconnect.SearchResponse
	if err := client.Call(ctx, apiconnect.SearchProcedure, req, &resp); err != nil {
		return err
	}

	fmt.Printf("Query: %s\n", resp.Query)
	if resp.Type == search.ResultArtists {
		fmt.Printf("\nArtists (%d):\n", len(resp.Artists))
		for _, a := range resp.Artists {
			fmt.Printf("  %s  %s\n", a.URI, a.Name)
		}
	} else {
		printTracks("Results", resp.Tracks)
	}
	if resp.HasMore {
		fmt.Println("More results available (--more)")
	}
	return nil
}

func clause(value string) search.Clause {
	return search.Clause{Enabled: strings.TrimSpace(value) != "", Value: value}
}

func editSeed(ctx context.Context, client *apiconnect.Client, remove bool, addProcedure, removeProcedure string, req any) error {
	procedure := addProcedure
	if remove {
		procedure = removeProcedure
	}
	var resp apiconnect.SeedResponse
	if err := client.Call(ctx, procedure, req, &resp); err != nil {
		return err
	}
	if !resp.Changed {
		fmt.Println("Seeds unchanged")
	}
	printSeeds(resp.Seeds)
	return nil
}

func setParameter(ctx context.Context, client *apiconnect.Client, sessionID, name string, value int, enabled bool) error {
	req := apiconnect.SetParameterRequest{SessionID: sessionID, Parameter: name, Enabled: &enabled}
	if enabled {
		req.Value = &value
	}
	return client.Call(ctx, apiconnect.SetParameterProcedure, req, nil)
}

func recommend(ctx context.Context, client *apiconnect.Client, sessionID string) error {
	var tracks []session.TrackView
	action := func(ctx context.Context) error {
		var err error
		tracks, err = client.Recommend(ctx, sessionID)
		return err
	}
	if err := spinner.New().Title("Requesting recommendations...").Context(ctx).ActionWithErr(action).Run(); err != nil {
		return err
	}
	printTracks("Recommendations", tracks)
	return nil
}

func play(ctx context.Context, client *apiconnect.Client, procedure string, req any) error {
	var resp apiconnect.PlaybackResponse
	if err := client.Call(ctx, procedure, req, &resp); err != nil {
		return err
	}
	if !resp.Played {
		fmt.Println("No active device, open Spotify on a device and retry")
		return nil
	}
	fmt.Println("Sent to the active device")
	return nil
}

func export(ctx context.Context, client *apiconnect.Client, sessionID, name string) error {
	if name == "" {
		err := huh.NewInput().
			Title("Name the new playlist").
			Value(&name).
			Run()
		if err != nil {
			return err
		}
	}

	var resp session.ExportView
	req := apiconnect.ExportRequest{SessionID: sessionID, Name: name}
	if err := client.Call(ctx, apiconnect.ExportProcedure, req, &resp); err != nil {
		return err
	}
	fmt.Printf("Created %s with %d tracks: %s\n", resp.Name, resp.Count, resp.URL)
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client, sessionID string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching session events. Press Ctrl+C to exit.")
	return client.Subscribe(ctx, sessionID, func(m apiconnect.StreamMessage) error {
		switch {
		case m.Snapshot != nil:
			fmt.Printf("[snapshot] session=%s seeds=%d recommendations=%d\n",
				m.Snapshot.ID, m.Snapshot.Seeds.Count, len(m.Snapshot.Recommendations))
		case m.Event != nil:
			e := m.Event
			fmt.Printf("[%s] #%d %s", e.Time.Format("15:04:05"), e.SequenceNo, e.Kind)
			if e.Source != "" {
				fmt.Printf(" source=%s", e.Source)
			}
			fmt.Printf(" count=%d\n", e.Count)
		}
		return nil
	})
}

func printLists(snap session.Snapshot) {
	fmt.Println("\nLists:")
	for _, l := range snap.Lists {
		fmt.Printf("  %-16s %4d tracks  more=%v genres=%v\n", l.Source, len(l.Tracks), l.HasMore, l.HasGenres)
	}
	if len(snap.Playlists) > 0 {
		fmt.Println("\nPlaylists:")
		for _, p := range snap.Playlists {
			marker := " "
			if p.Selected {
				marker = "*"
			}
			fmt.Printf("  %s %s (%d)\n", marker, p.Name, p.TrackCount)
		}
	}
}

func printSeeds(seeds session.SeedView) {
	fmt.Printf("\nSeeds (%d of 1-5):\n", seeds.Count)
	for _, t := range seeds.Tracks {
		fmt.Printf("  track  %s [%s]\n", t.URI, t.Source)
	}
	for _, a := range seeds.Artists {
		fmt.Printf("  artist %s %s\n", a.URI, a.Name)
	}
	for _, g := range seeds.Genres {
		fmt.Printf("  genre  %s\n", g)
	}
	if seeds.TooMany {
		fmt.Println("  Too many seeds, remove some before requesting recommendations")
	}
}

func printTracks(title string, tracks []session.TrackView) {
	fmt.Printf("\n%s (%d):\n", title, len(tracks))
	for i, t := range tracks {
		artists := make([]string, len(t.Artists))
		for j, a := range t.Artists {
			artists[j] = a.Name
		}
		seeded := " "
		if t.Seeded {
			seeded = "*"
		}
		fmt.Printf("%s %2d. %s - %s", seeded, i+1, strings.Join(artists, ", "), t.Name)
		if len(t.Genres) > 0 {
			fmt.Printf(" [%s]", strings.Join(t.Genres, ", "))
		}
		fmt.Printf("  %s\n", t.URI)
	}
}
