package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/seedbox/internal/app/genre"
	"github.com/osa030/seedbox/internal/app/library"
	"github.com/osa030/seedbox/internal/app/notification"
	"github.com/osa030/seedbox/internal/app/playback"
	"github.com/osa030/seedbox/internal/app/recommend"
	"github.com/osa030/seedbox/internal/app/search"
	"github.com/osa030/seedbox/internal/app/session"
	"github.com/osa030/seedbox/internal/infra/spotify"
)

// errBadRequest marks request bodies that could not be decoded.
var errBadRequest = errors.New("bad request")

// toConnectError maps a failed user action onto a Connect error code.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	code := connect.CodeInternal
	var lookupFailure *genre.LookupFailure
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, recommend.ErrInvalidSeed),
		errors.Is(err, recommend.ErrInvalidLimit),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, session.ErrEmptyPlaylistName),
		errors.Is(err, playback.ErrNothingToPlay),
		errors.Is(err, library.ErrUnknownSource):
		code = connect.CodeInvalidArgument
	case errors.Is(err, session.ErrUnknownSession),
		errors.Is(err, session.ErrUnknownTrack),
		errors.Is(err, session.ErrUnknownArtist),
		errors.Is(err, library.ErrUnknownPlaylist):
		code = connect.CodeNotFound
	case errors.Is(err, session.ErrSessionClosed),
		errors.Is(err, session.ErrNoRecommendations),
		errors.Is(err, library.ErrNothingStored),
		errors.Is(err, notification.ErrHubClosed):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, spotify.ErrAuthFailure):
		code = connect.CodeUnauthenticated
	case errors.As(err, &lookupFailure):
		code = connect.CodeUnavailable
	default:
		zlog.Error().Msgf("request failed: %v", err)
	}
	return connect.NewError(code, err)
}
