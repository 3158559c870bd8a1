package connect

import (
	"context"
	"crypto/subtle"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	// APITokenHeader is the header name for the API token.
	APITokenHeader = "X-Api-Token"
)

var errInvalidToken = errors.New("missing or invalid API token")

// TokenInterceptor checks the API token on incoming requests and attaches it
// to outgoing ones. An empty token disables the check.
type TokenInterceptor struct {
	token string
}

// NewTokenInterceptor creates an interceptor for token.
func NewTokenInterceptor(token string) *TokenInterceptor {
	return &TokenInterceptor{token: token}
}

// WrapUnary implements connect.Interceptor.
func (i *TokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			i.attach(req.Header())
			return next(ctx, req)
		}
		if err := i.check(req.Header(), req.Spec().Procedure); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		i.attach(conn.RequestHeader())
		return conn
	}
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader(), conn.Spec().Procedure); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *TokenInterceptor) attach(header http.Header) {
	if i.token != "" {
		header.Set(APITokenHeader, i.token)
	}
}

func (i *TokenInterceptor) check(header http.Header, procedure string) error {
	if i.token == "" {
		return nil
	}
	token := header.Get(APITokenHeader)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		zlog.Warn().Msgf("rejected request: procedure=%s reason=invalid_token", procedureName(procedure))
		return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
	}
	return nil
}
