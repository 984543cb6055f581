// Package sparkbridge connects SQL adapter code to a remote Spark execution
// session. A connection is a persistent duplex socket; statements travel as
// code fragments, and the bridge blocks on the async reply stream so callers
// see an ordinary synchronous cursor.
package sparkbridge

import (
	"context"

	"github.com/lakefront-db/sparkbridge/auth"
	"github.com/lakefront-db/sparkbridge/bridge"
	"github.com/lakefront-db/sparkbridge/config"
	"github.com/lakefront-db/sparkbridge/protocol"
	"github.com/lakefront-db/sparkbridge/transport"
	"github.com/lakefront-db/sparkbridge/transport/ws"
)

// NewManager builds a connection manager for the given profile. The
// authenticator supplies handshake headers per dial; pass nil for
// unauthenticated endpoints. A nil logger disables logging.
func NewManager(profile *config.Profile, authenticator auth.Authenticator, logger bridge.Logger) *bridge.ConnectionManager {
	factory := NewDialFactory(profile, authenticator)
	return bridge.NewConnectionManager(factory, bridge.ManagerOptions{
		Logger:            logger,
		ConnectTimeout:    profile.ConnectTimeout,
		QueryTimeout:      profile.QueryTimeout,
		ConnectRetries:    profile.ConnectRetries,
		RetryAll:          profile.RetryAll,
		SessionParameters: profile.ServerSideParameters,
	})
}

// NewDialFactory builds the websocket dial path for a profile. Tokens are
// fetched per attempt so retries never reuse a stale credential.
func NewDialFactory(profile *config.Profile, authenticator auth.Authenticator) transport.Factory {
	return func(ctx context.Context) (transport.Transport, error) {
		opts := ws.Options{
			Endpoint:           profile.Endpoint,
			ConnectTimeout:     profile.ConnectTimeout,
			CloseTimeout:       profile.CloseTimeout,
			InsecureSkipVerify: profile.InsecureSkipVerify,
		}
		if authenticator != nil {
			headers, err := authenticator.Headers(ctx)
			if err != nil {
				return nil, protocol.AuthError("token retrieval failed", map[string]any{
					"error": err.Error(),
				})
			}
			opts.Headers = headers
		}
		return ws.Dial(ctx, opts)
	}
}

// NewTokenAuthenticator builds the token flow for a profile's control plane.
func NewTokenAuthenticator(profile *config.Profile) *auth.TokenAuthenticator {
	return auth.NewTokenAuthenticator(auth.Credentials{
		Host:               profile.Host,
		Instance:           profile.Instance,
		User:               profile.User,
		APIKey:             profile.APIKey,
		InsecureSkipVerify: profile.InsecureSkipVerify,
	})
}
