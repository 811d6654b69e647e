// Package oauth obtains bearer sessions with the client-credentials flow.
package oauth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"secopsmcp/internal/auth"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"
)

// TokenPath is the client-credentials endpoint, relative to the API base.
const TokenPath = "/oauth2/token"

// Authenticator exchanges client credentials for a bearer session.
type Authenticator struct {
	client       *transport.Client
	clientID     string
	clientSecret string
	logger       *slog.Logger
}

func NewAuthenticator(client *transport.Client, clientID, clientSecret string, logger *slog.Logger) *Authenticator {
	return &Authenticator{client: client, clientID: clientID, clientSecret: clientSecret, logger: logger}
}

// Configured reports whether base URL and credentials are all present.
func (a *Authenticator) Configured() bool {
	return a.client.Configured() && a.clientID != "" && a.clientSecret != ""
}

// Authenticate runs one token exchange. A response without access_token is an
// authentication failure whatever its HTTP status.
func (a *Authenticator) Authenticate(ctx context.Context) (*auth.Session, error) {
	if !a.Configured() {
		return nil, domain.Errorf(domain.ConfigurationMissing,
			"Server configuration (API Base URL, Client ID, Client Secret) is not set.")
	}

	res := a.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   TokenPath,
		Form: url.Values{
			"client_id":     {a.clientID},
			"client_secret": {a.clientSecret},
		},
		Anonymous: true,
	})
	if !res.OK() {
		a.logger.Warn("authentication failed", "kind", res.Err.Kind, "detail", res.Err.Detail)
		switch res.Err.Kind {
		case domain.TransportError, domain.ConfigurationMissing:
			return nil, res.Err
		}
		// Anything the token endpoint answers without a token is an auth failure.
		return nil, &domain.Error{Kind: domain.AuthenticationExpired, Detail: res.Err.Detail, Raw: res.Err.Raw}
	}

	body, _ := res.Payload.(map[string]any)
	token, _ := body["access_token"].(string)
	if token == "" {
		a.logger.Warn("authentication response carried no access_token")
		return nil, &domain.Error{
			Kind:   domain.AuthenticationExpired,
			Detail: "Failed to process the authentication request.",
			Raw:    res.Payload,
		}
	}

	a.logger.Info("obtained access token")
	return auth.BearerSession(token), nil
}
