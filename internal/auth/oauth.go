package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/sakif/starswipe/internal/github"
)

// Scopes requested from GitHub:
//   - "read:user": the profile (id, login, name, avatar)
//   - "public_repo": starring public repositories on the user's behalf
var Scopes = []string{"read:user", "public_repo"}

// GitHubProvider runs the GitHub authorization-code flow.
//
// The code-for-token exchange is server to server with the client secret, so
// the access token never reaches the browser. It is handed to the caller,
// which stores it encrypted for later star pushes.
type GitHubProvider struct {
	config *oauth2.Config
	api    *github.Client
}

// NewGitHubProvider creates a provider. callbackURL must match the OAuth
// app's "Authorization callback URL" exactly. api is used to read the
// authenticated profile after the exchange.
func NewGitHubProvider(clientID, clientSecret, callbackURL string, api *github.Client) *GitHubProvider {
	return NewGitHubProviderWithEndpoint(clientID, clientSecret, callbackURL, oauthgithub.Endpoint, api)
}

// NewGitHubProviderWithEndpoint overrides GitHub's OAuth endpoints. Tests
// point it at an httptest server.
func NewGitHubProviderWithEndpoint(clientID, clientSecret, callbackURL string, endpoint oauth2.Endpoint, api *github.Client) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       Scopes,
			Endpoint:     endpoint,
		},
		api: api,
	}
}

// AuthURL returns the GitHub authorization URL. state is echoed back on the
// callback and compared against the state cookie to stop login CSRF.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for an access token and loads the
// profile it belongs to.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*github.User, string, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	u, err := p.api.GetAuthenticatedUser(ctx, tok.AccessToken)
	if err != nil {
		return nil, "", fmt.Errorf("auth: loading GitHub profile: %w", err)
	}
	return u, tok.AccessToken, nil
}
