package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/starswipe/internal/github"
)

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:8080/auth/github/callback", github.NewClient(github.Options{}))

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "read:user public_repo", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/auth/github/callback", q.Get("redirect_uri"))
}

func TestGitHubProvider_Exchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer","scope":"read:user,public_repo"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_abc", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":77,"login":"octo","avatar_url":"https://a/octo"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	endpoint := oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	api := github.NewClient(github.Options{BaseURL: srv.URL})
	p := NewGitHubProviderWithEndpoint("id", "secret", "http://cb", endpoint, api)

	user, token, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_abc", token)
	assert.Equal(t, int64(77), user.ID)
	assert.Equal(t, "octo", user.Login)
}

func TestGitHubProvider_ExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	endpoint := oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	p := NewGitHubProviderWithEndpoint("id", "secret", "http://cb", endpoint, github.NewClient(github.Options{BaseURL: srv.URL}))

	_, _, err := p.Exchange(context.Background(), "bad")
	assert.Error(t, err)
}
