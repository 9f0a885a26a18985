package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starswipe/internal/auth"
	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/model"
)

func newTestAuthService(t *testing.T, e *testEnv) (*AuthService, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-that-is-long-enough-for-hs256")
	require.NoError(t, err)
	return NewAuthService(e.store, tokens, e.enc, e.logger), tokens
}

func TestLoginWithGitHub(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	svc, tokens := newTestAuthService(t, e)

	res, err := svc.LoginWithGitHub(ctx, &github.User{ID: 42, Login: "octo", Name: "Octo Cat", AvatarURL: "https://a/1"}, "gho_first")
	require.NoError(t, err)
	require.NotEmpty(t, res.User.ID)
	assert.Equal(t, "octo", res.User.Username)
	assert.Equal(t, model.RoleUser, res.User.Role)
	assert.Equal(t, 1.0, res.User.TrustScore)

	sub, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sub)

	cred, err := e.store.GetCredential(ctx, res.User.ID, model.ProviderGitHub)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "42", cred.ProviderAccountID)
	assert.NotEqual(t, "gho_first", cred.AccessToken)
	plain, err := e.enc.Decrypt(cred.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "gho_first", plain)

	st, err := e.store.GetStreak(ctx, res.User.ID)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Zero(t, st.Current)

	// Second login keeps the id and refreshes profile and token.
	again, err := svc.LoginWithGitHub(ctx, &github.User{ID: 42, Login: "octo-renamed"}, "gho_second")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)
	assert.Equal(t, "octo-renamed", again.User.Username)

	cred, err = e.store.GetCredential(ctx, res.User.ID, model.ProviderGitHub)
	require.NoError(t, err)
	plain, err = e.enc.Decrypt(cred.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "gho_second", plain)
}

func TestLoginWithGitHub_KeepsStreak(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	svc, _ := newTestAuthService(t, e)

	res, err := svc.LoginWithGitHub(ctx, &github.User{ID: 42, Login: "octo"}, "gho")
	require.NoError(t, err)
	require.NoError(t, e.store.SaveStreak(ctx, &model.ActivityStreak{UserID: res.User.ID, Current: 3, Longest: 5}))

	_, err = svc.LoginWithGitHub(ctx, &github.User{ID: 42, Login: "octo"}, "gho")
	require.NoError(t, err)

	st, err := e.store.GetStreak(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Current)
}

func TestLoginWithGitHub_RejectsEmptyProfile(t *testing.T) {
	e := newTestEnv(t)
	svc, _ := newTestAuthService(t, e)

	_, err := svc.LoginWithGitHub(context.Background(), nil, "gho")
	assert.Error(t, err)
	_, err = svc.LoginWithGitHub(context.Background(), &github.User{Login: "nobody"}, "gho")
	assert.Error(t, err)
}
