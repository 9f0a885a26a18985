package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sakif/starswipe/internal/auth"
	"github.com/sakif/starswipe/internal/crypto"
	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
)

// AuthService handles the GitHub login callback.
//
//	AuthHandler (HTTP) → AuthService → repository.Store (user, credential, streak)
//	                                 ↘ TokenService (JWT)
//
// It does not set cookies or read requests; that stays in the handler.
type AuthService struct {
	store  repository.Store
	tokens *auth.TokenService
	enc    *crypto.TokenEncryptor
	logger *slog.Logger
}

func NewAuthService(store repository.Store, tokens *auth.TokenService, enc *crypto.TokenEncryptor, logger *slog.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, enc: enc, logger: logger}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginWithGitHub upserts the GitHub profile, stores the encrypted access
// token and makes sure a streak row exists, all in one transaction. Then it
// issues a session token.
//
// GitHub IDs are stable, so upserting on github_id is safe: first login
// inserts, later logins refresh username, name and avatar.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *github.User, accessToken string) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	sealed, err := s.enc.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("service/auth: encrypting token: %w", err)
	}

	user := &model.User{
		GitHubID:  gh.ID,
		Username:  gh.Login,
		Name:      gh.Name,
		AvatarURL: gh.AvatarURL,
	}
	err = s.store.WithTx(ctx, func(tx repository.Queries) error {
		if err := tx.UpsertGitHubUser(ctx, user); err != nil {
			return err
		}
		if sealed != "" {
			err := tx.UpsertCredential(ctx, &model.Credential{
				UserID:            user.ID,
				Provider:          model.ProviderGitHub,
				ProviderAccountID: strconv.FormatInt(gh.ID, 10),
				AccessToken:       sealed,
			})
			if err != nil {
				return err
			}
		}

		existing, err := tx.GetStreak(ctx, user.ID)
		if err != nil || existing != nil {
			return err
		}
		return tx.SaveStreak(ctx, &model.ActivityStreak{UserID: user.ID})
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing in github user %d: %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userId", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
