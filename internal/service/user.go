package service

import (
	"context"
	"fmt"

	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
	"github.com/sakif/starswipe/internal/streak"
)

// UserService serves profile reads.
type UserService struct {
	store repository.Store
	now   Clock
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store, now: systemClock}
}

// Me returns the caller's own profile, including trust, role and streak.
func (s *UserService) Me(ctx context.Context, userID string) (*model.PrivateProfile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	st, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: loading streak: %w", err)
	}
	count, err := s.store.CountRepositoriesByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: counting repositories: %w", err)
	}
	cred, err := s.store.GetCredential(ctx, userID, model.ProviderGitHub)
	if err != nil {
		return nil, fmt.Errorf("service/user: loading credential: %w", err)
	}

	return &model.PrivateProfile{
		User:         *user,
		Streak:       streak.Status(st, s.now()),
		RepoCount:    count,
		LinkedGitHub: cred != nil,
	}, nil
}

// MyRepos lists the repositories the caller owns, newest first.
func (s *UserService) MyRepos(ctx context.Context, userID string) ([]model.Repository, error) {
	repos, err := s.store.ListRepositoriesByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing repositories: %w", err)
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	return repos, nil
}

// Public returns another user's public profile.
func (s *UserService) Public(ctx context.Context, userID string) (*model.PublicProfile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountRepositoriesByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: counting repositories: %w", err)
	}
	return user.Public(count), nil
}
