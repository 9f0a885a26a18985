// Package service holds the business rules of the swipe and reputation
// engine.
//
//	Handler (HTTP) → Service (rules, orchestration) → repository.Store / cache.Cache / GitHub
//
// Services take their collaborators as interfaces in their constructors and
// never touch HTTP. Store transactions cover everything that must be atomic;
// cache calls and GitHub calls sit outside them and degrade quietly.
package service

import (
	"context"
	"time"

	"github.com/sakif/starswipe/internal/github"
)

// GitHubAPI is the subset of the GitHub client the services call.
type GitHubAPI interface {
	Star(ctx context.Context, accessToken, fullName string) error
	IsStarred(ctx context.Context, accessToken, fullName string) (github.StarState, error)
	GetRepository(ctx context.Context, fullName string) (*github.Repo, error)
	GetUser(ctx context.Context, login string) (*github.User, error)
}

var _ GitHubAPI = (*github.Client)(nil)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
