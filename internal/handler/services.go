package handler

import (
	"context"

	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/service"
)

// The handlers depend on these narrow interfaces rather than the concrete
// services, so each handler test can swap in a small fake. The concrete
// services in internal/service satisfy them.

// Swiper processes swipe decisions.
type Swiper interface {
	ProcessSwipe(ctx context.Context, userID, repositoryID string, t model.SwipeType, meta model.ClientMeta) (*model.SwipeResult, error)
}

// FeedGenerator builds discovery feed pages.
type FeedGenerator interface {
	GenerateFeed(ctx context.Context, userID, cursor string, limit int) (*model.FeedPage, error)
}

// RepositoryManager owns repository submission and GitHub refreshes.
type RepositoryManager interface {
	Submit(ctx context.Context, submitterID, fullName, pitch string) (*model.Repository, error)
	UpdatePitch(ctx context.Context, userID, fullName, pitch string) (*model.Repository, error)
	Sync(ctx context.Context, repositoryID string) (*model.SyncResult, error)
}

// Leaderboard answers ranking queries.
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	Rank(ctx context.Context, userID string) (*int64, error)
}

// Profiles reads user profiles.
type Profiles interface {
	Me(ctx context.Context, userID string) (*model.PrivateProfile, error)
	MyRepos(ctx context.Context, userID string) ([]model.Repository, error)
	Public(ctx context.Context, userID string) (*model.PublicProfile, error)
}

// Moderator performs admin actions.
type Moderator interface {
	ToggleBlock(ctx context.Context, actorID, targetID string) (*service.BlockStatus, error)
	ResetTrust(ctx context.Context, actorID, targetID string) (*service.TrustStatus, error)
	ListAbuseLogs(ctx context.Context, limit, offset int) ([]model.AbuseLog, error)
	ListFlaggedUsers(ctx context.Context, limit int) ([]model.FlaggedUser, error)
}

// OAuthProvider runs the GitHub authorization-code flow.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*github.User, string, error)
}

// Authenticator turns a GitHub identity into a local session.
type Authenticator interface {
	LoginWithGitHub(ctx context.Context, gh *github.User, accessToken string) (*service.AuthResult, error)
}
