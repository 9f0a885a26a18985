// Package repository declares the persistence ports the services depend on.
//
// Every operation that changes a counter is an atomic relative update in the
// store. Callers never read a value, change it in Go, and write it back.
package repository

import (
	"context"
	"time"

	"github.com/sakif/starswipe/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserStore covers account rows and their counters.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	SetRole(ctx context.Context, userID string, role model.Role) error
	// UpsertGitHubUser inserts the user or refreshes its profile fields,
	// keyed by GitHub ID. Counters and moderation state are never touched.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	// DecayTrust multiplies trust by 0.9, floored at 0.05, and returns the
	// new value.
	DecayTrust(ctx context.Context, userID string) (float64, error)
	ResetTrust(ctx context.Context, userID string) error
	SetBlocked(ctx context.Context, userID string, blocked bool) error
	// RecordStarGiven increments starsGiven, stamps lastSwipeAt and returns
	// the updated row.
	RecordStarGiven(ctx context.Context, userID string, at time.Time) (*model.User, error)
	// AdjustStarsGiven and AdjustStarsReceived add delta, never going below
	// zero.
	AdjustStarsGiven(ctx context.Context, userID string, delta int64) error
	AdjustStarsReceived(ctx context.Context, userID string, delta int64) error
	IncrementStreakCount(ctx context.Context, userID string) error
	SetLeaderboardScore(ctx context.Context, userID string, score float64) error
}

// StreakStore persists one ActivityStreak per user.
type StreakStore interface {
	// GetStreak returns (nil, nil) when the user has no streak yet.
	GetStreak(ctx context.Context, userID string) (*model.ActivityStreak, error)
	SaveStreak(ctx context.Context, streak *model.ActivityStreak) error
}

// CredentialStore keeps linked external accounts.
type CredentialStore interface {
	// GetCredential returns (nil, nil) when the user has not linked provider.
	GetCredential(ctx context.Context, userID, provider string) (*model.Credential, error)
	UpsertCredential(ctx context.Context, cred *model.Credential) error
}

// RepositoryStore covers submitted repositories.
type RepositoryStore interface {
	GetRepositoryByID(ctx context.Context, id string) (*model.Repository, error)
	GetRepositoryByGitHubID(ctx context.Context, githubID string) (*model.Repository, error)
	// CreateRepository fails with apperror.ErrConflict when the GitHub ID
	// was already submitted.
	CreateRepository(ctx context.Context, repo *model.Repository) error
	UpdatePitch(ctx context.Context, id, pitch string) error
	UpdateGitHubStats(ctx context.Context, id string, stars, forks, watchers int64, syncedAt time.Time) error
	MarkSyncAttempt(ctx context.Context, id string, at time.Time) error
	IncrementEngagement(ctx context.Context, id string, weight float64) error
	AdjustStarCount(ctx context.Context, id string, delta int64) error
	ListRepositoriesByOwner(ctx context.Context, ownerID string) ([]model.Repository, error)
	CountRepositoriesByOwner(ctx context.Context, ownerID string) (int64, error)
	// ListStaleRepositories returns active repositories, least recently
	// attempted first (never-attempted before all others). Both successful
	// syncs and MarkSyncAttempt count as attempts.
	ListStaleRepositories(ctx context.Context, limit int) ([]model.Repository, error)
}

// SwipeStore covers SwipeAction rows.
type SwipeStore interface {
	// InsertSwipe fails with apperror.ErrConflict when the (user, repository)
	// pair already exists.
	InsertSwipe(ctx context.Context, swipe *model.SwipeAction) error
	// DeleteStarSwipe removes a STAR swipe and reports whether a row was
	// actually deleted.
	DeleteStarSwipe(ctx context.Context, swipeID string) (bool, error)
	ListRecentStars(ctx context.Context, userID string, limit int) ([]model.StarredSwipe, error)
	// ListStarsAfter pages over every STAR swipe by ascending id.
	ListStarsAfter(ctx context.Context, afterID string, limit int) ([]model.StarredSwipe, error)
}

// AbuseStore covers the audit trail and moderation queries.
type AbuseStore interface {
	InsertAbuseLog(ctx context.Context, entry *model.AbuseLog) error
	ListAbuseLogs(ctx context.Context, opts ListOptions) ([]model.AbuseLog, error)
	ListFlaggedUsers(ctx context.Context, trustBelow float64, limit int) ([]model.FlaggedUser, error)
	// ListAbuseCandidates returns users with a long streak, no owned
	// repositories, no stars received and trust still above trustAbove.
	ListAbuseCandidates(ctx context.Context, minStreak int64, trustAbove float64, limit int) ([]model.AbuseCandidate, error)
}

// FeedCursor is the keyset position of a repository in the feed order.
type FeedCursor struct {
	ID              string
	VisibilityScore float64
}

// FeedQuery selects one page of feed candidates for a user.
type FeedQuery struct {
	UserID string
	After  *FeedCursor
	Limit  int
}

// FeedStore answers the feed candidate query.
type FeedStore interface {
	// FeedCursorFor resolves a repository id to its keyset position.
	FeedCursorFor(ctx context.Context, repositoryID string) (*FeedCursor, error)
	// ListFeedCandidates returns active repositories not owned by and not yet
	// swiped by the user, ordered by (visibilityScore DESC, id DESC).
	ListFeedCandidates(ctx context.Context, q FeedQuery) ([]model.FeedItem, error)
}

// ScoringRow is the input to one leaderboard recompute.
type ScoringRow struct {
	UserID        string
	StarsGiven    int64
	StarsReceived int64
	StreakCount   int64
	TrustScore    float64
}

// VisibilityRow is the input to one visibility recompute.
type VisibilityRow struct {
	RepositoryID    string
	EngagementScore float64
	CreatedAt       time.Time
}

// ScoringStore serves the periodic recompute jobs and the leaderboard
// fallback path.
type ScoringStore interface {
	// ListScoringUsers pages eligible users (not blocked, trust > 0) by id.
	ListScoringUsers(ctx context.Context, afterID string, limit int) ([]ScoringRow, error)
	// ListActiveRepositories pages active repositories by id.
	ListActiveRepositories(ctx context.Context, afterID string, limit int) ([]VisibilityRow, error)
	SetVisibilityScore(ctx context.Context, repositoryID string, visibility float64) error
	TopUsersByScore(ctx context.Context, limit int) ([]model.User, error)
	CountUsersScoringAbove(ctx context.Context, score float64) (int64, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*model.User, error)
}

// Queries is the full operation set. It is available both on the store
// itself and inside a transaction.
type Queries interface {
	UserStore
	StreakStore
	CredentialStore
	RepositoryStore
	SwipeStore
	AbuseStore
	FeedStore
	ScoringStore
}

// Store is the persistent store.
type Store interface {
	Queries
	// WithTx runs fn in one ACID transaction. Returning an error rolls back.
	// fn must use only the Queries it is given.
	WithTx(ctx context.Context, fn func(tx Queries) error) error
}
