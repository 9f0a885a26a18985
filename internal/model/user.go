// Package model defines the data structures used throughout the application.
package model

import "time"

// Role controls access to the moderation endpoints.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Trust score bounds. Decay never takes a user below MinTrustScore and an
// admin reset restores MaxTrustScore.
const (
	MinTrustScore = 0.05
	MaxTrustScore = 1.0
)

// User represents a registered account.
//
// GitHub is the identity provider, so the stable external identifier is the
// GitHub user ID. We still generate our own internal string ID (xid) to avoid
// tying primary keys to a third party's numbering scheme.
//
// The counters (StarsGiven, StarsReceived, StreakCount) and the derived
// LeaderboardScore are only ever changed through atomic relative updates in
// the store. Never read-modify-write them from Go.
type User struct {
	ID               string     `json:"id"`
	GitHubID         int64      `json:"githubId"`
	Username         string     `json:"username"`
	Name             string     `json:"name"`
	AvatarURL        string     `json:"avatarUrl"`
	TrustScore       float64    `json:"trustScore"`
	LeaderboardScore float64    `json:"leaderboardScore"`
	StarsGiven       int64      `json:"starsGiven"`
	StarsReceived    int64      `json:"starsReceived"`
	StreakCount      int64      `json:"streakCount"`
	IsBlocked        bool       `json:"isBlocked"`
	Role             Role       `json:"role"`
	LastSwipeAt      *time.Time `json:"lastSwipeAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user may call moderation endpoints.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Credential is a linked external account. AccessToken holds the encrypted
// token, never the plaintext.
type Credential struct {
	ID                string    `json:"-"`
	UserID            string    `json:"-"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"`
	AccessToken       string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ProviderGitHub is the only external provider we link today.
const ProviderGitHub = "github"

// PrivateProfile is what /user/me returns: everything the owner may see
// about their own account.
type PrivateProfile struct {
	User
	Streak       StreakStatus `json:"streak"`
	RepoCount    int64        `json:"repoCount"`
	LinkedGitHub bool         `json:"linkedGitHub"`
}

// PublicProfile is the view of another user. It omits moderation state.
type PublicProfile struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Name             string    `json:"name"`
	AvatarURL        string    `json:"avatarUrl"`
	LeaderboardScore float64   `json:"leaderboardScore"`
	StarsGiven       int64     `json:"starsGiven"`
	StarsReceived    int64     `json:"starsReceived"`
	StreakCount      int64     `json:"streakCount"`
	RepoCount        int64     `json:"repoCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Public projects a User onto the fields anyone may see.
func (u *User) Public(repoCount int64) *PublicProfile {
	return &PublicProfile{
		ID:               u.ID,
		Username:         u.Username,
		Name:             u.Name,
		AvatarURL:        u.AvatarURL,
		LeaderboardScore: u.LeaderboardScore,
		StarsGiven:       u.StarsGiven,
		StarsReceived:    u.StarsReceived,
		StreakCount:      u.StreakCount,
		RepoCount:        repoCount,
		CreatedAt:        u.CreatedAt,
	}
}
