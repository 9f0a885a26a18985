package model

import "time"

// MaxPitchLength caps the owner-written pitch shown on feed cards.
const MaxPitchLength = 180

// Repository is a submitted GitHub repository that appears in feeds.
//
// GitHubID is the "owner/name" full name, which is also how the GitHub API
// addresses the repository. OwnerID never changes after creation.
//
// EngagementScore is the trust-weighted star total. It only grows under
// normal operation. VisibilityScore is derived from it and from age, and is
// refreshed by the hourly recompute job.
type Repository struct {
	ID              string     `json:"id"`
	GitHubID        string     `json:"githubId"`
	OwnerID         string     `json:"ownerId"`
	Name            string     `json:"name"`
	FullName        string     `json:"fullName"`
	Description     string     `json:"description"`
	URL             string     `json:"url"`
	Language        string     `json:"language"`
	GitHubStars     int64      `json:"githubStars"`
	Forks           int64      `json:"forks"`
	Watchers        int64      `json:"watchers"`
	StarCount       int64      `json:"starCount"`
	EngagementScore float64    `json:"engagementScore"`
	VisibilityScore float64    `json:"visibilityScore"`
	IsActive        bool       `json:"isActive"`
	SyncedAt        *time.Time `json:"syncedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SyncResult is returned by a manual star refresh.
type SyncResult struct {
	RepositoryID string    `json:"repositoryId"`
	Stars        int64     `json:"stars"`
	SyncedAt     time.Time `json:"syncedAt"`
}
