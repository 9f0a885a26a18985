package model

// FeedItem is one repository card in a user's feed.
type FeedItem struct {
	ID              string  `json:"id"`
	GitHubID        string  `json:"githubId"`
	Name            string  `json:"name"`
	FullName        string  `json:"fullName"`
	Description     string  `json:"description"`
	URL             string  `json:"url"`
	Language        string  `json:"language"`
	GitHubStars     int64   `json:"githubStars"`
	VisibilityScore float64 `json:"visibilityScore"`
	Owner           Owner   `json:"owner"`
}

// Owner is the embedded owner summary on feed cards.
type Owner struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// FeedPage is one page of the feed. NextCursor is nil once the feed is
// exhausted.
type FeedPage struct {
	Items      []FeedItem `json:"items"`
	NextCursor *string    `json:"nextCursor"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank      int64   `json:"rank"`
	UserID    string  `json:"userId"`
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatarUrl"`
	Score     float64 `json:"score"`
}

// UserScore is a (user, score) pair written to the leaderboard index.
type UserScore struct {
	UserID string
	Score  float64
}
