package model

import "time"

// ActivityStreak tracks consecutive UTC days on which a user starred
// something. LastActive is always midnight UTC.
type ActivityStreak struct {
	UserID     string     `json:"userId"`
	Current    int64      `json:"current"`
	Longest    int64      `json:"longest"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

// StreakStatus is the streak as shown on a private profile.
type StreakStatus struct {
	Current    int64      `json:"current"`
	Longest    int64      `json:"longest"`
	LastActive *time.Time `json:"lastActive,omitempty"`
	Active     bool       `json:"active"`
}

// AbuseLog is an append-only audit row written whenever trust decays.
type AbuseLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Reason    string    `json:"reason"`
	Severity  float64   `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// FlaggedUser is a moderation queue entry.
type FlaggedUser struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	AvatarURL     string  `json:"avatarUrl"`
	TrustScore    float64 `json:"trustScore"`
	IsBlocked     bool    `json:"isBlocked"`
	AbuseLogCount int64   `json:"abuseLogCount"`
}

// AbuseCandidate is a user matched by the anomaly sweep heuristic.
type AbuseCandidate struct {
	ID          string
	Username    string
	StreakCount int64
	TrustScore  float64
}
