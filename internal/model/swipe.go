package model

import "time"

// SwipeType is the preference a user expresses on a feed card.
type SwipeType string

const (
	SwipeStar SwipeType = "STAR"
	SwipeSkip SwipeType = "SKIP"
)

// Valid reports whether t is one of the known swipe types.
func (t SwipeType) Valid() bool {
	return t == SwipeStar || t == SwipeSkip
}

// SwipeAction records one user's decision on one repository. The
// (UserID, RepositoryID) pair is unique; rows are only ever deleted by star
// reconciliation.
type SwipeAction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	RepositoryID string    `json:"repositoryId"`
	Type         SwipeType `json:"type"`
	IPAddress    string    `json:"-"`
	UserAgent    string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ClientMeta is request metadata recorded with each swipe.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// SwipeResult is the client-visible outcome of a processed swipe. NewScore
// is only set for STAR swipes.
type SwipeResult struct {
	SwipeID  string   `json:"swipeId"`
	NewScore *float64 `json:"newScore,omitempty"`
}

// StarredSwipe is a STAR swipe joined with what reconciliation needs to ask
// GitHub about it.
type StarredSwipe struct {
	SwipeID      string
	UserID       string
	RepositoryID string
	FullName     string
	CreatedAt    time.Time
}
