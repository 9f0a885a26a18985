// Package streak implements the once-per-UTC-day activity streak.
package streak

import (
	"time"

	"github.com/sakif/starswipe/internal/model"
)

// Transition is the outcome of applying one STAR swipe to a streak.
type Transition struct {
	Streak model.ActivityStreak
	// Created is true when no streak record existed before.
	Created bool
	// Incremented is true when this swipe counted as a new star-day. The
	// user's streakCount moves by one exactly when this is set.
	Incremented bool
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayDiff is the number of UTC calendar days from `from` to `to`.
func DayDiff(to, from time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// Apply advances the streak for a STAR swipe at now. A nil current means the
// user has never had a streak.
func Apply(current *model.ActivityStreak, userID string, now time.Time) Transition {
	today := Day(now)

	if current == nil || current.LastActive == nil {
		return Transition{
			Streak: model.ActivityStreak{
				UserID:     userID,
				Current:    1,
				Longest:    max(1, longestOf(current)),
				LastActive: &today,
			},
			Created:     current == nil,
			Incremented: true,
		}
	}

	next := *current
	diff := DayDiff(today, *current.LastActive)

	switch {
	case diff <= 0:
		// Already counted today. Negative diffs come from clock skew and are
		// treated the same way.
		return Transition{Streak: next}
	case diff == 1:
		next.Current++
		next.Longest = max(next.Longest, next.Current)
	default:
		next.Current = 1
		next.Longest = max(next.Longest, 1)
	}

	next.LastActive = &today
	return Transition{Streak: next, Incremented: true}
}

// Status reports the streak as shown on a profile. A streak is active when
// the last star-day was today or yesterday.
func Status(s *model.ActivityStreak, now time.Time) model.StreakStatus {
	if s == nil {
		return model.StreakStatus{}
	}
	st := model.StreakStatus{
		Current:    s.Current,
		Longest:    s.Longest,
		LastActive: s.LastActive,
	}
	if s.LastActive != nil {
		diff := DayDiff(now, *s.LastActive)
		st.Active = diff >= 0 && diff <= 1
	}
	return st
}

func longestOf(s *model.ActivityStreak) int64 {
	if s == nil {
		return 0
	}
	return s.Longest
}
