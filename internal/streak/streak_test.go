package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starswipe/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestApply_NoRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)

	tr := Apply(nil, "u1", now)

	assert.True(t, tr.Created)
	assert.True(t, tr.Incremented)
	assert.Equal(t, int64(1), tr.Streak.Current)
	assert.Equal(t, int64(1), tr.Streak.Longest)
	require.NotNil(t, tr.Streak.LastActive)
	assert.Equal(t, day(2026, 3, 10), *tr.Streak.LastActive)
	assert.Equal(t, "u1", tr.Streak.UserID)
}

func TestApply_Transitions(t *testing.T) {
	last := day(2026, 3, 10)

	tests := []struct {
		name            string
		current         int64
		longest         int64
		now             time.Time
		wantCurrent     int64
		wantLongest     int64
		wantIncremented bool
	}{
		{
			name:    "same day leaves streak unchanged",
			current: 4, longest: 6,
			now:         last.Add(23 * time.Hour),
			wantCurrent: 4, wantLongest: 6,
		},
		{
			name:    "next day increments",
			current: 4, longest: 6,
			now:         last.Add(24 * time.Hour),
			wantCurrent: 5, wantLongest: 6, wantIncremented: true,
		},
		{
			name:    "next day raises longest when passed",
			current: 6, longest: 6,
			now:         last.Add(30 * time.Hour),
			wantCurrent: 7, wantLongest: 7, wantIncremented: true,
		},
		{
			name:    "gap of two days resets to one",
			current: 9, longest: 9,
			now:         last.Add(48 * time.Hour),
			wantCurrent: 1, wantLongest: 9, wantIncremented: true,
		},
		{
			name:    "long gap resets to one",
			current: 3, longest: 12,
			now:         last.AddDate(0, 2, 0),
			wantCurrent: 1, wantLongest: 12, wantIncremented: true,
		},
		{
			name:    "clock skew into the past is a no-op",
			current: 2, longest: 2,
			now:         last.Add(-2 * time.Hour),
			wantCurrent: 2, wantLongest: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lastActive := last
			s := &model.ActivityStreak{UserID: "u1", Current: tt.current, Longest: tt.longest, LastActive: &lastActive}

			tr := Apply(s, "u1", tt.now)

			assert.False(t, tr.Created)
			assert.Equal(t, tt.wantIncremented, tr.Incremented)
			assert.Equal(t, tt.wantCurrent, tr.Streak.Current)
			assert.Equal(t, tt.wantLongest, tr.Streak.Longest)
			assert.Equal(t, last, *s.LastActive, "input must not be mutated")
			if tt.wantIncremented {
				assert.Equal(t, Day(tt.now), *tr.Streak.LastActive)
			}
		})
	}
}

func TestApply_UTCDayBoundary(t *testing.T) {
	// 23:30 in UTC-5 is already the next UTC day.
	loc := time.FixedZone("EST", -5*60*60)
	lastActive := day(2026, 3, 10)
	s := &model.ActivityStreak{Current: 1, Longest: 1, LastActive: &lastActive}

	tr := Apply(s, "u1", time.Date(2026, 3, 10, 23, 30, 0, 0, loc))

	assert.True(t, tr.Incremented)
	assert.Equal(t, int64(2), tr.Streak.Current)
}

func TestApply_DailySequence(t *testing.T) {
	var s *model.ActivityStreak
	var streakCount int64

	swipes := []time.Time{
		day(2026, 1, 1).Add(9 * time.Hour),
		day(2026, 1, 1).Add(20 * time.Hour),
		day(2026, 1, 2).Add(1 * time.Hour),
		day(2026, 1, 3).Add(1 * time.Hour),
		day(2026, 1, 6).Add(1 * time.Hour),
		day(2026, 1, 6).Add(2 * time.Hour),
	}
	for _, at := range swipes {
		tr := Apply(s, "u1", at)
		if tr.Incremented {
			streakCount++
		}
		next := tr.Streak
		s = &next
	}

	assert.Equal(t, int64(4), streakCount)
	assert.Equal(t, int64(1), s.Current)
	assert.Equal(t, int64(3), s.Longest)
}

func TestStatus(t *testing.T) {
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, model.StreakStatus{}, Status(nil, now))

	today := day(2026, 3, 11)
	yesterday := day(2026, 3, 10)
	older := day(2026, 3, 8)

	assert.True(t, Status(&model.ActivityStreak{Current: 2, LastActive: &today}, now).Active)
	assert.True(t, Status(&model.ActivityStreak{Current: 2, LastActive: &yesterday}, now).Active)
	assert.False(t, Status(&model.ActivityStreak{Current: 2, LastActive: &older}, now).Active)
}

func TestDayDiff(t *testing.T) {
	assert.Equal(t, 0, DayDiff(day(2026, 3, 1).Add(23*time.Hour), day(2026, 3, 1)))
	assert.Equal(t, 1, DayDiff(day(2026, 3, 2), day(2026, 3, 1).Add(23*time.Hour)))
	assert.Equal(t, 31, DayDiff(day(2026, 4, 1), day(2026, 3, 1)))
}
