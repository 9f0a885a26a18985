package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/xid"

	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/score"
)

const userColumns = `id, github_id, username, name, avatar_url, trust_score, leaderboard_score,
	stars_given, stars_received, streak_count, is_blocked, role, last_swipe_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		role      string
		lastSwipe sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.GitHubID,
		&u.Username,
		&u.Name,
		&u.AvatarURL,
		&u.TrustScore,
		&u.LeaderboardScore,
		&u.StarsGiven,
		&u.StarsReceived,
		&u.StreakCount,
		&u.IsBlocked,
		&role,
		&lastSwipe,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if lastSwipe.Valid {
		t := lastSwipe.Time
		u.LastSwipeAt = &t
	}
	return &u, nil
}

// GetUserByID retrieves a user by internal ID.
func (q *queries) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "user", id, "getting user "+id)
	}
	return u, nil
}

// GetUserByGitHubID retrieves a user by GitHub account ID.
func (q *queries) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID))
	if err != nil {
		return nil, notFoundOr(err, "user", fmt.Sprint(githubID), "getting user by github id")
	}
	return u, nil
}

// GetUserByUsername retrieves a user by GitHub login.
func (q *queries) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(q.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return nil, notFoundOr(err, "user", username, "getting user by username")
	}
	return u, nil
}

// UpsertGitHubUser inserts a new user or refreshes profile fields on an
// existing one. The caller's struct is overwritten with the stored row.
func (q *queries) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	_, err := q.exec(ctx,
		`INSERT INTO users (id, github_id, username, name, avatar_url, trust_score, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (github_id) DO UPDATE SET
			username   = excluded.username,
			name       = excluded.name,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at`,
		xid.New().String(),
		user.GitHubID,
		user.Username,
		user.Name,
		user.AvatarURL,
		model.MaxTrustScore,
		string(model.RoleUser),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting user (githubID=%d): %w", user.GitHubID, err)
	}

	stored, err := q.GetUserByGitHubID(ctx, user.GitHubID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// DecayTrust applies one score.DecayTrust step and returns the new value.
// The row is locked for the read on Postgres; SQLite transactions already
// hold the write lock.
func (q *queries) DecayTrust(ctx context.Context, userID string) (float64, error) {
	query := `SELECT trust_score FROM users WHERE id = ?`
	if q.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}
	var trust float64
	if err := q.queryRow(ctx, query, userID).Scan(&trust); err != nil {
		return 0, notFoundOr(err, "user", userID, "decaying trust for "+userID)
	}

	trust = score.DecayTrust(trust)
	res, err := q.exec(ctx,
		`UPDATE users SET trust_score = ?, updated_at = ? WHERE id = ?`,
		trust, time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: decaying trust for %s: %w", userID, err)
	}
	if err := expectOne(res, "user", userID); err != nil {
		return 0, err
	}
	return trust, nil
}

// ResetTrust restores full trust.
func (q *queries) ResetTrust(ctx context.Context, userID string) error {
	res, err := q.exec(ctx,
		`UPDATE users SET trust_score = ?, updated_at = ? WHERE id = ?`,
		model.MaxTrustScore, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: resetting trust for %s: %w", userID, err)
	}
	return expectOne(res, "user", userID)
}

// SetBlocked sets the moderation block flag.
func (q *queries) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	res, err := q.exec(ctx,
		`UPDATE users SET is_blocked = ?, updated_at = ? WHERE id = ?`,
		blocked, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: setting blocked for %s: %w", userID, err)
	}
	return expectOne(res, "user", userID)
}

// SetRole changes a user's role.
func (q *queries) SetRole(ctx context.Context, userID string, role model.Role) error {
	res, err := q.exec(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: setting role for %s: %w", userID, err)
	}
	return expectOne(res, "user", userID)
}

// RecordStarGiven counts one outgoing star and returns the updated row.
func (q *queries) RecordStarGiven(ctx context.Context, userID string, at time.Time) (*model.User, error) {
	at = at.UTC()
	res, err := q.exec(ctx,
		`UPDATE users SET stars_given = stars_given + 1, last_swipe_at = ?, updated_at = ? WHERE id = ?`,
		at, at, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: recording star for %s: %w", userID, err)
	}
	if err := expectOne(res, "user", userID); err != nil {
		return nil, err
	}
	return q.GetUserByID(ctx, userID)
}

// AdjustStarsGiven adds delta to stars_given, floored at zero.
func (q *queries) AdjustStarsGiven(ctx context.Context, userID string, delta int64) error {
	return q.adjustCounter(ctx, "users", "stars_given", "user", userID, delta)
}

// AdjustStarsReceived adds delta to stars_received, floored at zero.
func (q *queries) AdjustStarsReceived(ctx context.Context, userID string, delta int64) error {
	return q.adjustCounter(ctx, "users", "stars_received", "user", userID, delta)
}

// IncrementStreakCount counts one more star-day.
func (q *queries) IncrementStreakCount(ctx context.Context, userID string) error {
	return q.adjustCounter(ctx, "users", "streak_count", "user", userID, 1)
}

// SetLeaderboardScore persists a recomputed score.
func (q *queries) SetLeaderboardScore(ctx context.Context, userID string, score float64) error {
	res, err := q.exec(ctx,
		`UPDATE users SET leaderboard_score = ?, updated_at = ? WHERE id = ?`,
		score, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: setting leaderboard score for %s: %w", userID, err)
	}
	return expectOne(res, "user", userID)
}

// GetUsersByIDs loads several users in one query, keyed by id. Missing ids
// are simply absent from the map.
func (q *queries) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := q.sb.Select(userColumns).From("users").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building users query: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// TopUsersByScore is the store-side leaderboard, used when the index is
// unavailable.
func (q *queries) TopUsersByScore(ctx context.Context, limit int) ([]model.User, error) {
	query, args, err := q.sb.Select(userColumns).
		From("users").
		Where(sq.Eq{"is_blocked": false}).
		Where(sq.Gt{"leaderboard_score": 0}).
		OrderBy("leaderboard_score DESC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building top users query: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing top users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsersScoringAbove counts ranked users with a strictly higher score.
func (q *queries) CountUsersScoringAbove(ctx context.Context, score float64) (int64, error) {
	var n int64
	err := q.queryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE is_blocked = ? AND leaderboard_score > ?`,
		false, score,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting users above %v: %w", score, err)
	}
	return n, nil
}

// adjustCounter applies a relative change to an integer column without
// letting it go negative. table and column are never user input.
func (q *queries) adjustCounter(ctx context.Context, table, column, resource, id string, delta int64) error {
	res, err := q.exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = CASE WHEN %s + ? < 0 THEN 0 ELSE %s + ? END, updated_at = ? WHERE id = ?`,
			table, column, column, column),
		delta, delta, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: adjusting %s.%s for %s: %w", table, column, id, err)
	}
	return expectOne(res, resource, id)
}
