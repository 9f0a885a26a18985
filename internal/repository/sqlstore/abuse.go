package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
)

// InsertAbuseLog appends an audit row. Rows are never updated or deleted.
func (q *queries) InsertAbuseLog(ctx context.Context, entry *model.AbuseLog) error {
	entry.ID = xid.New().String()
	entry.CreatedAt = time.Now().UTC()

	_, err := q.exec(ctx,
		`INSERT INTO abuse_logs (id, user_id, reason, severity, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Reason, entry.Severity, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: inserting abuse log for %s: %w", entry.UserID, err)
	}
	return nil
}

// ListAbuseLogs returns the newest audit rows first.
func (q *queries) ListAbuseLogs(ctx context.Context, opts repository.ListOptions) ([]model.AbuseLog, error) {
	query, args, err := q.sb.
		Select("a.id", "a.user_id", "u.username", "a.reason", "a.severity", "a.created_at").
		From("abuse_logs a").
		Join("users u ON u.id = a.user_id").
		OrderBy("a.created_at DESC", "a.id DESC").
		Limit(uint64(opts.Limit)).
		Offset(uint64(opts.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building abuse log query: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing abuse logs: %w", err)
	}
	defer rows.Close()

	logs := []model.AbuseLog{}
	for rows.Next() {
		var l model.AbuseLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Username, &l.Reason, &l.Severity, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning abuse log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ListFlaggedUsers returns users with low trust or a block, lowest trust
// first, with their audit row counts.
func (q *queries) ListFlaggedUsers(ctx context.Context, trustBelow float64, limit int) ([]model.FlaggedUser, error) {
	rows, err := q.query(ctx,
		`SELECT u.id, u.username, u.avatar_url, u.trust_score, u.is_blocked,
			(SELECT COUNT(*) FROM abuse_logs a WHERE a.user_id = u.id) AS abuse_count
		 FROM users u
		 WHERE u.trust_score < ? OR u.is_blocked = ?
		 ORDER BY u.trust_score ASC, u.id ASC
		 LIMIT ?`,
		trustBelow, true, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing flagged users: %w", err)
	}
	defer rows.Close()

	users := []model.FlaggedUser{}
	for rows.Next() {
		var f model.FlaggedUser
		if err := rows.Scan(&f.ID, &f.Username, &f.AvatarURL, &f.TrustScore, &f.IsBlocked, &f.AbuseLogCount); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning flagged user: %w", err)
		}
		users = append(users, f)
	}
	return users, rows.Err()
}

// ListAbuseCandidates finds accounts that farm streaks without contributing:
// a long streak, no owned repositories, no stars received and trust that
// has not already been decayed below trustAbove.
func (q *queries) ListAbuseCandidates(ctx context.Context, minStreak int64, trustAbove float64, limit int) ([]model.AbuseCandidate, error) {
	rows, err := q.query(ctx,
		`SELECT u.id, u.username, u.streak_count, u.trust_score
		 FROM users u
		 WHERE u.streak_count > ?
		   AND u.stars_received = 0
		   AND u.trust_score > ?
		   AND NOT EXISTS (SELECT 1 FROM repositories r WHERE r.owner_id = u.id)
		 ORDER BY u.streak_count DESC, u.id ASC
		 LIMIT ?`,
		minStreak, trustAbove, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing abuse candidates: %w", err)
	}
	defer rows.Close()

	var out []model.AbuseCandidate
	for rows.Next() {
		var c model.AbuseCandidate
		if err := rows.Scan(&c.ID, &c.Username, &c.StreakCount, &c.TrustScore); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning abuse candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
