package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/starswipe/internal/repository"
)

// ListScoringUsers pages users eligible for the leaderboard by id.
func (q *queries) ListScoringUsers(ctx context.Context, afterID string, limit int) ([]repository.ScoringRow, error) {
	rows, err := q.query(ctx,
		`SELECT id, stars_given, stars_received, streak_count, trust_score
		 FROM users
		 WHERE is_blocked = ? AND trust_score > 0 AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		false, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: paging scoring users: %w", err)
	}
	defer rows.Close()

	var out []repository.ScoringRow
	for rows.Next() {
		var r repository.ScoringRow
		if err := rows.Scan(&r.UserID, &r.StarsGiven, &r.StarsReceived, &r.StreakCount, &r.TrustScore); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning scoring row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListActiveRepositories pages active repositories by id.
func (q *queries) ListActiveRepositories(ctx context.Context, afterID string, limit int) ([]repository.VisibilityRow, error) {
	rows, err := q.query(ctx,
		`SELECT id, engagement_score, created_at
		 FROM repositories
		 WHERE is_active = ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		true, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: paging active repositories: %w", err)
	}
	defer rows.Close()

	var out []repository.VisibilityRow
	for rows.Next() {
		var r repository.VisibilityRow
		if err := rows.Scan(&r.RepositoryID, &r.EngagementScore, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning visibility row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetVisibilityScore persists a recomputed visibility score.
func (q *queries) SetVisibilityScore(ctx context.Context, repositoryID string, visibility float64) error {
	res, err := q.exec(ctx,
		`UPDATE repositories SET visibility_score = ?, updated_at = ? WHERE id = ?`,
		visibility, time.Now().UTC(), repositoryID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: setting visibility for %s: %w", repositoryID, err)
	}
	return expectOne(res, "repository", repositoryID)
}
