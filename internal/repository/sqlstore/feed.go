package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
)

// FeedCursorFor resolves a repository id into its keyset position. Inactive
// repositories still resolve so a page boundary survives deactivation.
//
// The position uses the repository's current visibility_score. A visibility
// recompute between two page fetches moves the boundary, so the next page
// can repeat or skip candidates near it. Repeats are filtered once swiped,
// and skipped candidates come back on a fresh feed without a cursor.
func (q *queries) FeedCursorFor(ctx context.Context, repositoryID string) (*repository.FeedCursor, error) {
	c := repository.FeedCursor{ID: repositoryID}
	err := q.queryRow(ctx,
		`SELECT visibility_score FROM repositories WHERE id = ?`, repositoryID,
	).Scan(&c.VisibilityScore)
	if err != nil {
		return nil, notFoundOr(err, "repository", repositoryID, "resolving feed cursor")
	}
	return &c, nil
}

// ListFeedCandidates runs the keyset query behind the feed:
//
//	active, not owned by the user, not swiped by the user,
//	ORDER BY visibility_score DESC, id DESC, strictly after the cursor.
func (q *queries) ListFeedCandidates(ctx context.Context, fq repository.FeedQuery) ([]model.FeedItem, error) {
	b := q.sb.
		Select(
			"r.id", "r.github_id", "r.name", "r.full_name", "r.description", "r.url", "r.language",
			"r.github_stars", "r.visibility_score", "u.id", "u.username", "u.avatar_url",
		).
		From("repositories r").
		Join("users u ON u.id = r.owner_id").
		Where(sq.Eq{"r.is_active": true}).
		Where(sq.NotEq{"r.owner_id": fq.UserID}).
		Where("NOT EXISTS (SELECT 1 FROM swipe_actions s WHERE s.repository_id = r.id AND s.user_id = ?)", fq.UserID)

	if fq.After != nil {
		b = b.Where(sq.Or{
			sq.Lt{"r.visibility_score": fq.After.VisibilityScore},
			sq.And{
				sq.Eq{"r.visibility_score": fq.After.VisibilityScore},
				sq.Lt{"r.id": fq.After.ID},
			},
		})
	}

	query, args, err := b.
		OrderBy("r.visibility_score DESC", "r.id DESC").
		Limit(uint64(fq.Limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: building feed query: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: querying feed for %s: %w", fq.UserID, err)
	}
	defer rows.Close()

	items := make([]model.FeedItem, 0, fq.Limit)
	for rows.Next() {
		var it model.FeedItem
		err := rows.Scan(
			&it.ID,
			&it.GitHubID,
			&it.Name,
			&it.FullName,
			&it.Description,
			&it.URL,
			&it.Language,
			&it.GitHubStars,
			&it.VisibilityScore,
			&it.Owner.ID,
			&it.Owner.Username,
			&it.Owner.AvatarURL,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning feed item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
