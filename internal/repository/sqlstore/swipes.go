package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/model"
)

// InsertSwipe records a swipe. The unique (user_id, repository_id)
// constraint is what makes concurrent duplicates safe: exactly one insert
// wins and the rest surface as apperror.ErrConflict.
func (q *queries) InsertSwipe(ctx context.Context, swipe *model.SwipeAction) error {
	swipe.ID = xid.New().String()
	swipe.CreatedAt = time.Now().UTC()

	_, err := q.exec(ctx,
		`INSERT INTO swipe_actions (id, user_id, repository_id, type, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		swipe.ID,
		swipe.UserID,
		swipe.RepositoryID,
		string(swipe.Type),
		swipe.IPAddress,
		swipe.UserAgent,
		swipe.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "repository already swiped",
				Field:   "repositoryId",
			}
		}
		return fmt.Errorf("sqlstore: inserting swipe (user=%s, repo=%s): %w", swipe.UserID, swipe.RepositoryID, err)
	}
	return nil
}

// DeleteStarSwipe removes one STAR swipe. The bool is false when another
// caller already removed it.
func (q *queries) DeleteStarSwipe(ctx context.Context, swipeID string) (bool, error) {
	res, err := q.exec(ctx,
		`DELETE FROM swipe_actions WHERE id = ? AND type = ?`,
		swipeID, string(model.SwipeStar),
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: deleting swipe %s: %w", swipeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	return n == 1, nil
}

const starredSwipeSelect = `SELECT s.id, s.user_id, s.repository_id, r.full_name, s.created_at
	FROM swipe_actions s
	JOIN repositories r ON r.id = s.repository_id`

func (q *queries) listStarredSwipes(ctx context.Context, query string, args ...any) ([]model.StarredSwipe, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StarredSwipe
	for rows.Next() {
		var s model.StarredSwipe
		if err := rows.Scan(&s.SwipeID, &s.UserID, &s.RepositoryID, &s.FullName, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListRecentStars returns the user's most recent STAR swipes.
func (q *queries) ListRecentStars(ctx context.Context, userID string, limit int) ([]model.StarredSwipe, error) {
	out, err := q.listStarredSwipes(ctx,
		starredSwipeSelect+`
		 WHERE s.user_id = ? AND s.type = ?
		 ORDER BY s.created_at DESC, s.id DESC
		 LIMIT ?`,
		userID, string(model.SwipeStar), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing recent stars for %s: %w", userID, err)
	}
	return out, nil
}

// ListStarsAfter pages every STAR swipe in id order.
func (q *queries) ListStarsAfter(ctx context.Context, afterID string, limit int) ([]model.StarredSwipe, error) {
	out, err := q.listStarredSwipes(ctx,
		starredSwipeSelect+`
		 WHERE s.type = ? AND s.id > ?
		 ORDER BY s.id ASC
		 LIMIT ?`,
		string(model.SwipeStar), afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: paging stars after %q: %w", afterID, err)
	}
	return out, nil
}
