package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/model"
)

const repositoryColumns = `id, github_id, owner_id, name, full_name, description, url, language,
	github_stars, forks, watchers, star_count, engagement_score, visibility_score, is_active,
	synced_at, created_at, updated_at`

func scanRepository(row rowScanner) (*model.Repository, error) {
	var (
		r        model.Repository
		syncedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID,
		&r.GitHubID,
		&r.OwnerID,
		&r.Name,
		&r.FullName,
		&r.Description,
		&r.URL,
		&r.Language,
		&r.GitHubStars,
		&r.Forks,
		&r.Watchers,
		&r.StarCount,
		&r.EngagementScore,
		&r.VisibilityScore,
		&r.IsActive,
		&syncedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		r.SyncedAt = &t
	}
	return &r, nil
}

func (q *queries) listRepositories(ctx context.Context, query string, args ...any) ([]model.Repository, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

// GetRepositoryByID retrieves a repository by internal ID.
func (q *queries) GetRepositoryByID(ctx context.Context, id string) (*model.Repository, error) {
	r, err := scanRepository(q.queryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "repository", id, "getting repository "+id)
	}
	return r, nil
}

// GetRepositoryByGitHubID retrieves a repository by its owner/name.
func (q *queries) GetRepositoryByGitHubID(ctx context.Context, githubID string) (*model.Repository, error) {
	r, err := scanRepository(q.queryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE github_id = ?`, githubID))
	if err != nil {
		return nil, notFoundOr(err, "repository", githubID, "getting repository "+githubID)
	}
	return r, nil
}

// CreateRepository inserts a new repository. The ID and timestamps are set
// on the caller's struct.
func (q *queries) CreateRepository(ctx context.Context, repo *model.Repository) error {
	now := time.Now().UTC()
	repo.ID = xid.New().String()
	repo.CreatedAt = now
	repo.UpdatedAt = now
	repo.IsActive = true

	_, err := q.exec(ctx,
		`INSERT INTO repositories (id, github_id, owner_id, name, full_name, description, url, language,
			github_stars, forks, watchers, is_active, synced_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID,
		repo.GitHubID,
		repo.OwnerID,
		repo.Name,
		repo.FullName,
		repo.Description,
		repo.URL,
		repo.Language,
		repo.GitHubStars,
		repo.Forks,
		repo.Watchers,
		repo.IsActive,
		nullTime(repo.SyncedAt),
		repo.CreatedAt,
		repo.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("repository", repo.GitHubID)
		}
		return fmt.Errorf("sqlstore: inserting repository %s: %w", repo.GitHubID, err)
	}
	return nil
}

// UpdatePitch replaces the description shown on feed cards.
func (q *queries) UpdatePitch(ctx context.Context, id, pitch string) error {
	res, err := q.exec(ctx,
		`UPDATE repositories SET description = ?, updated_at = ? WHERE id = ?`,
		pitch, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating pitch for %s: %w", id, err)
	}
	return expectOne(res, "repository", id)
}

// UpdateGitHubStats mirrors the counters GitHub reports. A successful sync
// is also a sync attempt.
func (q *queries) UpdateGitHubStats(ctx context.Context, id string, stars, forks, watchers int64, syncedAt time.Time) error {
	syncedAt = syncedAt.UTC()
	res, err := q.exec(ctx,
		`UPDATE repositories SET github_stars = ?, forks = ?, watchers = ?, synced_at = ?, sync_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		stars, forks, watchers, syncedAt, syncedAt, syncedAt, id,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating github stats for %s: %w", id, err)
	}
	return expectOne(res, "repository", id)
}

// IncrementEngagement adds a trust-weighted star.
func (q *queries) IncrementEngagement(ctx context.Context, id string, weight float64) error {
	res, err := q.exec(ctx,
		`UPDATE repositories SET engagement_score = engagement_score + ?, updated_at = ? WHERE id = ?`,
		weight, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: incrementing engagement for %s: %w", id, err)
	}
	return expectOne(res, "repository", id)
}

// AdjustStarCount adds delta to the local star counter, floored at zero.
func (q *queries) AdjustStarCount(ctx context.Context, id string, delta int64) error {
	return q.adjustCounter(ctx, "repositories", "star_count", "repository", id, delta)
}

// ListRepositoriesByOwner returns the owner's repositories, newest first.
func (q *queries) ListRepositoriesByOwner(ctx context.Context, ownerID string) ([]model.Repository, error) {
	repos, err := q.listRepositories(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing repositories for %s: %w", ownerID, err)
	}
	return repos, nil
}

// CountRepositoriesByOwner counts the owner's repositories.
func (q *queries) CountRepositoriesByOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM repositories WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: counting repositories for %s: %w", ownerID, err)
	}
	return n, nil
}

// MarkSyncAttempt records a failed sync so the repository moves to the back
// of the stale queue. synced_at is left alone.
func (q *queries) MarkSyncAttempt(ctx context.Context, id string, at time.Time) error {
	res, err := q.exec(ctx, `UPDATE repositories SET sync_attempt_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlstore: marking sync attempt for %s: %w", id, err)
	}
	return expectOne(res, "repository", id)
}

// ListStaleRepositories returns active repositories in sync order: never
// attempted first, then oldest attempt. Ordering by attempt rather than by
// success keeps repositories that keep failing from holding the head.
func (q *queries) ListStaleRepositories(ctx context.Context, limit int) ([]model.Repository, error) {
	repos, err := q.listRepositories(ctx,
		`SELECT `+repositoryColumns+` FROM repositories
		 WHERE is_active = ?
		 ORDER BY CASE WHEN sync_attempt_at IS NULL THEN 0 ELSE 1 END, sync_attempt_at ASC, id ASC
		 LIMIT ?`,
		true, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing stale repositories: %w", err)
	}
	return repos, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
