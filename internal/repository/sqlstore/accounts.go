package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/starswipe/internal/model"
)

// GetStreak returns the user's streak, or nil if there is none yet.
func (q *queries) GetStreak(ctx context.Context, userID string) (*model.ActivityStreak, error) {
	var (
		s    model.ActivityStreak
		last sql.NullTime
	)
	err := q.queryRow(ctx,
		`SELECT user_id, current_streak, longest_streak, last_active FROM activity_streaks WHERE user_id = ?`,
		userID,
	).Scan(&s.UserID, &s.Current, &s.Longest, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting streak for %s: %w", userID, err)
	}
	if last.Valid {
		t := last.Time.UTC()
		s.LastActive = &t
	}
	return &s, nil
}

// SaveStreak inserts or replaces the user's streak row.
func (q *queries) SaveStreak(ctx context.Context, s *model.ActivityStreak) error {
	_, err := q.exec(ctx,
		`INSERT INTO activity_streaks (user_id, current_streak, longest_streak, last_active)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_active    = excluded.last_active`,
		s.UserID, s.Current, s.Longest, nullTime(s.LastActive),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: saving streak for %s: %w", s.UserID, err)
	}
	return nil
}

// GetCredential returns the user's linked account for provider, or nil.
func (q *queries) GetCredential(ctx context.Context, userID, provider string) (*model.Credential, error) {
	var c model.Credential
	err := q.queryRow(ctx,
		`SELECT id, user_id, provider, provider_account_id, access_token, created_at, updated_at
		 FROM credentials WHERE user_id = ? AND provider = ?
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, provider,
	).Scan(&c.ID, &c.UserID, &c.Provider, &c.ProviderAccountID, &c.AccessToken, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: getting %s credential for %s: %w", provider, userID, err)
	}
	return &c, nil
}

// UpsertCredential stores a (possibly refreshed) token for a linked account.
func (q *queries) UpsertCredential(ctx context.Context, c *model.Credential) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}

	_, err := q.exec(ctx,
		`INSERT INTO credentials (id, user_id, provider, provider_account_id, access_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_account_id) DO UPDATE SET
			user_id      = excluded.user_id,
			access_token = excluded.access_token,
			updated_at   = excluded.updated_at`,
		c.ID, c.UserID, c.Provider, c.ProviderAccountID, c.AccessToken, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting %s credential for %s: %w", c.Provider, c.UserID, err)
	}
	return nil
}
