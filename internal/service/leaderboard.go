package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
	"github.com/sakif/starswipe/internal/score"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	recomputeBatchSize      = 500
)

// LeaderboardService keeps the sorted leaderboard index in the cache in step
// with users.leaderboard_score, and reads from whichever is available.
type LeaderboardService struct {
	store     repository.Store
	cache     cache.Cache
	logger    *slog.Logger
	batchSize int
	now       Clock
}

func NewLeaderboardService(store repository.Store, c cache.Cache, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:     store,
		cache:     c,
		logger:    logger,
		batchSize: recomputeBatchSize,
		now:       systemClock,
	}
}

// Record mirrors one freshly committed score into the index. A failure only
// leaves drift for the hourly recompute to correct.
func (s *LeaderboardService) Record(ctx context.Context, userID string, value float64) {
	if err := s.cache.ZAdd(ctx, cache.LeaderboardKey, userID, value); err != nil {
		s.logger.Warn("leaderboard index update failed",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Remove drops a user from the index.
func (s *LeaderboardService) Remove(ctx context.Context, userID string) {
	if err := s.cache.ZRem(ctx, cache.LeaderboardKey, userID); err != nil {
		s.logger.Warn("leaderboard index removal failed",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Top returns the highest ranked users. The index is authoritative for order
// when reachable and non-empty; otherwise the store answers.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	limit = clampLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)

	scores, err := s.cache.ZRevRange(ctx, cache.LeaderboardKey, 0, int64(limit-1))
	if err != nil {
		s.logger.Warn("leaderboard index unavailable, reading store", slog.String("error", err.Error()))
		return s.topFromStore(ctx, limit)
	}
	if len(scores) == 0 {
		return s.topFromStore(ctx, limit)
	}

	ids := make([]string, len(scores))
	for i, sc := range scores {
		ids[i] = sc.UserID
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: loading profiles: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(scores))
	for _, sc := range scores {
		u, ok := users[sc.UserID]
		if !ok || u.IsBlocked {
			continue
		}
		entries = append(entries, model.LeaderboardEntry{
			Rank:      int64(len(entries) + 1),
			UserID:    u.ID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Score:     sc.Score,
		})
	}
	return entries, nil
}

func (s *LeaderboardService) topFromStore(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	users, err := s.store.TopUsersByScore(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: reading top users: %w", err)
	}

	entries := make([]model.LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = model.LeaderboardEntry{
			Rank:      int64(i + 1),
			UserID:    u.ID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Score:     u.LeaderboardScore,
		}
	}
	return entries, nil
}

// Rank returns the user's 1-based rank, or nil when the user is unranked.
func (s *LeaderboardService) Rank(ctx context.Context, userID string) (*int64, error) {
	rank, ok, err := s.cache.ZRevRank(ctx, cache.LeaderboardKey, userID)
	if err == nil && ok {
		r := rank + 1
		return &r, nil
	}
	if err != nil {
		s.logger.Warn("leaderboard index unavailable, ranking from store",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: loading user: %w", err)
	}
	if u.IsBlocked || u.LeaderboardScore <= 0 {
		return nil, nil
	}

	above, err := s.store.CountUsersScoringAbove(ctx, u.LeaderboardScore)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: counting: %w", err)
	}
	r := above + 1
	return &r, nil
}

// RecomputeScores rebuilds every eligible user's score from current counters
// in keyset batches. Each batch is one transaction followed by one pipelined
// index write. A failed batch is logged and skipped.
func (s *LeaderboardService) RecomputeScores(ctx context.Context) (int, error) {
	after := ""
	updated := 0

	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		rows, err := s.store.ListScoringUsers(ctx, after, s.batchSize)
		if err != nil {
			return updated, fmt.Errorf("service/leaderboard: paging users after %q: %w", after, err)
		}
		if len(rows) == 0 {
			return updated, nil
		}
		after = rows[len(rows)-1].UserID

		batch := make([]model.UserScore, 0, len(rows))
		for _, r := range rows {
			v := score.LeaderboardScore(
				score.Participant{StarsGiven: r.StarsGiven, StreakCount: r.StreakCount, TrustScore: r.TrustScore},
				score.OwnerAggregate{StarsReceived: r.StarsReceived},
			)
			if !score.Finite(v) {
				s.logger.Error("leaderboard recompute: non-finite score", slog.String("userId", r.UserID))
				continue
			}
			batch = append(batch, model.UserScore{UserID: r.UserID, Score: v})
		}

		err = s.store.WithTx(ctx, func(tx repository.Queries) error {
			for _, b := range batch {
				if err := tx.SetLeaderboardScore(ctx, b.UserID, b.Score); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Error("leaderboard recompute: batch failed",
				slog.String("after", after),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()),
			)
		} else {
			updated += len(batch)
			if err := s.cache.ZAddBatch(ctx, cache.LeaderboardKey, batch); err != nil {
				s.logger.Warn("leaderboard recompute: index write failed", slog.String("error", err.Error()))
			}
		}

		if len(rows) < s.batchSize {
			return updated, nil
		}
	}
}

// RecomputeVisibility refreshes every active repository's visibility score.
// It must run even without new swipes since the score decays with age.
func (s *LeaderboardService) RecomputeVisibility(ctx context.Context) (int, error) {
	after := ""
	updated := 0
	now := s.now()

	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		rows, err := s.store.ListActiveRepositories(ctx, after, s.batchSize)
		if err != nil {
			return updated, fmt.Errorf("service/leaderboard: paging repositories after %q: %w", after, err)
		}
		if len(rows) == 0 {
			return updated, nil
		}
		after = rows[len(rows)-1].RepositoryID

		err = s.store.WithTx(ctx, func(tx repository.Queries) error {
			for _, r := range rows {
				v := score.VisibilityScore(r.EngagementScore, score.AgeHours(r.CreatedAt, now))
				if !score.Finite(v) {
					s.logger.Error("visibility recompute: non-finite score", slog.String("repositoryId", r.RepositoryID))
					continue
				}
				if err := tx.SetVisibilityScore(ctx, r.RepositoryID, v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Error("visibility recompute: batch failed",
				slog.String("after", after),
				slog.String("error", err.Error()),
			)
		} else {
			updated += len(rows)
		}

		if len(rows) < s.batchSize {
			return updated, nil
		}
	}
}
