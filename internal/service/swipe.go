package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
	"github.com/sakif/starswipe/internal/score"
	"github.com/sakif/starswipe/internal/streak"
)

// SwipeService is the swipe transaction processor.
type SwipeService struct {
	store       repository.Store
	velocity    *VelocityLimiter
	leaderboard *LeaderboardService
	sync        *StarSyncService
	logger      *slog.Logger
	now         Clock
}

func NewSwipeService(
	store repository.Store,
	velocity *VelocityLimiter,
	leaderboard *LeaderboardService,
	sync *StarSyncService,
	logger *slog.Logger,
) *SwipeService {
	return &SwipeService{
		store:       store,
		velocity:    velocity,
		leaderboard: leaderboard,
		sync:        sync,
		logger:      logger,
		now:         systemClock,
	}
}

// starOutcome carries what the post-commit side effects need.
type starOutcome struct {
	score    float64
	fullName string
}

// ProcessSwipe records one swipe.
//
// Everything that must be atomic happens in a single store transaction: the
// velocity penalty, the swipe insert and for STAR swipes the streak, the
// counters and the new leaderboard score. A CONFLICT, FORBIDDEN or NOT_FOUND
// outcome rolls all of it back, penalty included.
//
// The leaderboard index update and the GitHub push run after commit and never
// fail the call.
func (s *SwipeService) ProcessSwipe(ctx context.Context, userID, repositoryID string, t model.SwipeType, meta model.ClientMeta) (*model.SwipeResult, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	if repositoryID == "" {
		return nil, apperror.ValidationFailed("repositoryId", "repositoryId is required")
	}
	if !t.Valid() {
		return nil, apperror.ValidationFailed("type", "type must be STAR or SKIP")
	}

	verdict, err := s.velocity.Check(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	swipe := &model.SwipeAction{
		UserID:       userID,
		RepositoryID: repositoryID,
		Type:         t,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}
	var outcome *starOutcome

	err = s.store.WithTx(ctx, func(tx repository.Queries) error {
		user, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsBlocked {
			return apperror.Forbidden("account is blocked")
		}

		trust := user.TrustScore
		if verdict.Penalize {
			trust, err = penalize(ctx, tx, userID, ReasonHighVelocity, SeverityHighVelocity)
			if err != nil {
				return err
			}
		}

		repo, err := tx.GetRepositoryByID(ctx, repositoryID)
		if err != nil {
			return err
		}
		if !repo.IsActive {
			return apperror.NotFound("repository", repositoryID)
		}
		if repo.OwnerID == userID {
			return apperror.Forbidden("cannot swipe your own repository")
		}

		if err := tx.InsertSwipe(ctx, swipe); err != nil {
			return err
		}
		if t == model.SwipeSkip {
			return nil
		}

		outcome, err = s.applyStar(ctx, tx, user.ID, repo, trust, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if verdict.Penalize {
		s.logger.Warn("swipe velocity penalty applied",
			slog.String("userId", userID),
			slog.Int64("count", verdict.Count),
		)
	}

	result := &model.SwipeResult{SwipeID: swipe.ID}
	if outcome == nil {
		return result, nil
	}

	s.leaderboard.Record(ctx, userID, outcome.score)
	s.sync.SchedulePush(StarPush{UserID: userID, FullName: outcome.fullName})

	result.NewScore = &outcome.score
	return result, nil
}

// applyStar runs the STAR-only part of the transaction.
func (s *SwipeService) applyStar(ctx context.Context, tx repository.Queries, userID string, repo *model.Repository, trust float64, now time.Time) (*starOutcome, error) {
	current, err := tx.GetStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	tr := streak.Apply(current, userID, now)
	if tr.Incremented {
		if err := tx.SaveStreak(ctx, &tr.Streak); err != nil {
			return nil, err
		}
		if err := tx.IncrementStreakCount(ctx, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.IncrementEngagement(ctx, repo.ID, trust); err != nil {
		return nil, err
	}
	if err := tx.AdjustStarCount(ctx, repo.ID, 1); err != nil {
		return nil, err
	}
	if err := tx.AdjustStarsReceived(ctx, repo.OwnerID, 1); err != nil {
		return nil, err
	}

	user, err := tx.RecordStarGiven(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	v := score.LeaderboardScore(
		score.Participant{StarsGiven: user.StarsGiven, StreakCount: user.StreakCount, TrustScore: user.TrustScore},
		score.OwnerAggregate{StarsReceived: user.StarsReceived},
	)
	if !score.Finite(v) {
		return nil, fmt.Errorf("service/swipe: non-finite score for %s", userID)
	}
	if err := tx.SetLeaderboardScore(ctx, userID, v); err != nil {
		return nil, err
	}
	return &starOutcome{score: v, fullName: repo.FullName}, nil
}
