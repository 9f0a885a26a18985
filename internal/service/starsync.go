package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/crypto"
	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
	"github.com/sakif/starswipe/internal/task"
)

const (
	reconcileSampleSize = 3
	reconcileBatchSize  = 50
	reconcileJob        = "reconcile"

	// StarSettleWindow is how old a STAR must be before reconciliation may
	// question it. Pushes and reconciles share the task pool and nothing
	// orders them, so a younger star may simply not have reached GitHub
	// yet. It must comfortably exceed the pool's task timeout.
	StarSettleWindow = 2 * time.Minute
)

// StarPush asks GitHub to mirror one committed STAR.
type StarPush struct {
	UserID   string
	FullName string
}

// StarSyncService mirrors local stars to GitHub and corrects local state when
// GitHub says a star is gone. Local swipes are authoritative for pushes;
// GitHub is authoritative for corrections.
type StarSyncService struct {
	store  repository.Store
	cache  cache.Cache
	gh     GitHubAPI
	enc    *crypto.TokenEncryptor
	tasks  task.Submitter
	logger *slog.Logger
	settle time.Duration
	now    Clock
}

func NewStarSyncService(
	store repository.Store,
	c cache.Cache,
	gh GitHubAPI,
	enc *crypto.TokenEncryptor,
	tasks task.Submitter,
	logger *slog.Logger,
) *StarSyncService {
	return &StarSyncService{
		store:  store,
		cache:  c,
		gh:     gh,
		enc:    enc,
		tasks:  tasks,
		logger: logger,
		settle: StarSettleWindow,
		now:    systemClock,
	}
}

// SchedulePush queues a push without waiting for it.
func (s *StarSyncService) SchedulePush(job StarPush) {
	if !s.tasks.Submit("star-push", func(ctx context.Context) error { return s.Push(ctx, job) }) {
		s.logger.Warn("star push dropped",
			slog.String("userId", job.UserID),
			slog.String("repository", job.FullName),
		)
	}
}

// ScheduleReconcile queues a sampled reconciliation for userID.
func (s *StarSyncService) ScheduleReconcile(userID string) {
	if !s.tasks.Submit("star-reconcile", func(ctx context.Context) error {
		_, err := s.ReconcileUser(ctx, userID)
		return err
	}) {
		s.logger.Debug("star reconcile dropped", slog.String("userId", userID))
	}
}

// Push stars the repository on GitHub as the user. A missing or unusable
// credential is not an error: there is nothing to push with.
func (s *StarSyncService) Push(ctx context.Context, job StarPush) error {
	token, ok, err := s.accessToken(ctx, job.UserID)
	if err != nil || !ok {
		return err
	}
	if err := s.gh.Star(ctx, token, job.FullName); err != nil {
		return fmt.Errorf("service/starsync: starring %s for %s: %w", job.FullName, job.UserID, err)
	}
	s.logger.Debug("star pushed", slog.String("userId", job.UserID), slog.String("repository", job.FullName))
	return nil
}

// ReconcileUser checks the user's most recent STAR swipes against GitHub and
// returns how many were corrected. Stars younger than the settle window are
// left alone.
func (s *StarSyncService) ReconcileUser(ctx context.Context, userID string) (int, error) {
	token, ok, err := s.accessToken(ctx, userID)
	if err != nil || !ok {
		return 0, err
	}

	stars, err := s.store.ListRecentStars(ctx, userID, reconcileSampleSize)
	if err != nil {
		return 0, fmt.Errorf("service/starsync: listing recent stars: %w", err)
	}

	corrected := 0
	for _, st := range stars {
		if !s.settled(st) {
			continue
		}
		fixed, err := s.check(ctx, token, st)
		if err != nil {
			s.logger.Warn("star reconcile failed",
				slog.String("swipeId", st.SwipeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if fixed {
			corrected++
		}
	}
	return corrected, nil
}

// settled reports whether st is old enough for its push to have landed.
func (s *StarSyncService) settled(st model.StarredSwipe) bool {
	return !st.CreatedAt.After(s.now().Add(-s.settle))
}

// ReconcileSweep checks one batch of STAR swipes, resuming where the last run
// stopped. When the end is reached the cursor wraps to the start.
func (s *StarSyncService) ReconcileSweep(ctx context.Context) (int, error) {
	key := cache.CursorKey(reconcileJob)

	after := ""
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("reconcile cursor unavailable, starting over", slog.String("error", err.Error()))
	} else if ok {
		after = string(raw)
	}

	stars, err := s.store.ListStarsAfter(ctx, after, reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("service/starsync: paging stars after %q: %w", after, err)
	}

	next := ""
	if len(stars) == reconcileBatchSize {
		next = stars[len(stars)-1].SwipeID
	}
	defer func() {
		if err := s.cache.Set(ctx, key, []byte(next), 0); err != nil {
			s.logger.Warn("saving reconcile cursor failed", slog.String("error", err.Error()))
		}
	}()

	tokens := make(map[string]string)
	corrected := 0
	for _, st := range stars {
		if err := ctx.Err(); err != nil {
			return corrected, err
		}
		// Unsettled stars sit at the end of the id order; the next lap
		// picks them up.
		if !s.settled(st) {
			continue
		}

		token, seen := tokens[st.UserID]
		if !seen {
			t, ok, err := s.accessToken(ctx, st.UserID)
			if err != nil {
				s.logger.Warn("reconcile: loading credential failed",
					slog.String("userId", st.UserID),
					slog.String("error", err.Error()),
				)
			}
			if !ok {
				t = ""
			}
			tokens[st.UserID] = t
			token = t
		}
		if token == "" {
			continue
		}

		fixed, err := s.check(ctx, token, st)
		if err != nil {
			s.logger.Warn("star reconcile failed",
				slog.String("swipeId", st.SwipeID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if fixed {
			corrected++
		}
	}
	return corrected, nil
}

// check asks GitHub about one star and corrects it when GitHub says it is
// gone. An unknown answer never triggers a correction.
func (s *StarSyncService) check(ctx context.Context, token string, st model.StarredSwipe) (bool, error) {
	state, err := s.gh.IsStarred(ctx, token, st.FullName)
	if err != nil {
		return false, err
	}
	if state != github.NotStarred {
		return false, nil
	}
	return s.correct(ctx, st)
}

// correct deletes a desynced STAR and reverses its counters. Only the call
// that actually deletes the row decrements anything.
func (s *StarSyncService) correct(ctx context.Context, st model.StarredSwipe) (bool, error) {
	deleted := false
	err := s.store.WithTx(ctx, func(tx repository.Queries) error {
		var err error
		deleted, err = tx.DeleteStarSwipe(ctx, st.SwipeID)
		if err != nil || !deleted {
			return err
		}

		repo, err := tx.GetRepositoryByID(ctx, st.RepositoryID)
		if err != nil {
			return err
		}
		if err := tx.AdjustStarCount(ctx, repo.ID, -1); err != nil {
			return err
		}
		if err := tx.AdjustStarsReceived(ctx, repo.OwnerID, -1); err != nil {
			return err
		}
		return tx.AdjustStarsGiven(ctx, st.UserID, -1)
	})
	if err != nil {
		return false, fmt.Errorf("service/starsync: correcting swipe %s: %w", st.SwipeID, err)
	}

	if deleted {
		s.logger.Info("star desync corrected",
			slog.String("swipeId", st.SwipeID),
			slog.String("userId", st.UserID),
			slog.String("repository", st.FullName),
		)
	}
	return deleted, nil
}

// accessToken returns the user's decrypted GitHub token. ok is false when
// the user never linked GitHub or the stored token cannot be decrypted.
func (s *StarSyncService) accessToken(ctx context.Context, userID string) (string, bool, error) {
	cred, err := s.store.GetCredential(ctx, userID, model.ProviderGitHub)
	if err != nil {
		return "", false, fmt.Errorf("service/starsync: loading credential: %w", err)
	}
	if cred == nil {
		return "", false, nil
	}

	token, err := s.enc.Decrypt(cred.AccessToken)
	if err != nil {
		if errors.Is(err, crypto.ErrUnusable) {
			s.logger.Warn("github credential unusable, skipping sync",
				slog.String("userId", userID),
				slog.String("error", err.Error()),
			)
			return "", false, nil
		}
		return "", false, err
	}
	return token, true, nil
}
