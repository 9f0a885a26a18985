package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
)

// Manual sync budget per repository.
const (
	SyncWindow = time.Hour
	SyncLimit  = 5

	staleRefreshBatch = 10
)

var fullNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// RepositoryService covers submission, pitch edits and GitHub metadata
// refreshes.
type RepositoryService struct {
	store  repository.Store
	cache  cache.Cache
	gh     GitHubAPI
	logger *slog.Logger
	now    Clock
}

func NewRepositoryService(store repository.Store, c cache.Cache, gh GitHubAPI, logger *slog.Logger) *RepositoryService {
	return &RepositoryService{store: store, cache: c, gh: gh, logger: logger, now: systemClock}
}

func validateSubmission(fullName, pitch string) error {
	if !fullNamePattern.MatchString(fullName) {
		return apperror.ValidationFailed("externalRepoId", "externalRepoId must look like owner/repo")
	}
	if utf8.RuneCountInString(pitch) > model.MaxPitchLength {
		return apperror.ValidationFailed("pitch", fmt.Sprintf("pitch must be at most %d characters", model.MaxPitchLength))
	}
	return nil
}

// Submit adds a public GitHub repository to the feed. The repository is
// owned by its GitHub owner, who is created as a user if needed; the
// submitter only triggers it.
func (s *RepositoryService) Submit(ctx context.Context, submitterID, fullName, pitch string) (*model.Repository, error) {
	fullName = strings.TrimSpace(fullName)
	pitch = strings.TrimSpace(pitch)
	if err := validateSubmission(fullName, pitch); err != nil {
		return nil, err
	}

	_, err := s.store.GetRepositoryByGitHubID(ctx, fullName)
	switch {
	case err == nil:
		return nil, apperror.Conflict("repository", fullName)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/repos: checking %s: %w", fullName, err)
	}

	meta, err := s.gh.GetRepository(ctx, fullName)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, apperror.NotFound("github repository", fullName)
		}
		return nil, fmt.Errorf("service/repos: fetching %s from github: %w", fullName, err)
	}
	if meta.Private {
		return nil, apperror.ValidationFailed("externalRepoId", "repository must be public")
	}

	ghOwner, err := s.gh.GetUser(ctx, meta.Owner.Login)
	if err != nil {
		return nil, fmt.Errorf("service/repos: fetching owner %s: %w", meta.Owner.Login, err)
	}

	description := pitch
	if description == "" {
		description = meta.Description
	}
	now := s.now()
	repo := &model.Repository{
		GitHubID:    fullName,
		Name:        meta.Name,
		FullName:    meta.FullName,
		Description: description,
		URL:         meta.HTMLURL,
		Language:    meta.Language,
		GitHubStars: meta.StargazersCount,
		Forks:       meta.ForksCount,
		Watchers:    meta.WatchersCount,
		SyncedAt:    &now,
	}

	err = s.store.WithTx(ctx, func(tx repository.Queries) error {
		owner := &model.User{
			GitHubID:  ghOwner.ID,
			Username:  ghOwner.Login,
			Name:      ghOwner.Name,
			AvatarURL: ghOwner.AvatarURL,
		}
		if err := tx.UpsertGitHubUser(ctx, owner); err != nil {
			return err
		}
		repo.OwnerID = owner.ID
		return tx.CreateRepository(ctx, repo)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("repository submitted",
		slog.String("repositoryId", repo.ID),
		slog.String("fullName", repo.FullName),
		slog.String("ownerId", repo.OwnerID),
		slog.String("submittedBy", submitterID),
	)
	s.flushFeeds(ctx)
	return repo, nil
}

// UpdatePitch replaces the pitch. Only the owner may edit it.
func (s *RepositoryService) UpdatePitch(ctx context.Context, userID, fullName, pitch string) (*model.Repository, error) {
	fullName = strings.TrimSpace(fullName)
	pitch = strings.TrimSpace(pitch)
	if err := validateSubmission(fullName, pitch); err != nil {
		return nil, err
	}

	repo, err := s.store.GetRepositoryByGitHubID(ctx, fullName)
	if err != nil {
		return nil, err
	}
	if repo.OwnerID != userID {
		return nil, apperror.Forbidden("only the owner of this repository can edit its pitch")
	}

	if err := s.store.UpdatePitch(ctx, repo.ID, pitch); err != nil {
		return nil, err
	}
	repo.Description = pitch

	s.flushFeeds(ctx)
	return repo, nil
}

// Sync mirrors the repository's GitHub star count. Each repository gets five
// manual syncs per hour.
func (s *RepositoryService) Sync(ctx context.Context, repositoryID string) (*model.SyncResult, error) {
	repo, err := s.store.GetRepositoryByID(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	n, err := s.cache.IncrWindow(ctx, cache.SyncRateKey(repositoryID), SyncWindow)
	if err != nil {
		s.logger.Warn("sync counter unavailable, not limiting",
			slog.String("repositoryId", repositoryID),
			slog.String("error", err.Error()),
		)
	} else if n > SyncLimit {
		return nil, apperror.RateLimited("sync rate limit exceeded for this repository")
	}

	return s.refresh(ctx, repo)
}

// RefreshStale refreshes the least recently attempted active repositories.
// Failures are logged per repository and still count as an attempt, so a
// repository gone from GitHub cannot starve the rest.
func (s *RepositoryService) RefreshStale(ctx context.Context) (int, error) {
	repos, err := s.store.ListStaleRepositories(ctx, staleRefreshBatch)
	if err != nil {
		return 0, fmt.Errorf("service/repos: listing stale repositories: %w", err)
	}

	refreshed := 0
	for i := range repos {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := s.refresh(ctx, &repos[i]); err != nil {
			s.logger.Warn("github star refresh failed",
				slog.String("repositoryId", repos[i].ID),
				slog.String("fullName", repos[i].FullName),
				slog.String("error", err.Error()),
			)
			if err := s.store.MarkSyncAttempt(ctx, repos[i].ID, s.now()); err != nil {
				s.logger.Warn("recording sync attempt failed",
					slog.String("repositoryId", repos[i].ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (s *RepositoryService) refresh(ctx context.Context, repo *model.Repository) (*model.SyncResult, error) {
	meta, err := s.gh.GetRepository(ctx, repo.GitHubID)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			return nil, apperror.NotFound("github repository", repo.GitHubID)
		}
		return nil, fmt.Errorf("service/repos: fetching %s from github: %w", repo.GitHubID, err)
	}

	now := s.now()
	if err := s.store.UpdateGitHubStats(ctx, repo.ID, meta.StargazersCount, meta.ForksCount, meta.WatchersCount, now); err != nil {
		return nil, err
	}
	return &model.SyncResult{RepositoryID: repo.ID, Stars: meta.StargazersCount, SyncedAt: now}, nil
}

func (s *RepositoryService) flushFeeds(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, cache.FeedPrefix); err != nil {
		s.logger.Warn("feed cache flush failed", slog.String("error", err.Error()))
	}
}
