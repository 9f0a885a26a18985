package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
)

const (
	DefaultFeedLimit = 10
	MaxFeedLimit     = 20
	FeedCacheTTL     = 60 * time.Second
)

// FeedService builds a user's swipe feed.
type FeedService struct {
	store  repository.Store
	cache  cache.Cache
	sync   *StarSyncService
	logger *slog.Logger
	// intN picks the shuffle offset. Tests replace it.
	intN func(n int) int
}

func NewFeedService(store repository.Store, c cache.Cache, sync *StarSyncService, logger *slog.Logger) *FeedService {
	return &FeedService{store: store, cache: c, sync: sync, logger: logger, intN: rand.IntN}
}

// GenerateFeed returns one page of repositories the user has not swiped,
// best first, lightly shuffled. Cached pages may be up to a minute stale.
func (s *FeedService) GenerateFeed(ctx context.Context, userID, cursor string, limit int) (*model.FeedPage, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	limit = clampLimit(limit, DefaultFeedLimit, MaxFeedLimit)

	s.sync.ScheduleReconcile(userID)

	key := cache.FeedKey(userID, cursor, limit)
	if page, ok := s.cached(ctx, key); ok {
		return s.shuffled(page), nil
	}

	page, err := s.query(ctx, userID, cursor, limit)
	if err != nil {
		return nil, err
	}

	if len(page.Items) > 0 {
		if raw, err := json.Marshal(page); err != nil {
			s.logger.Error("encoding feed page", slog.String("error", err.Error()))
		} else if err := s.cache.Set(ctx, key, raw, FeedCacheTTL); err != nil {
			s.logger.Warn("feed cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return s.shuffled(page), nil
}

func (s *FeedService) cached(ctx context.Context, key string) (*model.FeedPage, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("feed cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var page model.FeedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		s.logger.Warn("discarding corrupt feed cache entry", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	return &page, true
}

func (s *FeedService) query(ctx context.Context, userID, cursor string, limit int) (*model.FeedPage, error) {
	q := repository.FeedQuery{UserID: userID, Limit: limit}
	if cursor != "" {
		after, err := s.store.FeedCursorFor(ctx, cursor)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.ValidationFailed("cursor", "unknown cursor")
			}
			return nil, fmt.Errorf("service/feed: resolving cursor: %w", err)
		}
		q.After = after
	}

	items, err := s.store.ListFeedCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/feed: listing candidates: %w", err)
	}

	page := &model.FeedPage{Items: items}
	if len(items) == limit {
		next := items[len(items)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// shuffled returns a copy of page where each item, walking from the end,
// may swap with its immediate predecessor. Coarse rank order survives.
func (s *FeedService) shuffled(page *model.FeedPage) *model.FeedPage {
	items := make([]model.FeedItem, len(page.Items))
	copy(items, page.Items)
	for i := len(items) - 1; i > 0; i-- {
		j := i - s.intN(2)
		items[i], items[j] = items[j], items[i]
	}
	return &model.FeedPage{Items: items, NextCursor: page.NextCursor}
}
