package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/auth"
	"github.com/sakif/starswipe/internal/handler"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/service"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- fakes ---

type mockSwiper struct {
	gotUser, gotRepo string
	gotType          model.SwipeType
	gotMeta          model.ClientMeta
	result           *model.SwipeResult
	err              error
}

func (m *mockSwiper) ProcessSwipe(_ context.Context, userID, repositoryID string, t model.SwipeType, meta model.ClientMeta) (*model.SwipeResult, error) {
	m.gotUser, m.gotRepo, m.gotType, m.gotMeta = userID, repositoryID, t, meta
	return m.result, m.err
}

type mockFeed struct {
	gotCursor string
	gotLimit  int
	page      *model.FeedPage
	err       error
}

func (m *mockFeed) GenerateFeed(_ context.Context, _, cursor string, limit int) (*model.FeedPage, error) {
	m.gotCursor, m.gotLimit = cursor, limit
	return m.page, m.err
}

type mockRepos struct {
	gotName, gotPitch, gotID string
	repo                     *model.Repository
	sync                     *model.SyncResult
	err                      error
}

func (m *mockRepos) Submit(_ context.Context, _, fullName, pitch string) (*model.Repository, error) {
	m.gotName, m.gotPitch = fullName, pitch
	return m.repo, m.err
}

func (m *mockRepos) UpdatePitch(_ context.Context, _, fullName, pitch string) (*model.Repository, error) {
	m.gotName, m.gotPitch = fullName, pitch
	return m.repo, m.err
}

func (m *mockRepos) Sync(_ context.Context, id string) (*model.SyncResult, error) {
	m.gotID = id
	return m.sync, m.err
}

type mockBoard struct {
	entries []model.LeaderboardEntry
	rank    *int64
	gotUser string
	err     error
}

func (m *mockBoard) Top(_ context.Context, _ int) ([]model.LeaderboardEntry, error) {
	return m.entries, m.err
}

func (m *mockBoard) Rank(_ context.Context, userID string) (*int64, error) {
	m.gotUser = userID
	return m.rank, m.err
}

type mockProfiles struct {
	me     *model.PrivateProfile
	repos  []model.Repository
	public *model.PublicProfile
	err    error
}

func (m *mockProfiles) Me(context.Context, string) (*model.PrivateProfile, error) { return m.me, m.err }
func (m *mockProfiles) MyRepos(context.Context, string) ([]model.Repository, error) {
	return m.repos, m.err
}
func (m *mockProfiles) Public(context.Context, string) (*model.PublicProfile, error) {
	return m.public, m.err
}

type mockModerator struct {
	gotActor, gotTarget string
	gotLimit, gotOffset int
	err                 error
}

func (m *mockModerator) ToggleBlock(_ context.Context, actor, target string) (*service.BlockStatus, error) {
	m.gotActor, m.gotTarget = actor, target
	if m.err != nil {
		return nil, m.err
	}
	return &service.BlockStatus{UserID: target, IsBlocked: true}, nil
}

func (m *mockModerator) ResetTrust(_ context.Context, actor, target string) (*service.TrustStatus, error) {
	m.gotActor, m.gotTarget = actor, target
	return &service.TrustStatus{UserID: target, TrustScore: 1}, m.err
}

func (m *mockModerator) ListAbuseLogs(_ context.Context, limit, offset int) ([]model.AbuseLog, error) {
	m.gotLimit, m.gotOffset = limit, offset
	return []model.AbuseLog{{ID: "log1", Reason: "HIGH_VELOCITY"}}, m.err
}

func (m *mockModerator) ListFlaggedUsers(_ context.Context, limit int) ([]model.FlaggedUser, error) {
	m.gotLimit = limit
	return []model.FlaggedUser{{ID: "u9", TrustScore: 0.4}}, m.err
}

// --- helpers ---

func authed(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.ContextWithUserID(r.Context(), userID))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

// --- swipe ---

func TestSwipeHandler(t *testing.T) {
	score := 0.42
	swiper := &mockSwiper{result: &model.SwipeResult{SwipeID: "s1", NewScore: &score}}
	h := handler.NewSwipeHandler(swiper, discard)

	t.Run("records the swipe", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/swipe", strings.NewReader(`{"repositoryId":"r1","type":"STAR"}`))
		req.Header.Set("User-Agent", "swipe-test")
		req = authed(req, "u1")
		rr := httptest.NewRecorder()

		h.HandleSwipe(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u1", swiper.gotUser)
		assert.Equal(t, "r1", swiper.gotRepo)
		assert.Equal(t, model.SwipeStar, swiper.gotType)
		assert.Equal(t, "swipe-test", swiper.gotMeta.UserAgent)
		assert.Equal(t, "192.0.2.1", swiper.gotMeta.IPAddress, "port stripped from RemoteAddr")

		var res model.SwipeResult
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "s1", res.SwipeID)
		require.NotNil(t, res.NewScore)
		assert.InDelta(t, 0.42, *res.NewScore, 1e-9)
	})

	t.Run("keeps an address already rewritten from proxy headers", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/swipe", strings.NewReader(`{"repositoryId":"r1","type":"SKIP"}`)), "u1")
		req.RemoteAddr = "2001:db8::7"
		rr := httptest.NewRecorder()

		h.HandleSwipe(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2001:db8::7", swiper.gotMeta.IPAddress)
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/swipe", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()

		h.HandleSwipe(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, apperror.CodeUnauthorized, decodeError(t, rr).Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := authed(httptest.NewRequest(http.MethodPost, "/swipe", strings.NewReader(`{"repositoryId":`)), "u1")
		rr := httptest.NewRecorder()

		h.HandleSwipe(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, apperror.CodeValidation, decodeError(t, rr).Error)
	})

	errCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rate limited", apperror.RateLimited("slow down"), http.StatusTooManyRequests, apperror.CodeRateLimited},
		{"duplicate", apperror.Conflict("swipe", "r1"), http.StatusConflict, apperror.CodeConflict},
		{"self swipe", apperror.Forbidden("cannot swipe on your own repository"), http.StatusForbidden, apperror.CodeForbidden},
		{"unknown repository", apperror.NotFound("repository", "r1"), http.StatusNotFound, apperror.CodeNotFound},
		{"store failure", io.ErrUnexpectedEOF, http.StatusInternalServerError, apperror.CodeInternal},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			h := handler.NewSwipeHandler(&mockSwiper{err: tc.err}, discard)
			req := authed(httptest.NewRequest(http.MethodPost, "/swipe", strings.NewReader(`{"repositoryId":"r1","type":"STAR"}`)), "u1")
			rr := httptest.NewRecorder()

			h.HandleSwipe(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			body := decodeError(t, rr)
			assert.Equal(t, tc.code, body.Error)
			if tc.code == apperror.CodeInternal {
				assert.NotContains(t, body.Message, "EOF")
			}
		})
	}
}

// --- repository ---

func repositoryRouter(feed handler.FeedGenerator, repos handler.RepositoryManager) http.Handler {
	h := handler.NewRepositoryHandler(feed, repos, discard)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, authed(r, "u1"))
		})
	})
	r.Get("/repository/feed", h.HandleFeed)
	r.Post("/repository", h.HandleSubmit)
	r.Patch("/repository/pitch", h.HandleUpdatePitch)
	r.Post("/repository/{id}/sync", h.HandleSync)
	return r
}

func TestRepositoryHandler_Feed(t *testing.T) {
	next := "c2"
	feed := &mockFeed{page: &model.FeedPage{Items: []model.FeedItem{{ID: "r1"}, {ID: "r2"}}, NextCursor: &next}}
	router := repositoryRouter(feed, &mockRepos{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/repository/feed?cursor=c1&limit=2", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "c1", feed.gotCursor)
	assert.Equal(t, 2, feed.gotLimit)

	var page model.FeedPage
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
	assert.Len(t, page.Items, 2)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "c2", *page.NextCursor)

	t.Run("non-numeric limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/repository/feed?limit=ten", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "limit", decodeError(t, rr).Field)
	})
}

func TestRepositoryHandler_Submit(t *testing.T) {
	repos := &mockRepos{repo: &model.Repository{ID: "r1"}}
	router := repositoryRouter(&mockFeed{}, repos)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/repository",
		strings.NewReader(`{"externalRepoId":"octo/hello","pitch":"hi"}`)))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "octo/hello", repos.gotName)
	assert.Equal(t, "hi", repos.gotPitch)
	assert.JSONEq(t, `{"repositoryId":"r1"}`, rr.Body.String())

	t.Run("unknown fields rejected", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/repository",
			strings.NewReader(`{"externalRepoId":"octo/hello","stars":1000}`)))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("already submitted", func(t *testing.T) {
		router := repositoryRouter(&mockFeed{}, &mockRepos{err: apperror.Conflict("repository", "octo/hello")})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/repository",
			strings.NewReader(`{"externalRepoId":"octo/hello"}`)))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestRepositoryHandler_UpdatePitch(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		repos := &mockRepos{repo: &model.Repository{ID: "r1"}}
		rr := httptest.NewRecorder()
		repositoryRouter(&mockFeed{}, repos).ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/repository/pitch",
			strings.NewReader(`{"externalRepoId":"octo/hello","pitch":"new"}`)))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "new", repos.gotPitch)
		assert.JSONEq(t, `{"repositoryId":"r1"}`, rr.Body.String())
	})

	t.Run("not the owner", func(t *testing.T) {
		rr := httptest.NewRecorder()
		repositoryRouter(&mockFeed{}, &mockRepos{err: apperror.Forbidden("only the owner can edit the pitch")}).
			ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/repository/pitch",
				strings.NewReader(`{"externalRepoId":"octo/hello","pitch":"new"}`)))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestRepositoryHandler_Sync(t *testing.T) {
	synced := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	repos := &mockRepos{sync: &model.SyncResult{RepositoryID: "r1", Stars: 321, SyncedAt: synced}}

	rr := httptest.NewRecorder()
	repositoryRouter(&mockFeed{}, repos).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/repository/r1/sync", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "r1", repos.gotID)
	assert.JSONEq(t, `{"stars":321,"syncedAt":"2026-03-10T15:00:00Z"}`, rr.Body.String())

	t.Run("rate limited", func(t *testing.T) {
		rr := httptest.NewRecorder()
		repositoryRouter(&mockFeed{}, &mockRepos{err: apperror.RateLimited("sync limit reached")}).
			ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/repository/r1/sync", nil))
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})
}

// --- leaderboard ---

func TestLeaderboardHandler(t *testing.T) {
	rank := int64(3)
	board := &mockBoard{
		entries: []model.LeaderboardEntry{{Rank: 1, UserID: "u1", Username: "ada", Score: 2.5}},
		rank:    &rank,
	}
	h := handler.NewLeaderboardHandler(board, discard)
	r := chi.NewRouter()
	r.Get("/leaderboard/top", h.HandleTop)
	r.Get("/leaderboard/rank/{userId}", h.HandleRank)

	t.Run("top", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leaderboard/top?limit=5", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var entries []model.LeaderboardEntry
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "ada", entries[0].Username)
	})

	t.Run("rank", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leaderboard/rank/u7", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u7", board.gotUser)
		assert.JSONEq(t, `{"rank":3}`, rr.Body.String())
	})

	t.Run("unranked is null", func(t *testing.T) {
		board.rank = nil
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leaderboard/rank/u8", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"rank":null}`, rr.Body.String())
	})
}

// --- user ---

func TestUserHandler(t *testing.T) {
	profiles := &mockProfiles{
		me:     &model.PrivateProfile{RepoCount: 2, LinkedGitHub: true},
		repos:  []model.Repository{{ID: "r1"}},
		public: &model.PublicProfile{ID: "u2", Username: "grace"},
	}
	h := handler.NewUserHandler(profiles, discard)
	r := chi.NewRouter()
	r.Get("/user/me", h.HandleMe)
	r.Get("/user/me/repos", h.HandleMyRepos)
	r.Get("/user/{id}", h.HandlePublic)

	t.Run("me", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodGet, "/user/me", nil), "u1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var p model.PrivateProfile
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
		assert.EqualValues(t, 2, p.RepoCount)
		assert.True(t, p.LinkedGitHub)
	})

	t.Run("my repos", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, authed(httptest.NewRequest(http.MethodGet, "/user/me/repos", nil), "u1"))

		require.Equal(t, http.StatusOK, rr.Code)
		var repos []model.Repository
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&repos))
		assert.Len(t, repos, 1)
	})

	t.Run("public", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/u2", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"username":"grace"`)
	})

	t.Run("missing user", func(t *testing.T) {
		h := handler.NewUserHandler(&mockProfiles{err: apperror.NotFound("user", "nope")}, discard)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/user/nope", nil)

		h.HandlePublic(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, apperror.CodeNotFound, decodeError(t, rr).Error)
	})
}

// --- admin ---

func TestAdminHandler(t *testing.T) {
	mod := &mockModerator{}
	h := handler.NewAdminHandler(mod, discard)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, authed(r, "admin1"))
		})
	})
	r.Post("/admin/users/{id}/block", h.HandleToggleBlock)
	r.Post("/admin/users/{id}/reset-trust", h.HandleResetTrust)
	r.Get("/admin/abuse-logs", h.HandleAbuseLogs)
	r.Get("/admin/flagged-users", h.HandleFlaggedUsers)

	t.Run("block", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/users/u5/block", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "admin1", mod.gotActor)
		assert.Equal(t, "u5", mod.gotTarget)
		assert.JSONEq(t, `{"userId":"u5","isBlocked":true}`, rr.Body.String())
	})

	t.Run("reset trust", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/users/u6/reset-trust", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u6", mod.gotTarget)
		assert.JSONEq(t, `{"userId":"u6","trustScore":1}`, rr.Body.String())
	})

	t.Run("abuse logs paging", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/abuse-logs?limit=20&offset=40", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 20, mod.gotLimit)
		assert.Equal(t, 40, mod.gotOffset)
		assert.Contains(t, rr.Body.String(), "HIGH_VELOCITY")
	})

	t.Run("flagged users", func(t *testing.T) {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/flagged-users?limit=5", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 5, mod.gotLimit)
	})

	t.Run("target is admin", func(t *testing.T) {
		h := handler.NewAdminHandler(&mockModerator{err: apperror.Forbidden("cannot block an admin")}, discard)
		rr := httptest.NewRecorder()

		h.HandleToggleBlock(rr, authed(httptest.NewRequest(http.MethodPost, "/admin/users/a2/block", nil), "admin1"))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
