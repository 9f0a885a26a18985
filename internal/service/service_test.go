package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/crypto"
	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository/sqlstore"
	"github.com/sakif/starswipe/internal/task"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeGitHub is an in-memory GitHubAPI. Repositories default to "starred"
// unless a state is set.
type fakeGitHub struct {
	mu        sync.Mutex
	repos     map[string]*github.Repo
	users     map[string]*github.User
	states    map[string]github.StarState
	starred   []string // "token|owner/repo" per Star call
	checks    int
	starDelay time.Duration
	starErr   error
	repoErr   error
	isStarErr error
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		repos:  make(map[string]*github.Repo),
		users:  make(map[string]*github.User),
		states: make(map[string]github.StarState),
	}
}

func (f *fakeGitHub) addRepo(fullName string, ownerID int64, ownerLogin string, stars int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[fullName] = &github.Repo{
		ID:              ownerID*1000 + int64(len(f.repos)),
		Name:            fullName,
		FullName:        fullName,
		Description:     "from github",
		HTMLURL:         "https://github.com/" + fullName,
		Language:        "Go",
		StargazersCount: stars,
		Owner:           github.Owner{ID: ownerID, Login: ownerLogin},
	}
	f.users[ownerLogin] = &github.User{ID: ownerID, Login: ownerLogin, Name: "Owner " + ownerLogin}
}

func (f *fakeGitHub) setState(fullName string, st github.StarState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[fullName] = st
}

func (f *fakeGitHub) starCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starred...)
}

// Star records the call and marks the repository starred, after starDelay.
func (f *fakeGitHub) Star(ctx context.Context, accessToken, fullName string) error {
	f.mu.Lock()
	delay := f.starDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.starErr != nil {
		return f.starErr
	}
	f.starred = append(f.starred, accessToken+"|"+fullName)
	f.states[fullName] = github.Starred
	return nil
}

func (f *fakeGitHub) state(fullName string) github.StarState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.states[fullName]; ok {
		return st
	}
	return github.Starred
}

func (f *fakeGitHub) IsStarred(ctx context.Context, accessToken, fullName string) (github.StarState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.isStarErr != nil {
		return github.StarUnknown, f.isStarErr
	}
	if st, ok := f.states[fullName]; ok {
		return st, nil
	}
	return github.Starred, nil
}

func (f *fakeGitHub) GetRepository(ctx context.Context, fullName string) (*github.Repo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	r, ok := f.repos[fullName]
	if !ok {
		return nil, github.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeGitHub) GetUser(ctx context.Context, login string) (*github.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[login]
	if !ok {
		return nil, github.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// inlineTasks runs submitted tasks synchronously so tests can assert on
// their effects right after the call that scheduled them.
type inlineTasks struct {
	mu    sync.Mutex
	names []string
	errs  []error
	drop  bool
}

func (s *inlineTasks) Submit(name string, fn task.Func) bool {
	s.mu.Lock()
	s.names = append(s.names, name)
	drop := s.drop
	s.mu.Unlock()
	if drop {
		return false
	}
	err := fn(context.Background())
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	return true
}

func (s *inlineTasks) submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// testEnv wires every service against an in-memory database, a miniredis
// cache and a fake GitHub.
type testEnv struct {
	store  *sqlstore.DB
	mr     *miniredis.Miniredis
	cache  *cache.Redis
	gh     *fakeGitHub
	enc    *crypto.TokenEncryptor
	tasks  *inlineTasks
	logger *slog.Logger
	now    time.Time

	leaderboard *LeaderboardService
	sync        *StarSyncService
	swipes      *SwipeService
	feed        *FeedService
	repos       *RepositoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDSN(t, ":memory:")
}

// newFileTestEnv backs the store with a database file so concurrent
// transactions run on separate connections.
func newFileTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDSN(t, filepath.Join(t.TempDir(), "starswipe.db"))
}

func newTestEnvWithDSN(t *testing.T, dsn string) *testEnv {
	t.Helper()

	store, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	enc, err := crypto.NewTokenEncryptor("test-encryption-secret")
	require.NoError(t, err)

	e := &testEnv{
		store:  store,
		mr:     mr,
		cache:  cache.NewRedisFromClient(rdb, cache.DefaultTimeout),
		gh:     newFakeGitHub(),
		enc:    enc,
		tasks:  &inlineTasks{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }

	e.leaderboard = NewLeaderboardService(store, e.cache, e.logger)
	e.leaderboard.now = clock
	e.sync = NewStarSyncService(store, e.cache, e.gh, enc, e.tasks, e.logger)
	// Inline tasks push before anything can reconcile.
	e.sync.settle = 0
	e.swipes = NewSwipeService(store, NewVelocityLimiter(e.cache, e.logger), e.leaderboard, e.sync, e.logger)
	e.swipes.now = clock
	e.feed = NewFeedService(store, e.cache, e.sync, e.logger)
	e.feed.intN = func(int) int { return 0 }
	e.repos = NewRepositoryService(store, e.cache, e.gh, e.logger)
	e.repos.now = clock
	return e
}

// cacheDown makes every cache call fail from now on.
func (e *testEnv) cacheDown() {
	e.mr.Close()
}

func (e *testEnv) user(t *testing.T, githubID int64, username string) *model.User {
	t.Helper()
	u := &model.User{GitHubID: githubID, Username: username, AvatarURL: "https://avatars.example/" + username}
	require.NoError(t, e.store.UpsertGitHubUser(context.Background(), u))
	return u
}

func (e *testEnv) repo(t *testing.T, ownerID, fullName string) *model.Repository {
	t.Helper()
	r := &model.Repository{GitHubID: fullName, OwnerID: ownerID, Name: fullName, FullName: fullName}
	require.NoError(t, e.store.CreateRepository(context.Background(), r))
	return r
}

func (e *testEnv) linkGitHub(t *testing.T, u *model.User, token string) {
	t.Helper()
	sealed, err := e.enc.Encrypt(token)
	require.NoError(t, err)
	require.NoError(t, e.store.UpsertCredential(context.Background(), &model.Credential{
		UserID:            u.ID,
		Provider:          model.ProviderGitHub,
		ProviderAccountID: fmt.Sprint(u.GitHubID),
		AccessToken:       sealed,
	}))
}

func (e *testEnv) reloadUser(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := e.store.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) reloadRepo(t *testing.T, id string) *model.Repository {
	t.Helper()
	r, err := e.store.GetRepositoryByID(context.Background(), id)
	require.NoError(t, err)
	return r
}
