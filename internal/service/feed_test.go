package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/cache"
	"github.com/sakif/starswipe/internal/github"
	"github.com/sakif/starswipe/internal/model"
)

func feedIDs(items []model.FeedItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// rankedRepos creates n repositories owned by owner with strictly
// decreasing visibility, returned best first.
func rankedRepos(t *testing.T, e *testEnv, ownerID string, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, name := range names {
		r := e.repo(t, ownerID, name)
		require.NoError(t, e.store.SetVisibilityScore(context.Background(), r.ID, float64(len(names)-i)))
		ids[i] = r.ID
	}
	return ids
}

func TestGenerateFeed_FiltersAndOrders(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, 1, "alice")
	bob := e.user(t, 2, "bob")
	ids := rankedRepos(t, e, bob.ID, "bob/a", "bob/b", "bob/c")
	e.repo(t, alice.ID, "alice/own")

	_, err := e.swipes.ProcessSwipe(ctx, alice.ID, ids[1], model.SwipeSkip, testMeta)
	require.NoError(t, err)

	page, err := e.feed.GenerateFeed(ctx, alice.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[2]}, feedIDs(page.Items))
	assert.Nil(t, page.NextCursor)
	assert.Equal(t, "bob", page.Items[0].Owner.Username)
}

func TestGenerateFeed_PaginatesExactlyOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, 1, "alice")
	bob := e.user(t, 2, "bob")
	ids := rankedRepos(t, e, bob.ID, "bob/a", "bob/b", "bob/c", "bob/d", "bob/e")

	var seen []string
	cursor := ""
	for range 5 {
		page, err := e.feed.GenerateFeed(ctx, alice.ID, cursor, 2)
		require.NoError(t, err)
		seen = append(seen, feedIDs(page.Items)...)
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	assert.Equal(t, ids, seen)
}

func TestGenerateFeed_ShuffleKeepsCursor(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, 1, "alice")
	bob := e.user(t, 2, "bob")
	ids := rankedRepos(t, e, bob.ID, "bob/a", "bob/b", "bob/c", "bob/d")
	e.feed.intN = func(int) int { return 1 }

	page, err := e.feed.GenerateFeed(context.Background(), alice.ID, "", 3)
	require.NoError(t, err)

	// [a b c] → swap(2,1) → [a c b] → swap(1,0) → [c a b]
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, feedIDs(page.Items))
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, ids[2], *page.NextCursor)
}

func TestGenerateFeed_ServesCachedPage(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, 1, "alice")
	bob := e.user(t, 2, "bob")
	ids := rankedRepos(t, e, bob.ID, "bob/a")

	first, err := e.feed.GenerateFeed(ctx, alice.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, ids, feedIDs(first.Items))
	assert.True(t, e.mr.Exists(cache.FeedKey(alice.ID, "", 10)))

	e.repo(t, bob.ID, "bob/late")

	second, err := e.feed.GenerateFeed(ctx, alice.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, ids, feedIDs(second.Items))
}

func TestGenerateFeed_EmptyPageNotCached(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, 1, "alice")

	page, err := e.feed.GenerateFeed(context.Background(), alice.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Nil(t, page.NextCursor)
	assert.False(t, e.mr.Exists(cache.FeedKey(alice.ID, "", 10)))
}

func TestGenerateFeed_ClampsLimit(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, 1, "alice")
	bob := e.user(t, 2, "bob")
	rankedRepos(t, e, bob.ID, "bob/a")

	_, err := e.feed.GenerateFeed(context.Background(), alice.ID, "", 500)
	require.NoError(t, err)
	assert.True(t, e.mr.Exists(cache.FeedKey(alice.ID, "", MaxFeedLimit)))

	_, err = e.feed.GenerateFeed(context.Background(), alice.ID, "", 0)
	require.NoError(t, err)
	assert.True(t, e.mr.Exists(cache.FeedKey(alice.ID, "", DefaultFeedLimit)))
}

func TestGenerateFeed_CacheDown(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, 1, "alice")
	bob := e.user(t, 2, "bob")
	ids := rankedRepos(t, e, bob.ID, "bob/a", "bob/b")
	e.cacheDown()

	page, err := e.feed.GenerateFeed(context.Background(), alice.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, ids, feedIDs(page.Items))
}

func TestGenerateFeed_UnknownCursor(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, 1, "alice")

	_, err := e.feed.GenerateFeed(context.Background(), alice.ID, "nope", 10)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestGenerateFeed_TriggersReconcile(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, 1, "alice")
	bob := e.user(t, 2, "bob")
	ids := rankedRepos(t, e, bob.ID, "bob/a", "bob/b")
	e.linkGitHub(t, alice, "gho_alice")

	_, err := e.swipes.ProcessSwipe(ctx, alice.ID, ids[0], model.SwipeStar, testMeta)
	require.NoError(t, err)
	e.gh.setState("bob/a", github.NotStarred)

	_, err = e.feed.GenerateFeed(ctx, alice.ID, "", 10)
	require.NoError(t, err)
	assert.Contains(t, e.tasks.submitted(), "star-reconcile")
	assert.Zero(t, e.reloadRepo(t, ids[0]).StarCount)
}

func TestGenerateFeed_DroppedReconcileDoesNotFail(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, 1, "alice")
	e.tasks.drop = true

	_, err := e.feed.GenerateFeed(context.Background(), alice.ID, "", 10)
	require.NoError(t, err)
}
