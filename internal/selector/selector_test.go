package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
}

func daysAgo(d int) time.Time {
	return fixedNow().Add(-time.Duration(d) * 24 * time.Hour)
}

func TestSelectLatestPicksNewestAndSortsHistory(t *testing.T) {
	posts := []Post{
		{ID: "1", PublishTime: time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "2", PublishTime: time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)},
		{ID: "3", PublishTime: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}

	sel, err := New(PolicyLatest, fixedNow).Select(posts)
	require.NoError(t, err)
	require.Equal(t, "2", sel.Trigger.ID)
	require.Len(t, sel.History, 2)
	require.Equal(t, "1", sel.History[0].ID)
	require.Equal(t, "3", sel.History[1].ID)
}

func TestSelectHistoryNeverContainsTrigger(t *testing.T) {
	posts := []Post{
		{ID: "a", PublishTime: daysAgo(1)},
		{ID: "b", PublishTime: daysAgo(2)},
		{ID: "c", PublishTime: daysAgo(3)},
	}

	for _, policy := range []Policy{PolicyLatest, PolicyEngagement} {
		sel, err := New(policy, fixedNow).Select(posts)
		require.NoError(t, err)
		for _, p := range sel.History {
			require.NotEqual(t, sel.Trigger.ID, p.ID)
		}
	}
}

func TestSelectLatestStableOnEqualTimes(t *testing.T) {
	at := daysAgo(1)
	posts := []Post{
		{ID: "first", PublishTime: at},
		{ID: "second", PublishTime: at},
	}

	sel, err := New(PolicyLatest, fixedNow).Select(posts)
	require.NoError(t, err)
	require.Equal(t, "first", sel.Trigger.ID)
}

func TestSelectEngagementPrefersRecentHighEngagement(t *testing.T) {
	posts := []Post{
		{ID: "old-viral", PublishTime: daysAgo(30), Reposts: 500, Comments: 200, Likes: 1000},
		{ID: "recent-quiet", PublishTime: daysAgo(2), Reposts: 1, Comments: 0, Likes: 2},
		{ID: "recent-popular", PublishTime: daysAgo(3), Reposts: 10, Comments: 5, Likes: 20},
	}

	sel, err := New(PolicyEngagement, fixedNow).Select(posts)
	require.NoError(t, err)
	require.Equal(t, "recent-popular", sel.Trigger.ID)
}

func TestSelectEngagementFallsBackToFiveMostRecent(t *testing.T) {
	// All posts older than 7 days: candidates are the 5 newest
	posts := []Post{
		{ID: "p1", PublishTime: daysAgo(10), Likes: 3},
		{ID: "p2", PublishTime: daysAgo(11), Likes: 8},
		{ID: "p3", PublishTime: daysAgo(12), Likes: 1},
		{ID: "p4", PublishTime: daysAgo(13), Likes: 2},
		{ID: "p5", PublishTime: daysAgo(14), Likes: 4},
		{ID: "p6-excluded", PublishTime: daysAgo(15), Likes: 999},
	}

	sel, err := New(PolicyEngagement, fixedNow).Select(posts)
	require.NoError(t, err)
	require.Equal(t, "p2", sel.Trigger.ID)
}

func TestSelectEngagementTieKeepsFirstCandidate(t *testing.T) {
	posts := []Post{
		{ID: "newer", PublishTime: daysAgo(1), Likes: 5},
		{ID: "older", PublishTime: daysAgo(2), Likes: 5},
	}

	sel, err := New(PolicyEngagement, fixedNow).Select(posts)
	require.NoError(t, err)
	// Candidates run newest-first; strict > keeps the first on ties
	require.Equal(t, "newer", sel.Trigger.ID)
}

func TestSelectEmptyInput(t *testing.T) {
	_, err := New(PolicyLatest, fixedNow).Select(nil)
	require.ErrorIs(t, err, ErrNoPosts)

	_, err = New(PolicyEngagement, fixedNow).Select([]Post{})
	require.ErrorIs(t, err, ErrNoPosts)
}

func TestEngagementSum(t *testing.T) {
	p := Post{Reposts: 2, Comments: 3, Likes: 5}
	require.Equal(t, 10, p.Engagement())
}
