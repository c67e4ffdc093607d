package selector

import (
	"errors"
	"sort"
	"time"
)

// ErrNoPosts is returned when a user has no posts to pick a trigger from.
// Callers treat this as a per-user skip, not a batch failure.
var ErrNoPosts = errors.New("no posts available for user")

// Policy selects how the triggering post is chosen
type Policy string

const (
	// PolicyLatest picks the most recently published post
	PolicyLatest Policy = "latest"
	// PolicyEngagement picks the highest-engagement post among recent ones
	PolicyEngagement Policy = "engagement"
)

const (
	recentWindow       = 7 * 24 * time.Hour
	fallbackCandidates = 5
)

// Post is a single social post as fetched from the platform
type Post struct {
	ID          string
	UserID      string
	PublishTime time.Time
	Content     string
	Reposts     int
	Comments    int
	Likes       int
}

// Engagement is the combined interaction count used for trigger scoring
func (p Post) Engagement() int {
	return p.Reposts + p.Comments + p.Likes
}

// Selection is the outcome of trigger selection: one triggering post and the
// user's remaining posts as history, newest first. History never contains
// the trigger's post ID.
type Selection struct {
	Trigger Post
	History []Post
}

// Selector picks triggering posts according to a configured policy
type Selector struct {
	policy Policy
	now    func() time.Time
}

// New creates a selector. A nil clock defaults to time.Now.
func New(policy Policy, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{policy: policy, now: now}
}

// Select chooses the trigger post for a user and partitions the rest into
// history. The input slice is not modified.
func (s *Selector) Select(posts []Post) (Selection, error) {
	if len(posts) == 0 {
		return Selection{}, ErrNoPosts
	}

	sorted := make([]Post, len(posts))
	copy(sorted, posts)
	// Stable so equal publish times keep their input order
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishTime.After(sorted[j].PublishTime)
	})

	var trigger Post
	switch s.policy {
	case PolicyEngagement:
		trigger = pickByEngagement(sorted, s.now())
	default:
		trigger = sorted[0]
	}

	history := make([]Post, 0, len(sorted)-1)
	for _, p := range sorted {
		if p.ID == trigger.ID {
			continue
		}
		history = append(history, p)
	}

	return Selection{Trigger: trigger, History: history}, nil
}

// pickByEngagement scores posts from the last 7 days, falling back to the
// 5 most recent when nothing is that fresh. Ties keep the earlier candidate
// because the comparison is strictly greater-than.
func pickByEngagement(sorted []Post, now time.Time) Post {
	cutoff := now.Add(-recentWindow)

	var candidates []Post
	for _, p := range sorted {
		if !p.PublishTime.Before(cutoff) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		n := fallbackCandidates
		if len(sorted) < n {
			n = len(sorted)
		}
		candidates = sorted[:n]
	}

	best := candidates[0]
	for _, p := range candidates[1:] {
		if p.Engagement() > best.Engagement() {
			best = p
		}
	}
	return best
}
