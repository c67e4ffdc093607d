// Package batch runs the generate, send, and sync loops over study
// participants. Each run processes items independently, records per-item
// outcomes, and halts early when the upstream reports a rate limit so the
// rest of the batch is preserved for a later run.
package batch

import (
	"context"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/internal/selector"
	"github.com/llj0824/weibo-research-guanghua/internal/store"
)

// Failure records one item that could not be processed.
type Failure struct {
	UID    string `json:"uid,omitempty"`
	ItemID string `json:"item_id,omitempty"`
	Reason string `json:"reason"`
}

// Summary reports batch outcomes. Halted means the run stopped early on an
// upstream rate limit and unprocessed items were left untouched.
type Summary struct {
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Halted    bool      `json:"halted"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (s *Summary) fail(uid, itemID string, err error) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{
		UID:    uid,
		ItemID: itemID,
		Reason: gateway.Truncate(err.Error(), 500),
	})
}

func (s *Summary) skip(uid, reason string) {
	s.Skipped++
	s.Failures = append(s.Failures, Failure{UID: uid, Reason: reason})
}

// Timeline fetches recent posts for a user.
type Timeline interface {
	UserTimeline(ctx context.Context, uid string, count int) ([]selector.Post, error)
}

// Completer produces a model reply from a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Commenter delivers a comment on a post and returns the comment id.
type Commenter interface {
	CreateComment(ctx context.Context, postID, text string) (string, error)
}

// GeneratorStore is the slice of the store the generator needs.
type GeneratorStore interface {
	GetUser(ctx context.Context, uid string) (*store.User, error)
	PostsForUser(ctx context.Context, uid string) ([]selector.Post, error)
	EnqueueResponse(ctx context.Context, item *store.QueueItem) error
}

// SenderStore is the slice of the store the sender needs.
type SenderStore interface {
	ListApprovedUnsent(ctx context.Context) ([]store.QueueItem, error)
	MarkSent(ctx context.Context, id, commentID string) error
	MarkSendFailed(ctx context.Context, id, sendErr string) error
}

// SyncStore is the slice of the store the syncer needs.
type SyncStore interface {
	UpsertPosts(ctx context.Context, uid string, posts []selector.Post) error
	TouchLastSync(ctx context.Context, uid string) error
}
