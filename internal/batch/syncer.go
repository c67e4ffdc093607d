package batch

import (
	"context"
	"errors"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/pkg/logging"
)

const defaultTimelineCount = 20

// Syncer refreshes stored timelines from the Weibo API.
type Syncer struct {
	store    SyncStore
	timeline Timeline
	count    int
	logger   logging.Logger
}

func NewSyncer(s SyncStore, t Timeline, logger logging.Logger) *Syncer {
	return &Syncer{store: s, timeline: t, count: defaultTimelineCount, logger: logger}
}

// Run fetches each user's recent posts and stores them. Like the other
// batches it halts on an upstream rate limit and reports per-user failures
// otherwise.
func (s *Syncer) Run(ctx context.Context, userIDs []string) (*Summary, error) {
	summary := &Summary{}

	for _, uid := range userIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		log := s.logger.WithField("uid", uid)

		posts, err := s.timeline.UserTimeline(ctx, uid, s.count)
		if err != nil {
			if errors.Is(err, gateway.ErrUpstreamRateLimited) || errors.Is(err, gateway.ErrQuotaExhausted) {
				summary.Halted = true
				log.WithError(err).Warn("Rate limited; halting timeline sync")
				return summary, nil
			}
			summary.fail(uid, "", err)
			log.WithError(err).Error("Timeline fetch failed")
			continue
		}

		if err := s.store.UpsertPosts(ctx, uid, posts); err != nil {
			summary.fail(uid, "", err)
			log.WithError(err).Error("Failed to store timeline")
			continue
		}
		if err := s.store.TouchLastSync(ctx, uid); err != nil {
			log.WithError(err).Warn("Failed to update last sync time")
		}

		summary.Succeeded++
		log.WithField("posts", len(posts)).Info("Timeline synced")
	}

	return summary, nil
}
