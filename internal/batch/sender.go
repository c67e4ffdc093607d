package batch

import (
	"context"
	"errors"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/pkg/logging"
)

// Sender delivers approved queue items as Weibo comments, one at a time.
// Pacing between comments and the hourly quota live in the gateway the
// commenter calls through.
type Sender struct {
	store     SenderStore
	commenter Commenter
	logger    logging.Logger
}

func NewSender(s SenderStore, c Commenter, logger logging.Logger) *Sender {
	return &Sender{store: s, commenter: c, logger: logger}
}

// Run sends every approved, unsent item in queue order. It halts when Weibo
// reports a rate limit or the local hourly quota runs out; unsent items keep
// their pending state so the next run picks them up. Other failures are
// recorded on the item and the run continues.
func (s *Sender) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	items, err := s.store.ListApprovedUnsent(ctx)
	if err != nil {
		return summary, err
	}
	if len(items) == 0 {
		s.logger.Debug("No approved responses waiting to send")
		return summary, nil
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		log := s.logger.WithFields(logging.Fields{
			"item_id": item.ID,
			"uid":     item.UID,
			"post_id": item.PostID,
		})

		commentID, err := s.commenter.CreateComment(ctx, item.PostID, item.ResponseText())
		if err != nil {
			if errors.Is(err, gateway.ErrUpstreamRateLimited) || errors.Is(err, gateway.ErrQuotaExhausted) {
				summary.Halted = true
				log.WithError(err).Warn("Rate limited; halting send run")
				return summary, nil
			}
			if markErr := s.store.MarkSendFailed(ctx, item.ID, err.Error()); markErr != nil {
				log.WithError(markErr).Error("Failed to record send failure")
			}
			summary.fail(item.UID, item.ID, err)
			log.WithError(err).Error("Comment delivery failed")
			continue
		}

		if err := s.store.MarkSent(ctx, item.ID, commentID); err != nil {
			summary.fail(item.UID, item.ID, err)
			log.WithError(err).Error("Comment sent but status update failed")
			continue
		}

		summary.Succeeded++
		log.WithField("comment_id", commentID).Info("Comment delivered")
	}

	return summary, nil
}
