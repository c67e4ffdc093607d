package batch

import (
	"context"
	"errors"

	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/internal/prompt"
	"github.com/llj0824/weibo-research-guanghua/internal/selector"
	"github.com/llj0824/weibo-research-guanghua/internal/store"
	"github.com/llj0824/weibo-research-guanghua/pkg/logging"
)

// Generator builds prompts for each participant's trigger post and queues
// the model's replies for human review.
type Generator struct {
	store    GeneratorStore
	llm      Completer
	selector *selector.Selector
	groups   *prompt.Library
	logger   logging.Logger
}

func NewGenerator(s GeneratorStore, llm Completer, sel *selector.Selector, groups *prompt.Library, logger logging.Logger) *Generator {
	return &Generator{
		store:    s,
		llm:      llm,
		selector: sel,
		groups:   groups,
		logger:   logger,
	}
}

// Run generates one queued response per user. Users in the control group or
// without a usable post are skipped and reported; store failures for one
// user are recorded and do not stop the others. The run halts as soon as
// the model API reports a rate limit; remaining users are left for the next
// run.
func (g *Generator) Run(ctx context.Context, userIDs []string) (*Summary, error) {
	summary := &Summary{}

	for _, uid := range userIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		log := g.logger.WithField("uid", uid)

		user, err := g.store.GetUser(ctx, uid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				summary.skip(uid, "user not found")
				continue
			}
			summary.fail(uid, "", err)
			log.WithError(err).Error("Failed to load user")
			continue
		}

		group, ok := g.groups.Get(user.GroupID)
		if !ok {
			summary.skip(uid, "unknown group "+user.GroupID)
			continue
		}
		if !group.Enabled() {
			summary.Skipped++
			log.WithField("group", group.ID).Debug("Control group user skipped")
			continue
		}

		posts, err := g.store.PostsForUser(ctx, uid)
		if err != nil {
			summary.fail(uid, "", err)
			log.WithError(err).Error("Failed to load posts")
			continue
		}

		sel, err := g.selector.Select(posts)
		if err != nil {
			if errors.Is(err, selector.ErrNoPosts) {
				summary.skip(uid, "no posts available")
				continue
			}
			summary.fail(uid, "", err)
			continue
		}

		finalPrompt, historyBlock := group.BuildPrompt(user.Name, sel.Trigger, sel.History)

		reply, err := g.llm.Complete(ctx, group.SystemPrompt, finalPrompt)
		if err != nil {
			if errors.Is(err, gateway.ErrUpstreamRateLimited) {
				summary.Halted = true
				log.Warn("Model API rate limited; halting generation run")
				return summary, nil
			}
			summary.fail(uid, "", err)
			log.WithError(err).Error("Response generation failed")
			continue
		}

		item := &store.QueueItem{
			UID:               user.UID,
			UserName:          user.Name,
			GroupID:           group.ID,
			PostID:            sel.Trigger.ID,
			PostContent:       sel.Trigger.Content,
			HistoryBlock:      historyBlock,
			Prompt:            finalPrompt,
			GeneratedResponse: reply,
		}
		if err := g.store.EnqueueResponse(ctx, item); err != nil {
			summary.fail(uid, "", err)
			log.WithError(err).Error("Failed to queue generated response")
			continue
		}

		summary.Succeeded++
		log.WithFields(logging.Fields{
			"group":   group.ID,
			"post_id": sel.Trigger.ID,
			"item_id": item.ID,
		}).Info("Queued generated response")
	}

	return summary, nil
}
