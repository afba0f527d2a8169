package slackbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/haasonsaas/demogate/internal/approval"
	"github.com/haasonsaas/demogate/internal/classify"
	"github.com/haasonsaas/demogate/internal/observability"
)

// HandleMention processes an app_mention event: answer a policy question
// through the relay when one is configured, then open the approval flow if
// the mention reads like a removal request.
func (b *Bot) HandleMention(ctx context.Context, ev *slackevents.AppMentionEvent) error {
	if !b.cfg.Scope.InScope(ev.Channel) {
		b.logger.Debug(ctx, "mention out of scope", "channel", ev.Channel)
		return nil
	}

	ctx = context.WithValue(ctx, observability.ChannelIDKey, ev.Channel)
	ctx = context.WithValue(ctx, observability.UserIDKey, ev.User)

	thread := ev.ThreadTimeStamp
	if thread == "" {
		thread = ev.TimeStamp
	}

	text := b.stripBotMention(ev.Text)

	if b.relay != nil && b.relay.Enabled() {
		answer := b.relay.Answer(ctx, text)
		if _, _, err := b.api.PostMessageContext(ctx, ev.Channel,
			slack.MsgOptionTS(thread),
			slack.MsgOptionText(answer, false),
		); err != nil {
			// The approval flow still runs; a lost answer is recoverable,
			// a lost prompt is not.
			b.logger.Warn(ctx, "posting relay answer failed", "error", err)
		}
	}

	intent := classify.Classify(text)
	if !intent.IsRemovalRequest {
		return nil
	}

	payload := approval.Payload{
		Version:   approval.PayloadVersion,
		Action:    approval.ActionRequestApproval,
		Channel:   ev.Channel,
		Thread:    thread,
		Item:      intent.Item,
		Requester: ev.User,
		RequestID: uuid.NewString(),
	}

	if _, _, err := b.api.PostMessageContext(ctx, ev.Channel,
		slack.MsgOptionTS(thread),
		slack.MsgOptionBlocks(approval.PromptBlocks(payload)...),
	); err != nil {
		return NewError(ErrCodeUpstream, "posting demo prompt", err).
			WithContext("channel", ev.Channel)
	}

	b.logger.Info(ctx, "demo prompt posted", "item", intent.Item, "request_id", payload.RequestID)
	return nil
}

// HandleInteraction routes a block-action callback to the matching workflow
// step. Failures produce a short ephemeral apology to the pressing user.
func (b *Bot) HandleInteraction(ctx context.Context, cb slack.InteractionCallback) error {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return nil
	}

	ctx = context.WithValue(ctx, observability.UserIDKey, cb.User.ID)

	action := cb.ActionCallback.BlockActions[0]
	payload, err := approval.DecodePayload(action.Value)
	if err != nil {
		b.apologize(ctx, cb)
		return NewError(ErrCodePayload, "decoding button payload", err).
			WithContext("action_id", action.ActionID)
	}

	switch payload.Action {
	case approval.ActionRequestApproval:
		err = b.handleRequestApproval(ctx, cb, payload)
	case approval.ActionApprove:
		err = b.handleDecision(ctx, cb, payload, true)
	case approval.ActionDecline:
		err = b.handleDecision(ctx, cb, payload, false)
	case approval.ActionMoreInfo:
		err = b.handleMoreInfo(ctx, payload)
	}

	if err != nil {
		b.apologize(ctx, cb)
	}
	return err
}

// handleRequestApproval verifies photo evidence in the origin thread, then
// posts the approval card and confirms to the requester.
func (b *Bot) handleRequestApproval(ctx context.Context, cb slack.InteractionCallback, p approval.Payload) error {
	replies, _, _, err := b.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: p.Channel,
		Timestamp: p.Thread,
		Limit:     b.cfg.ReplyScanLimit,
	})
	if err != nil {
		return NewError(ErrCodeUpstream, "reading origin thread", err).
			WithContext("channel", p.Channel).
			WithContext("thread", p.Thread)
	}

	if !hasImageAttachment(replies) {
		if _, err := b.api.PostEphemeralContext(ctx, p.Channel, cb.User.ID,
			slack.MsgOptionTS(p.Thread),
			slack.MsgOptionText(approval.PhotoRequiredText, false),
		); err != nil {
			return NewError(ErrCodeUpstream, "posting photo-required notice", err)
		}
		return nil
	}

	permalink, err := b.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{
		Channel: p.Channel,
		Ts:      p.Thread,
	})
	if err != nil {
		b.logger.Warn(ctx, "resolving thread permalink failed", "error", err)
		permalink = ""
	}

	destination := b.cfg.ApprovalChannel
	if destination == "" {
		destination = p.Channel
	}

	breadcrumb := b.breadcrumb(ctx, p.Channel, p.Thread)
	blocks := approval.CardBlocks(b.cfg.CrewName, breadcrumb, permalink, p)

	_, cardTS, err := b.api.PostMessageContext(ctx, destination, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		// Surface the provider's own error text so a misconfigured channel
		// is diagnosable from the thread.
		b.postToThread(ctx, p, fmt.Sprintf("Couldn't post the approval card: %v", err))
		return NewError(ErrCodeUpstream, "posting approval card", err).
			WithContext("destination", destination)
	}

	b.registry.Put(cardTS, approval.Record{
		OriginChannel: p.Channel,
		OriginThread:  p.Thread,
		Item:          p.Item,
		RequesterID:   p.Requester,
		CardChannel:   destination,
		PostedAt:      b.now(),
	})
	b.metrics.ApprovalsPosted.Inc()
	b.logger.Info(ctx, "approval card posted",
		"destination", destination, "card_ts", cardTS, "item", p.Item, "request_id", p.RequestID)

	b.postToThread(ctx, p, approval.RequestSentText(p.Item))
	return nil
}

// handleDecision rewrites the card with the verdict, notifies the origin
// thread, and privately notifies the requester.
func (b *Bot) handleDecision(ctx context.Context, cb slack.InteractionCallback, p approval.Payload, approved bool) error {
	if !b.isApprover(cb.User.ID) {
		if _, err := b.api.PostEphemeralContext(ctx, cb.Container.ChannelID, cb.User.ID,
			slack.MsgOptionText(approval.NotAuthorizedText, false),
		); err != nil {
			return NewError(ErrCodeUpstream, "posting authorization notice", err)
		}
		return nil
	}

	cardChannel := cb.Container.ChannelID
	cardTS := cb.Container.MessageTs

	breadcrumb := b.breadcrumb(ctx, p.Channel, p.Thread)
	blocks := approval.DecidedBlocks(b.cfg.CrewName, breadcrumb, p, approved, cb.User.ID, b.now())
	if _, _, _, err := b.api.UpdateMessageContext(ctx, cardChannel, cardTS,
		slack.MsgOptionBlocks(blocks...),
	); err != nil {
		return NewError(ErrCodeUpstream, "rewriting approval card", err).
			WithContext("card_ts", cardTS)
	}

	if _, _, err := b.api.PostMessageContext(ctx, p.Channel,
		slack.MsgOptionTS(p.Thread),
		slack.MsgOptionText(approval.VerdictText(approved, p.Item), false),
	); err != nil {
		return NewError(ErrCodeUpstream, "posting verdict", err)
	}

	if p.Requester != "" {
		if _, err := b.api.PostEphemeralContext(ctx, p.Channel, p.Requester,
			slack.MsgOptionTS(p.Thread),
			slack.MsgOptionText(approval.DecisionNoticeText(approved, p.Item), false),
		); err != nil {
			b.logger.Warn(ctx, "posting requester notice failed", "error", err)
		}
	}

	b.registry.Delete(cardTS)

	verdict := "approved"
	if !approved {
		verdict = "declined"
	}
	b.metrics.Decisions.WithLabelValues(verdict).Inc()
	b.logger.Info(ctx, "decision recorded",
		"verdict", verdict, "item", p.Item, "actor", cb.User.ID, "request_id", p.RequestID)
	return nil
}

// handleMoreInfo posts the photo checklist to the origin thread.
func (b *Bot) handleMoreInfo(ctx context.Context, p approval.Payload) error {
	if _, _, err := b.api.PostMessageContext(ctx, p.Channel,
		slack.MsgOptionTS(p.Thread),
		slack.MsgOptionText(approval.ChecklistText(), false),
	); err != nil {
		return NewError(ErrCodeUpstream, "posting checklist", err)
	}
	return nil
}

// stripBotMention removes the bot's own mention token so the relay and the
// classifier see only the crew's words.
func (b *Bot) stripBotMention(text string) string {
	if b.botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+b.botUserID+">", ""))
}

func (b *Bot) isApprover(userID string) bool {
	if len(b.cfg.Approvers) == 0 {
		return true
	}
	for _, id := range b.cfg.Approvers {
		if id == userID {
			return true
		}
	}
	return false
}

// breadcrumb renders a human-readable pointer to the origin thread. Falls
// back to a bare channel mention when the channel lookup fails.
func (b *Bot) breadcrumb(ctx context.Context, channelID, threadTS string) string {
	info, err := b.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil || info == nil || info.Name == "" {
		return fmt.Sprintf("<#%s>", channelID)
	}
	return fmt.Sprintf("#%s · thread %s", info.Name, threadTS)
}

// PostThreaded posts plain text under an existing message. The reminder
// sweeper uses it to nudge stale approval cards.
func (b *Bot) PostThreaded(ctx context.Context, channelID, threadTS, text string) error {
	_, _, err := b.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionTS(threadTS),
		slack.MsgOptionText(text, false),
	)
	return err
}

// postToThread posts plain text to the payload's origin thread, logging
// instead of failing since these messages are informational.
func (b *Bot) postToThread(ctx context.Context, p approval.Payload, text string) {
	if _, _, err := b.api.PostMessageContext(ctx, p.Channel,
		slack.MsgOptionTS(p.Thread),
		slack.MsgOptionText(text, false),
	); err != nil {
		b.logger.Warn(ctx, "posting thread notice failed", "error", err)
	}
}

// apologize sends a short ephemeral apology to the user whose button press
// failed. Best effort.
func (b *Bot) apologize(ctx context.Context, cb slack.InteractionCallback) {
	channel := cb.Container.ChannelID
	if channel == "" || cb.User.ID == "" {
		return
	}
	if _, err := b.api.PostEphemeralContext(ctx, channel, cb.User.ID,
		slack.MsgOptionText(approval.ApologyText, false),
	); err != nil {
		b.logger.Debug(ctx, "posting apology failed", "error", err)
	}
}
