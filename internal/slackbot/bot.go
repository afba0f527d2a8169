// Package slackbot runs the Slack side of the demo-approval workflow: the
// Socket Mode event loop, the mention handler that spots removal requests,
// and the button handlers that drive a request from photo check to decision.
package slackbot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/demogate/internal/approval"
	"github.com/haasonsaas/demogate/internal/backoff"
	"github.com/haasonsaas/demogate/internal/observability"
	"github.com/haasonsaas/demogate/internal/scope"
)

// defaultReplyScanLimit caps how many thread replies are fetched when
// checking for photo evidence.
const defaultReplyScanLimit = 200

// Answerer relays policy questions to a knowledge base. A nil Answerer or one
// reporting Enabled() == false disables the relay without disabling the bot.
type Answerer interface {
	Enabled() bool
	Answer(ctx context.Context, question string) string
}

// Config holds the workflow settings for the bot.
type Config struct {
	// CrewName labels approval cards with the requesting crew.
	CrewName string

	// ApprovalChannel receives approval cards. Empty routes cards to the
	// request's origin channel.
	ApprovalChannel string

	// Approvers lists the Slack user IDs allowed to decide. Empty allows
	// anyone.
	Approvers []string

	// Scope decides which channels the bot services.
	Scope scope.Filter

	// ReplyScanLimit caps the thread-reply fetch during the photo check.
	ReplyScanLimit int
}

// Bot mediates the demo-approval workflow over Slack Socket Mode.
type Bot struct {
	cfg      Config
	api      SlackAPIClient
	socket   *socketmode.Client
	registry approval.Registry
	relay    Answerer
	logger   *observability.Logger
	metrics  *observability.Metrics

	botUserID string
	now       func() time.Time
	wg        sync.WaitGroup
}

// New creates a Bot connected through Socket Mode with the given tokens.
func New(botToken, appToken string, cfg Config, registry approval.Registry, relay Answerer, logger *observability.Logger, metrics *observability.Metrics) *Bot {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	bot := newBot(api, cfg, registry, relay, logger, metrics)
	bot.socket = socketmode.New(api)
	return bot
}

// NewWithClient creates a Bot over an injected API client and no socket
// connection. Tests drive events through the handlers directly.
func NewWithClient(api SlackAPIClient, cfg Config, registry approval.Registry, relay Answerer, logger *observability.Logger, metrics *observability.Metrics) *Bot {
	return newBot(api, cfg, registry, relay, logger, metrics)
}

func newBot(api SlackAPIClient, cfg Config, registry approval.Registry, relay Answerer, logger *observability.Logger, metrics *observability.Metrics) *Bot {
	if cfg.ReplyScanLimit <= 0 {
		cfg.ReplyScanLimit = defaultReplyScanLimit
	}
	return &Bot{
		cfg:      cfg,
		api:      api,
		registry: registry,
		relay:    relay,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run connects to Slack and processes events until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	auth, err := b.api.AuthTestContext(ctx)
	if err != nil {
		return NewError(ErrCodeConfig, "slack auth test failed", err)
	}
	b.botUserID = auth.UserID
	b.logger.Info(ctx, "connected to slack", "bot_user_id", auth.UserID, "team", auth.Team)

	b.joinApprovalChannel(ctx)

	go func() {
		if err := b.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			b.logger.Error(ctx, "socket mode connection ended", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			return ctx.Err()
		case evt := <-b.socket.Events:
			b.dispatch(ctx, evt)
		}
	}
}

// joinApprovalChannel makes a best-effort attempt to join the configured
// approval channel so card posts don't fail with not_in_channel.
func (b *Bot) joinApprovalChannel(ctx context.Context) {
	if b.cfg.ApprovalChannel == "" {
		return
	}
	err := backoff.RetrySimple(ctx, 3, func() error {
		_, _, _, err := b.api.JoinConversationContext(ctx, b.cfg.ApprovalChannel)
		return err
	})
	if err != nil {
		b.logger.Warn(ctx, "could not join approval channel",
			"channel", b.cfg.ApprovalChannel, "error", err)
		return
	}
	b.logger.Info(ctx, "joined approval channel", "channel", b.cfg.ApprovalChannel)
}

func (b *Bot) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Debug(ctx, "connecting to slack")
	case socketmode.EventTypeConnected:
		b.logger.Info(ctx, "socket mode connected")
	case socketmode.EventTypeConnectionError:
		b.logger.Warn(ctx, "socket mode connection error", "data", fmt.Sprintf("%v", evt.Data))

	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			b.socket.Ack(*evt.Request)
		}
		if apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		mention, ok := apiEvent.InnerEvent.Data.(*slackevents.AppMentionEvent)
		if !ok {
			return
		}
		b.metrics.EventCounter.WithLabelValues("app_mention").Inc()
		b.spawn(ctx, "mention", func(ctx context.Context) error {
			return b.HandleMention(ctx, mention)
		})

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		if evt.Request != nil {
			b.socket.Ack(*evt.Request)
		}
		b.metrics.EventCounter.WithLabelValues("interactive").Inc()
		b.spawn(ctx, "interaction", func(ctx context.Context) error {
			return b.HandleInteraction(ctx, callback)
		})
	}
}

// spawn runs a handler on its own goroutine with panic recovery, so one bad
// event cannot take down the event loop.
func (b *Bot) spawn(ctx context.Context, handler string, fn func(ctx context.Context) error) {
	ctx = context.WithValue(ctx, observability.RequestIDKey, uuid.NewString())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.metrics.HandlerErrors.WithLabelValues(handler).Inc()
				b.logger.Error(ctx, "handler panicked", "handler", handler, "panic", fmt.Sprintf("%v", r))
			}
		}()

		if err := fn(ctx); err != nil {
			b.metrics.HandlerErrors.WithLabelValues(handler).Inc()
			b.logger.Error(ctx, "handler failed",
				"handler", handler, "code", ErrorCode(err), "error", err)
		}
	}()
}
