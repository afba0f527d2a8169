package approval

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/demogate/internal/observability"
)

// NotifyFunc posts a reminder threaded under an approval card.
type NotifyFunc func(ctx context.Context, channelID, cardTS, text string) error

// Sweeper periodically nudges the approval channel about cards that have sat
// undecided for too long. It reads the registry only; a card that survived a
// restart simply gets no reminders, which is fine for a best-effort nudge.
type Sweeper struct {
	registry Registry
	notify   NotifyFunc
	age      time.Duration
	logger   *observability.Logger
	now      func() time.Time

	mu       sync.Mutex
	reminded map[string]time.Time
}

// NewSweeper creates a reminder sweeper. age is how long a card must be
// pending before it is nudged, and also the minimum gap between nudges for
// the same card.
func NewSweeper(registry Registry, notify NotifyFunc, age time.Duration, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		notify:   notify,
		age:      age,
		logger:   logger,
		now:      time.Now,
		reminded: make(map[string]time.Time),
	}
}

// Schedule registers the sweep on the given cron runner. The caller owns
// starting and stopping the runner.
func (s *Sweeper) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		s.Sweep(context.Background())
	})
	return err
}

// Sweep posts one reminder per stale card and returns how many were sent.
// Notification failures are logged and skipped; the next sweep tries again.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()
	sent := 0

	for id, rec := range s.registry.Pending(now.Add(-s.age)) {
		if !s.shouldRemind(id, now) {
			continue
		}
		text := ReminderText(now.Sub(rec.PostedAt))
		if err := s.notify(ctx, rec.CardChannel, id, text); err != nil {
			s.logger.Warn(ctx, "reminder failed", "card_ts", id, "error", err)
			continue
		}
		s.markReminded(id, now)
		sent++
	}

	if sent > 0 {
		s.logger.Info(ctx, "posted pending-approval reminders", "count", sent)
	}
	return sent
}

func (s *Sweeper) shouldRemind(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.reminded[id]
	return !ok || now.Sub(last) >= s.age
}

func (s *Sweeper) markReminded(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminded[id] = now
}
