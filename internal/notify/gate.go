package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/relay-watcher/internal/metrics"
)

// Gate rate-limits outbound wake-up notifications. At most one dispatch goes
// out per cooldown window; triggers inside the window are dropped. Dropped
// triggers are safe: the watermark guarantees the next poll cycle re-observes
// any events that remain unfetched, re-triggering the gate after the window.
type Gate struct {
	sender  Sender
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	lastSent time.Time

	now func() time.Time // replaced in tests
}

// NewGate wraps sender with a cooldown window.
func NewGate(sender Sender, cooldown time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Every(cooldown), 1),
		logger:  logger,
		metrics: metrics.Get(),
		now:     time.Now,
	}
}

// Trigger dispatches a wake-up notification unless one was sent within the
// cooldown window. The window is consumed even if the send fails, matching
// the no-internal-retry contract of the dispatcher.
func (g *Gate) Trigger(ctx context.Context) {
	g.mu.Lock()
	now := g.now()
	if !g.limiter.AllowN(now, 1) {
		g.mu.Unlock()
		g.logger.Info("skipping notification, cooldown active")
		g.metrics.CooldownSkips.Inc()
		return
	}
	g.lastSent = now
	g.mu.Unlock()

	id, err := g.sender.Send(ctx)
	if err != nil {
		g.logger.Error("notification send failed", zap.Error(err))
		g.metrics.SendFailures.Inc()
		return
	}

	g.metrics.NotificationsSent.Inc()
	g.logger.Info("wake-up notification sent", zap.String("messageID", id))
}

// LastSentAt returns when the gate last let a dispatch through. Zero when no
// notification has been sent yet.
func (g *Gate) LastSentAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSent
}
