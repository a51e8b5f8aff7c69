package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/relay-watcher/internal/metrics"
	"github.com/dgnsrekt/relay-watcher/internal/notify"
	"github.com/dgnsrekt/relay-watcher/internal/relay"
)

// Config holds the static poll parameters.
type Config struct {
	Relays       []string
	Kind         int
	Authors      []string
	PollInterval time.Duration
}

// CycleSummary is the aggregated result of one poll cycle.
type CycleSummary struct {
	StartedAt time.Time
	Events    int
	Results   []relay.PollResult
	Triggered bool
}

// Watcher runs the poll loop: on every tick it fans a poll out to all
// configured relays, aggregates qualifying-event counts, triggers the
// notification gate when anything was seen, and advances the watermark. It is
// the only writer of the watermark, and the loop body blocks on the in-flight
// cycle, so at most one cycle runs at a time (late ticks are dropped by the
// ticker).
type Watcher struct {
	cfg       Config
	poller    relay.Poller
	gate      *notify.Gate
	watermark *Watermark
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates a watcher.
func New(cfg Config, poller relay.Poller, gate *notify.Gate, watermark *Watermark, logger *zap.Logger) *Watcher {
	return &Watcher{
		cfg:       cfg,
		poller:    poller,
		gate:      gate,
		watermark: watermark,
		logger:    logger,
		metrics:   metrics.Get(),
	}
}

// Watermark exposes the current watermark for the control surface.
func (w *Watcher) Watermark() time.Time {
	return w.watermark.Current()
}

// Run polls on the configured interval until ctx is cancelled. The loop has
// no terminal failure state: relay and dispatch errors are logged and the
// next cycle starts fresh.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("watcher started",
		zap.Strings("relays", w.cfg.Relays),
		zap.Int("kind", w.cfg.Kind),
		zap.Duration("interval", w.cfg.PollInterval),
	)

	// First cycle runs immediately; the watermark lookback covers the gap
	// since the last run.
	w.RunCycle(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle polls every configured relay once and advances the watermark to
// the cycle's start time. Using the start time, not the completion time,
// means events arriving mid-cycle fall inside the next cycle's filter: a few
// overlapping seconds may be re-checked, but nothing is skipped.
func (w *Watcher) RunCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	filter := relay.NewFilter(w.cfg.Kind, w.cfg.Authors, w.watermark.Current())

	// Fan out to all relays; one endpoint's failure never delays or cancels
	// the others.
	results := make([]relay.PollResult, len(w.cfg.Relays))
	var wg sync.WaitGroup
	for i, endpoint := range w.cfg.Relays {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			results[i] = w.poller.Poll(ctx, endpoint, filter)
		}(i, endpoint)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		w.metrics.RelayPollsTotal.WithLabelValues(r.Endpoint, string(r.Outcome)).Inc()

		switch r.Outcome {
		case relay.OutcomeSuccess, relay.OutcomeTimeout:
			total += r.Events
			w.metrics.RelayEventsTotal.WithLabelValues(r.Endpoint).Add(float64(r.Events))
		case relay.OutcomeError:
			w.logger.Warn("relay poll failed",
				zap.String("relay", r.Endpoint),
				zap.Error(r.Err),
			)
		}
	}

	summary := CycleSummary{StartedAt: start, Events: total, Results: results}

	if total > 0 {
		w.logger.Info("qualifying events observed", zap.Int("events", total))
		w.gate.Trigger(ctx)
		summary.Triggered = true
	}

	w.watermark.Advance(start)

	w.metrics.PollCyclesTotal.Inc()
	w.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	w.metrics.WatermarkSeconds.Set(float64(w.watermark.Current().Unix()))

	w.logger.Debug("poll cycle complete",
		zap.Int("events", total),
		zap.Duration("duration", time.Since(start)),
		zap.Time("watermark", w.watermark.Current()),
	)

	return summary
}
