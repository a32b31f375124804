// Package pipeline orchestrates the poll cycle: fetch the freshest snapshot,
// normalize its shape, advance the identity tracker, and expose the result.
// A poll either completes fully or leaves the previously published snapshot
// and the identity table untouched.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftline/constellation-tracker/internal/domain"
	"github.com/driftline/constellation-tracker/internal/normalize"
	"github.com/driftline/constellation-tracker/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrNotReady is returned by Latest before the first successful poll.
var ErrNotReady = errors.New("no snapshot available yet")

// Fetcher retrieves the freshest obtainable raw snapshot.
type Fetcher interface {
	FetchFreshest(ctx context.Context, requestedHoursAgo int) (domain.RawSnapshot, error)
}

// Tracker assigns stable identifiers across polls, returning the tracked
// points plus the number of freshly minted identifiers.
type Tracker interface {
	Advance(points []domain.CanonicalPoint) ([]domain.TrackedPoint, int)
}

// Publisher forwards each successful poll's snapshot downstream.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap domain.ConstellationSnapshot) error
}

// Pipeline runs poll cycles and holds the latest tracked snapshot.
type Pipeline struct {
	fetcher   Fetcher
	tracker   Tracker
	publisher Publisher // nil when publishing is disabled
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	requestedHoursAgo int
	interval          time.Duration

	inFlight atomic.Bool

	mu     sync.RWMutex
	latest *domain.ConstellationSnapshot
}

// New creates a Pipeline. Pass a nil publisher to disable publishing.
func New(fetcher Fetcher, tracker Tracker, publisher Publisher, clock clockwork.Clock,
	requestedHoursAgo int, interval time.Duration,
	logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:           fetcher,
		tracker:           tracker,
		publisher:         publisher,
		clock:             clock,
		logger:            logger,
		metrics:           metrics,
		requestedHoursAgo: requestedHoursAgo,
		interval:          interval,
	}
}

// Run polls once immediately, then on every tick of the poll interval until
// the context is cancelled. Ticks that arrive while a poll is still in
// flight are skipped entirely, not queued; cancellation stops scheduling but
// never aborts an in-flight poll.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if err := p.Poll(ctx); err != nil {
		p.logger.Error("poll failed", "error", err)
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			go func() {
				if err := p.Poll(ctx); err != nil {
					p.logger.Error("poll failed", "error", err)
				}
			}()
		}
	}
}

// Poll runs one fetch-normalize-track cycle. When a previous poll is still
// in flight the call is a recorded no-op. The identity table and the
// published snapshot only advance after the whole cycle has succeeded.
func (p *Pipeline) Poll(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.PollsTotal.WithLabelValues("skipped").Inc()
		p.logger.Warn("previous poll still in flight, skipping")
		return nil
	}
	defer p.inFlight.Store(false)

	start := p.clock.Now()

	raw, err := p.fetcher.FetchFreshest(ctx, p.requestedHoursAgo)
	if err != nil {
		p.metrics.PollsTotal.WithLabelValues("error").Inc()
		return err
	}

	points, dropped, err := normalize.Normalize(raw.Data)
	if err != nil {
		p.metrics.PollsTotal.WithLabelValues("error").Inc()
		return err
	}
	if dropped > 0 {
		p.metrics.PointsDropped.Add(float64(dropped))
		p.logger.Warn("dropped malformed points", "count", dropped)
	}

	tracked, minted := p.tracker.Advance(points)
	p.metrics.IdentitiesMinted.Add(float64(minted))
	p.metrics.IdentityMatches.Add(float64(len(tracked) - minted))

	snap := domain.ConstellationSnapshot{
		HoursAgo: raw.HoursAgo,
		Source:   raw.Source,
		Points:   tracked,
		PolledAt: p.clock.Now(),
	}
	if raw.Source == domain.SourceCache {
		age := raw.CacheAgeSeconds
		snap.CacheAgeSeconds = &age
	}

	p.mu.Lock()
	p.latest = &snap
	p.mu.Unlock()

	p.metrics.PollsTotal.WithLabelValues("success").Inc()
	p.metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
	p.metrics.PointsTracked.Set(float64(len(tracked)))
	p.logger.Info("poll complete",
		"points", len(tracked), "minted", minted, "dropped", dropped,
		"source", raw.Source, "hours_ago", raw.HoursAgo)

	p.publish(ctx, snap)
	return nil
}

// publish forwards the snapshot when a publisher is configured. Publish
// failures are logged and counted but never fail the poll.
func (p *Pipeline) publish(ctx context.Context, snap domain.ConstellationSnapshot) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishSnapshot(ctx, snap); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("snapshot publish failed", "error", err)
		return
	}
	p.metrics.SnapshotsPublished.Inc()
}

// Latest returns the most recent successful poll's snapshot.
func (p *Pipeline) Latest() (domain.ConstellationSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return domain.ConstellationSnapshot{}, ErrNotReady
	}
	return *p.latest, nil
}

// CheckReadiness reports nil once at least one poll has succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if _, err := p.Latest(); err != nil {
		return err
	}
	return nil
}
