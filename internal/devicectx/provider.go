package devicectx

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source supplies live device context samples. Implementations bridge the
// device telemetry feed (battery, activity recognition, connectivity).
type Source interface {
	Sample(ctx context.Context) (NotificationContext, error)
}

// Provider caches the current device context and refreshes it on a fixed
// cadence plus on demand. Reads never block and never fail: if the source is
// unavailable the last-known snapshot is returned.
type Provider struct {
	source   Source
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	current NotificationContext

	refreshCh chan struct{}
}

// NewProvider creates a context provider. The initial sample is best-effort;
// a failing source leaves the provider on a conservative default snapshot.
func NewProvider(source Source, interval time.Duration, logger *zap.Logger) *Provider {
	p := &Provider{
		source:    source,
		interval:  interval,
		logger:    logger,
		current:   DefaultContext(time.Now()),
		refreshCh: make(chan struct{}, 1),
	}
	p.refresh(context.Background())
	return p
}

// Current returns the cached context snapshot with the time-of-day bucket
// recomputed for the moment of the call
func (p *Provider) Current() NotificationContext {
	p.mu.RLock()
	snapshot := p.current
	p.mu.RUnlock()

	snapshot.TimeOfDay = BucketFor(time.Now())
	return snapshot
}

// Notify requests an immediate refresh, used on system events such as
// battery, connectivity or visibility changes. Non-blocking.
func (p *Provider) Notify() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run refreshes the cached context every interval and on Notify events until
// ctx is cancelled. It runs independently of notification timers.
func (p *Provider) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		case <-p.refreshCh:
			p.refresh(ctx)
		}
	}
}

// refresh samples the source and replaces the cached snapshot. Sampling
// failures are non-fatal: the previous snapshot stays in place.
func (p *Provider) refresh(ctx context.Context) {
	snapshot, err := p.source.Sample(ctx)
	if err != nil {
		p.logger.Warn("Context sample failed, keeping last-known context", zap.Error(err))
		return
	}
	snapshot.CapturedAt = time.Now()
	if snapshot.TimeOfDay == "" {
		snapshot.TimeOfDay = BucketFor(snapshot.CapturedAt)
	}
	if snapshot.Location == "" {
		snapshot.Location = LocationUnknown
	}

	p.mu.Lock()
	p.current = snapshot
	p.mu.Unlock()
}
