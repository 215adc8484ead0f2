// Package display polls active order estimates on a fixed tick and keeps the
// last good snapshot for rendering.
package display

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-order-timing/internal/logger"
	"github.com/ariefcatur/go-order-timing/internal/timing"
)

// Source lists active orders with current estimates.
type Source interface {
	ListActive(ctx context.Context) ([]timing.Estimate, error)
}

// Snapshot is the board state after a poll. Outdated is set when the latest
// poll failed and Orders still holds the previous good result.
type Snapshot struct {
	Orders    []timing.Estimate
	FetchedAt time.Time
	Outdated  bool
	Err       error
}

type Poller struct {
	Source   Source
	Interval time.Duration
	Timeout  time.Duration
	Log      *logger.Logger
	OnUpdate func(Snapshot)

	mu   sync.RWMutex
	snap Snapshot
}

// Run polls immediately and then every Interval until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.Poll(ctx)
		}
	}
}

// Poll fetches once and publishes the resulting snapshot.
func (p *Poller) Poll(ctx context.Context) Snapshot {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	orders, err := p.Source.ListActive(cctx)
	cancel()

	p.mu.Lock()
	if err != nil {
		p.snap.Outdated = true
		p.snap.Err = err
		if p.Log != nil {
			p.Log.Warn().Err(err).Msg("estimate poll failed, showing last known board")
		}
	} else {
		p.snap = Snapshot{Orders: orders, FetchedAt: time.Now()}
	}
	snap := p.snap
	p.mu.Unlock()

	if p.OnUpdate != nil {
		p.OnUpdate(snap)
	}
	return snap
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}
