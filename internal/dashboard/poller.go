package dashboard

import (
	"context"
	"log/slog"
	"time"
)

const DefaultPollInterval = 2 * time.Second

// Poller fetches a snapshot immediately and then on every tick until its
// context ends, handing each result to render.
type Poller struct {
	source   Source
	interval time.Duration
	render   func(Snapshot, error)
}

func NewPoller(source Source, interval time.Duration, render func(Snapshot, error)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{source: source, interval: interval, render: render}
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	snap, err := p.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Debug("Dashboard poll failed", "error", err)
	}
	p.render(snap, err)
}
