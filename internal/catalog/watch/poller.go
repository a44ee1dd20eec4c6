package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"catalogbrowser/internal/blob"
	"catalogbrowser/internal/catalog"
)

// Poller Heads every target on an interval and reloads a collection when
// its backing object appears, disappears or changes.
type Poller struct {
	mu       sync.Mutex
	reloader Reloader
	targets  []Target
	cfg      Config
	log      *zap.Logger
	last     map[catalog.Kind]blob.Info
	present  map[catalog.Kind]bool
	primed   bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewPoller creates a poller for targets.
func NewPoller(r Reloader, targets []Target, cfg Config) *Poller {
	cfg = cfg.withDefaults()
	return &Poller{
		reloader: r,
		targets:  targets,
		cfg:      cfg,
		log:      cfg.Logger.Named("poll"),
		last:     make(map[catalog.Kind]blob.Info),
		present:  make(map[catalog.Kind]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start records the current state of every target and polls on a goroutine
// until Stop or ctx cancellation.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.Poll(ctx)
	go p.run(ctx)
	return nil
}

// Stop ends polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one round and returns the kinds it reloaded. The first round
// only records a baseline.
func (p *Poller) Poll(ctx context.Context) []catalog.Kind {
	p.mu.Lock()
	baseline := !p.primed
	p.primed = true
	p.mu.Unlock()

	var reloaded []catalog.Kind
	for _, t := range p.targets {
		info, err := t.Location.Store.Head(ctx, t.Location.Key)
		exists := err == nil
		if err != nil && !errors.Is(err, blob.ErrNotFound) {
			p.log.Warn("catalog head failed", zap.String("kind", string(t.Kind)), zap.String("path", t.Location.Path), zap.Error(err))
			continue
		}

		p.mu.Lock()
		wasPresent := p.present[t.Kind]
		prev := p.last[t.Kind]
		p.present[t.Kind] = exists
		p.last[t.Kind] = info
		p.mu.Unlock()

		if baseline {
			continue
		}
		changed := exists != wasPresent || (exists && prev.Changed(info))
		if !changed {
			continue
		}
		p.log.Debug("catalog object changed", zap.String("kind", string(t.Kind)), zap.String("etag", info.ETag))
		_ = reload(ctx, p.reloader, t.Kind, p.log)
		reloaded = append(reloaded, t.Kind)
	}
	return reloaded
}
