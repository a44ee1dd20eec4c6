// Package watch delivers "collection changed" signals to the catalog store.
// Filesystem-backed catalogs are watched with fsnotify; other blob drivers
// are polled for metadata changes. Both end in the same Reload call used at
// startup.
package watch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"catalogbrowser/internal/blob"
	"catalogbrowser/internal/catalog"
)

// Reloader re-reads one collection. *catalog.Store implements it.
type Reloader interface {
	Reload(ctx context.Context, kind catalog.Kind) error
}

// Target binds a collection kind to the location it is read from.
type Target struct {
	Kind     catalog.Kind
	Location blob.Location
}

// Config tunes watchers and pollers. Zero values pick defaults.
type Config struct {
	// Debounce collapses bursts of filesystem events into one reload.
	Debounce time.Duration
	// Interval is the poll period for non-filesystem drivers.
	Interval time.Duration
	// Suffix limits filesystem events to matching file names (case-insensitive).
	Suffix string
	Logger *zap.Logger
}

const (
	DefaultDebounce = 250 * time.Millisecond
	DefaultInterval = 30 * time.Second
	DefaultSuffix   = ".csv"
)

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Suffix == "" {
		c.Suffix = DefaultSuffix
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Source is a running change source.
type Source interface {
	Start(ctx context.Context) error
	Stop()
}

// Sources builds a FileWatcher for filesystem targets and a Poller for the
// rest. Either may be absent from the result.
func Sources(r Reloader, targets []Target, cfg Config) ([]Source, error) {
	var local, remote []Target
	for _, t := range targets {
		if _, ok := t.Location.Dir(); ok {
			local = append(local, t)
		} else if t.Location.Store != nil {
			remote = append(remote, t)
		}
	}
	var out []Source
	if len(local) > 0 {
		w, err := NewFileWatcher(r, local, cfg)
		if err != nil {
			return nil, fmt.Errorf("file watcher: %w", err)
		}
		out = append(out, w)
	}
	if len(remote) > 0 {
		out = append(out, NewPoller(r, remote, cfg))
	}
	return out, nil
}

// reload calls r.Reload and swallows both errors and panics; the store has
// already logged the failure reason.
func reload(ctx context.Context, r Reloader, kind catalog.Kind, log *zap.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reload panic: %v", p)
			log.Error("catalog reload panicked", zap.String("kind", string(kind)), zap.Any("panic", p))
		}
	}()
	return r.Reload(ctx, kind)
}
