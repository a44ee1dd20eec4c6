package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"catalogbrowser/internal/catalog"
)

// FileWatcher watches the directories holding catalog files and reloads the
// collections of a directory when a matching file in it changes.
type FileWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	reloader Reloader
	cfg      Config
	log      *zap.Logger
	dirs     map[string][]catalog.Kind
	pending  map[catalog.Kind]time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool

	stats Stats
}

// Stats counts watcher activity.
type Stats struct {
	Events        int
	Reloads       int
	FailedReloads int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// NewFileWatcher creates a watcher for targets, which must be filesystem backed.
func NewFileWatcher(r Reloader, targets []Target, cfg Config) (*FileWatcher, error) {
	cfg = cfg.withDefaults()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &FileWatcher{
		watcher:  w,
		reloader: r,
		cfg:      cfg,
		log:      cfg.Logger.Named("watch"),
		dirs:     make(map[string][]catalog.Kind),
		pending:  make(map[catalog.Kind]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, t := range targets {
		dir, ok := t.Location.Dir()
		if !ok {
			continue
		}
		dir = filepath.Clean(dir)
		fw.dirs[dir] = append(fw.dirs[dir], t.Kind)
	}
	return fw, nil
}

// Dirs returns the watched directories.
func (fw *FileWatcher) Dirs() []string {
	out := make([]string, 0, len(fw.dirs))
	for d := range fw.dirs {
		out = append(out, d)
	}
	return out
}

// Start begins watching. It is non-blocking; events are handled on a
// goroutine until Stop or ctx cancellation. Directories that do not exist are
// logged and skipped.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = true
	fw.mu.Unlock()

	for dir := range fw.dirs {
		if err := fw.watcher.Add(dir); err != nil {
			fw.log.Warn("cannot watch catalog directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		fw.log.Info("watching catalog directory", zap.String("dir", dir))
	}

	go fw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (fw *FileWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		_ = fw.watcher.Close()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.doneCh

	if err := fw.watcher.Close(); err != nil {
		fw.log.Error("closing watcher", zap.Error(err))
	}
}

// Stats returns a copy of the activity counters.
func (fw *FileWatcher) Stats() Stats {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.stats
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer close(fw.doneCh)

	tick := fw.cfg.Debounce / 2
	if tick < 5*time.Millisecond {
		tick = 5 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error("watcher error", zap.Error(err))
			fw.mu.Lock()
			fw.stats.Errors++
			fw.mu.Unlock()
		case <-ticker.C:
			fw.flush(ctx)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if event.Name == "" || !strings.HasSuffix(strings.ToLower(event.Name), strings.ToLower(fw.cfg.Suffix)) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	kinds := fw.dirs[filepath.Clean(filepath.Dir(event.Name))]
	if len(kinds) == 0 {
		return
	}
	fw.log.Debug("catalog file event", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	now := time.Now()
	fw.mu.Lock()
	fw.stats.Events++
	fw.stats.LastEventPath = event.Name
	fw.stats.LastEventTime = now
	for _, k := range kinds {
		fw.pending[k] = now
	}
	fw.mu.Unlock()
}

// flush reloads every kind whose last event is older than the debounce window.
func (fw *FileWatcher) flush(ctx context.Context) {
	now := time.Now()
	fw.mu.Lock()
	var due []catalog.Kind
	for k, at := range fw.pending {
		if now.Sub(at) >= fw.cfg.Debounce {
			due = append(due, k)
			delete(fw.pending, k)
		}
	}
	fw.mu.Unlock()

	for _, k := range due {
		err := reload(ctx, fw.reloader, k, fw.log)
		fw.mu.Lock()
		fw.stats.Reloads++
		if err != nil {
			fw.stats.FailedReloads++
		}
		fw.mu.Unlock()
	}
}
