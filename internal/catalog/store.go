package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"catalogbrowser/internal/blob"
)

// Snapshot is one fully loaded collection. It is immutable once published;
// callers must not modify Records.
type Snapshot[T any] struct {
	Records []T
	// Source describes the backing file as read; zero when it was missing.
	Source blob.Info
	// Present reports whether the backing file existed at load time.
	Present  bool
	LoadedAt time.Time

	// haystack holds the lower-cased JSON of each record for search.
	haystack []string
}

// Len returns the number of records.
func (s *Snapshot[T]) Len() int { return len(s.Records) }

// ReloadObserver receives the outcome of every reload.
type ReloadObserver interface {
	ObserveReload(kind string, ok bool, records int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveReload(string, bool, int, time.Duration) {}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for reload outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver sets the reload metrics sink.
func WithObserver(o ReloadObserver) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(s *Store) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// Store owns the current snapshot of both catalogs. Readers load a snapshot
// pointer and never lock; Reload builds a replacement and swaps the pointer.
type Store struct {
	files      map[Kind]blob.Location
	normalizer *Normalizer
	log        *zap.Logger
	observer   ReloadObserver
	now        func() time.Time

	// reloadMu serializes reloads per kind so the last finished one wins.
	reloadMu map[Kind]*sync.Mutex

	dashboards atomic.Pointer[Snapshot[Dashboard]]
	queries    atomic.Pointer[Snapshot[Query]]
}

// NewStore returns a store reading each kind from its location. Collections
// start empty until the first Reload.
func NewStore(files map[Kind]blob.Location, opts ...Option) *Store {
	s := &Store{
		files:      make(map[Kind]blob.Location, len(files)),
		normalizer: NewNormalizer(),
		log:        zap.NewNop(),
		observer:   nopObserver{},
		now:        func() time.Time { return time.Now().UTC() },
		reloadMu:   make(map[Kind]*sync.Mutex, len(Kinds)),
	}
	for k, loc := range files {
		s.files[k] = loc
	}
	for _, k := range Kinds {
		s.reloadMu[k] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dashboards.Store(&Snapshot[Dashboard]{Records: []Dashboard{}})
	s.queries.Store(&Snapshot[Query]{Records: []Query{}})
	return s
}

// Location returns where kind is read from.
func (s *Store) Location(kind Kind) (blob.Location, bool) {
	loc, ok := s.files[kind]
	return loc, ok
}

// ReloadAll reloads every kind and joins the errors.
func (s *Store) ReloadAll(ctx context.Context) error {
	var errs []error
	for _, k := range Kinds {
		if err := s.Reload(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload re-reads the backing file of kind and publishes a new snapshot.
// A missing file publishes an empty collection. Read or parse failures keep
// the previous snapshot and are returned after being logged.
func (s *Store) Reload(ctx context.Context, kind Kind) error {
	mu, ok := s.reloadMu[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	records, err := s.reload(ctx, kind)
	s.observer.ObserveReload(string(kind), err == nil, records, time.Since(start))
	if err != nil {
		s.log.Error("catalog reload failed; keeping previous snapshot",
			zap.String("kind", string(kind)),
			zap.String("path", s.files[kind].Path),
			zap.Error(err))
		return err
	}
	s.log.Info("catalog reloaded",
		zap.String("kind", string(kind)),
		zap.Int("records", records),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Store) reload(ctx context.Context, kind Kind) (int, error) {
	rows, info, present, err := s.read(ctx, kind)
	if err != nil {
		return 0, err
	}
	loadedAt := s.now()
	switch kind {
	case KindDashboards:
		snap := &Snapshot[Dashboard]{Records: s.buildDashboards(rows), Source: info, Present: present, LoadedAt: loadedAt}
		snap.haystack = haystacks(snap.Records)
		s.dashboards.Store(snap)
		return snap.Len(), nil
	default:
		records := make([]Query, 0, len(rows))
		for i, row := range rows {
			records = append(records, s.normalizer.Query(row, i+1))
		}
		snap := &Snapshot[Query]{Records: records, Source: info, Present: present, LoadedAt: loadedAt}
		snap.haystack = haystacks(snap.Records)
		s.queries.Store(snap)
		return snap.Len(), nil
	}
}

func (s *Store) read(ctx context.Context, kind Kind) ([]Row, blob.Info, bool, error) {
	loc, ok := s.files[kind]
	if !ok || loc.Store == nil {
		return nil, blob.Info{}, false, nil
	}
	info, rc, err := loc.Store.Get(ctx, loc.Key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, blob.Info{}, false, nil
	}
	if err != nil {
		return nil, blob.Info{}, false, fmt.Errorf("read %s: %w", loc.Path, err)
	}
	defer rc.Close()
	rows, err := DecodeRows(rc)
	if err != nil {
		return nil, blob.Info{}, false, fmt.Errorf("decode %s: %w", loc.Path, err)
	}
	return rows, info, true, nil
}

// buildDashboards normalizes rows and replaces ids already taken earlier in
// the same file with generated ones.
func (s *Store) buildDashboards(rows []Row) []Dashboard {
	out := make([]Dashboard, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		d := s.normalizer.Dashboard(row)
		if _, dup := seen[d.ID]; dup {
			replacement := s.normalizer.NewID()
			s.log.Warn("duplicate dashboard id replaced",
				zap.String("id", d.ID),
				zap.String("replacement", replacement),
				zap.Int("row", i+1))
			if d.Title == d.ID {
				d.Title = replacement
			}
			d.ID = replacement
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out
}

func haystacks[T any](records []T) []string {
	out := make([]string, len(records))
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, r := range records {
		buf.Reset()
		if err := enc.Encode(r); err != nil {
			continue
		}
		out[i] = strings.ToLower(buf.String())
	}
	return out
}

// DashboardSnapshot returns the current dashboards snapshot.
func (s *Store) DashboardSnapshot() *Snapshot[Dashboard] { return s.dashboards.Load() }

// QuerySnapshot returns the current queries snapshot.
func (s *Store) QuerySnapshot() *Snapshot[Query] { return s.queries.Load() }

// Dashboards returns every dashboard in file order.
func (s *Store) Dashboards() []Dashboard { return s.dashboards.Load().Records }

// Queries returns every query in file order.
func (s *Store) Queries() []Query { return s.queries.Load().Records }

// Count returns the size of the kind's current snapshot.
func (s *Store) Count(kind Kind) int {
	switch kind {
	case KindDashboards:
		return s.dashboards.Load().Len()
	case KindQueries:
		return s.queries.Load().Len()
	default:
		return 0
	}
}

// Dashboard looks a dashboard up by exact id.
func (s *Store) Dashboard(id string) (Dashboard, bool) {
	for _, d := range s.dashboards.Load().Records {
		if d.ID == id {
			return d, true
		}
	}
	return Dashboard{}, false
}

// Present reports whether the backing file of kind exists right now.
func (s *Store) Present(ctx context.Context, kind Kind) bool {
	loc, ok := s.files[kind]
	if !ok || loc.Store == nil {
		return false
	}
	_, err := loc.Store.Head(ctx, loc.Key)
	return err == nil
}
