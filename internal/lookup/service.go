// Package lookup serves the dropdown collections that document forms need
// (customers, suppliers, items, employees), sorted by name.
//
// Reads go through a small in-process memo, then a versioned Redis cache,
// then the Source. Writers call Invalidate, which bumps the Redis version and
// fans the change out over pub/sub so every instance drops its memo.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Collection names.
const (
	Customers = "customers"
	Suppliers = "suppliers"
	Items     = "items"
	Employees = "employees"
)

// Collections lists every supported collection.
var Collections = []string{Customers, Suppliers, Items, Employees}

// Option is one dropdown entry.
type Option struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Source reads an active collection ordered by name.
type Source interface {
	ListOptions(ctx context.Context, collection string) ([]Option, error)
}

type memoEntry struct {
	options []Option
	loaded  time.Time
}

// Service coordinates lookup reads and invalidation.
type Service struct {
	source Source
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	memo  map[string]memoEntry
	// gen advances on every invalidation; a fill started under an older
	// generation must not populate the memo.
	gen map[string]uint64
	now func() time.Time
}

// NewService builds Service. cache may be nil, in which case only the memo is used.
func NewService(source Source, cache *Cache, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		memo:   make(map[string]memoEntry),
		gen:    make(map[string]uint64),
		now:    time.Now,
	}
}

// Options returns the collection's dropdown entries.
func (s *Service) Options(ctx context.Context, collection string) ([]Option, error) {
	if !known(collection) {
		return nil, fmt.Errorf("lookup: unknown collection %q", collection)
	}
	cached, gen, ok := s.fromMemo(collection)
	if ok {
		return cached, nil
	}
	v, err, _ := s.group.Do(collection, func() (any, error) {
		key, err := s.cache.BuildKey(ctx, collection, "options")
		if err != nil {
			return nil, err
		}
		var opts []Option
		err = s.cache.FetchJSON(ctx, key, &opts, func(ctx context.Context) (any, error) {
			return s.source.ListOptions(ctx, collection)
		})
		if err != nil {
			return nil, err
		}
		if opts == nil {
			opts = []Option{}
		}
		s.mu.Lock()
		if s.gen[collection] == gen {
			s.memo[collection] = memoEntry{options: opts, loaded: s.now()}
		}
		s.mu.Unlock()
		return opts, nil
	})
	if err != nil {
		return nil, fmt.Errorf("lookup: load %s: %w", collection, err)
	}
	return v.([]Option), nil
}

// FormOptions loads several collections concurrently.
func (s *Service) FormOptions(ctx context.Context, collections ...string) (map[string][]Option, error) {
	results := make([][]Option, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		g.Go(func() error {
			opts, err := s.Options(gctx, collection)
			if err != nil {
				return err
			}
			results[i] = opts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]Option, len(collections))
	for i, collection := range collections {
		out[collection] = results[i]
	}
	return out, nil
}

// Invalidate drops cached entries of a collection here and on every other
// instance. Errors are logged; a stale dropdown must not fail a committed write.
func (s *Service) Invalidate(ctx context.Context, collection string) {
	if s == nil {
		return
	}
	s.forget(collection)
	if err := s.cache.Bump(ctx, collection); err != nil && s.logger != nil {
		s.logger.Warn("lookup invalidate", slog.String("collection", collection), slog.Any("error", err))
	}
}

// Listen keeps the memo coherent with bumps published by other instances.
func (s *Service) Listen(ctx context.Context) error {
	return s.cache.ListenForInvalidation(ctx, s.forget)
}

func (s *Service) forget(collection string) {
	s.mu.Lock()
	delete(s.memo, collection)
	s.gen[collection]++
	s.mu.Unlock()
	s.group.Forget(collection)
}

// fromMemo also reports the generation the caller observed, so a fill can
// tell whether an invalidation raced it.
func (s *Service) fromMemo(collection string) ([]Option, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gen := s.gen[collection]
	entry, ok := s.memo[collection]
	if !ok || s.now().Sub(entry.loaded) > s.ttl {
		return nil, gen, false
	}
	return entry.options, gen, true
}

func known(collection string) bool {
	for _, c := range Collections {
		if c == collection {
			return true
		}
	}
	return false
}
