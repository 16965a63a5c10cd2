package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"evalhub/internal/platform/metrics"
)

var ErrNotFound = errors.New("competency not found")

const cacheKey = "catalog:keqs"

type Cacher interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Counter interface {
	Inc(name string)
}

type Service struct {
	Store   StoreAPI
	Cache   Cacher
	TTL     time.Duration
	Aliases AliasTable
	Metrics Counter
	group   singleflight.Group
}

func NewService(store StoreAPI, aliases AliasTable) *Service {
	return &Service{Store: store, Aliases: aliases, TTL: 5 * time.Minute}
}

// List returns every KEQ, reading through the cache when one is configured.
// Cache errors degrade to a store read.
func (s *Service) List(ctx context.Context) ([]Competency, error) {
	if s.Cache != nil {
		var cached []Competency
		if err := s.Cache.Get(ctx, cacheKey, &cached); err == nil {
			s.count(metrics.CatalogCacheHits)
			return cached, nil
		}
		s.count(metrics.CatalogCacheMisses)
	}

	// The shared read outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	value, err, _ := s.group.Do(cacheKey, func() (any, error) {
		items, err := s.Store.List(shared)
		if err != nil {
			return nil, err
		}
		if s.Cache != nil {
			if err := s.Cache.Set(shared, cacheKey, items, s.TTL); err != nil {
				slog.Warn("catalog cache set failed", "err", err)
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Competency), nil
}

func (s *Service) Catalog(ctx context.Context) (*Catalog, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return New(items, s.Aliases), nil
}

func (s *Service) ListActive(ctx context.Context, asOf Period) ([]Competency, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return ListActive(items, asOf), nil
}

func (s *Service) Columns(ctx context.Context) ([]Competency, error) {
	cat, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return cat.Columns(), nil
}

func (s *Service) Get(ctx context.Context, id string) (Competency, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Competency, error) {
	created, err := s.Store.Create(ctx, in.Apply(Competency{}))
	if err != nil {
		return Competency{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (Competency, error) {
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return Competency{}, err
	}
	updated, err := s.Store.Update(ctx, in.Apply(current))
	if err != nil {
		return Competency{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, cacheKey); err != nil {
		slog.Warn("catalog cache invalidate failed", "err", err)
	}
}

func (s *Service) count(name string) {
	if s.Metrics != nil {
		s.Metrics.Inc(name)
	}
}
