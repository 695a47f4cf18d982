// Package product serves product info with at most one backend request in
// flight per product code.
package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"claimgate/internal/product/metrics"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/sentinel"
)

const (
	defaultTTL          = 5 * time.Minute
	defaultFetchTimeout = 10 * time.Second
)

// Info is the backend's product document, passed through as-is.
type Info map[string]any

// Fetcher loads raw product JSON from the backend.
type Fetcher interface {
	FetchProduct(ctx context.Context, code string) ([]byte, error)
}

type statusCoder interface {
	StatusCode() int
}

type Service struct {
	cache        Cache
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	inflight     singleflight.Group
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(cache Cache, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		cache:        cache,
		fetcher:      fetcher,
		ttl:          defaultTTL,
		fetchTimeout: defaultFetchTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns product info for code, from the durable cache when possible.
// Concurrent misses for the same code share one backend request.
func (s *Service) Get(ctx context.Context, code string) (Info, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "product code is required")
	}
	if info, ok := s.cached(ctx, code); ok {
		return info, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	ch := s.inflight.DoChan(code, func() (any, error) {
		return s.fetch(ctx, code)
	})
	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "product lookup cancelled")
	case res := <-ch:
		if res.Shared && s.metrics != nil {
			s.metrics.SharedWaits.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers share the decoded map, so each gets its own copy.
		return decode(res.Val.([]byte))
	}
}

func (s *Service) cached(ctx context.Context, code string) (Info, bool) {
	raw, err := s.cache.Get(ctx, code)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "product cache read failed", "code", code, "error", err)
		}
		return nil, false
	}
	info, err := decode(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "evicting corrupt product cache entry", "code", code, "error", err)
		if s.metrics != nil {
			s.metrics.CorruptEvictions.Inc()
		}
		if delErr := s.cache.Delete(ctx, code); delErr != nil {
			s.logger.WarnContext(ctx, "product cache evict failed", "code", code, "error", delErr)
		}
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHits.Inc()
	}
	return info, true
}

// fetch runs once per in-flight code. It is detached from the first caller's
// cancellation because other callers may be waiting on it.
func (s *Service) fetch(ctx context.Context, code string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.fetcher.FetchProduct(fetchCtx, code)
	if s.metrics != nil {
		s.metrics.ObserveFetch(start)
	}
	if err != nil {
		var sc statusCoder
		if errors.As(err, &sc) && sc.StatusCode() == http.StatusNotFound {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "product not found")
		}
		s.logger.WarnContext(ctx, "product fetch failed", "code", code, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeNetwork, "product information is temporarily unavailable, please retry")
	}
	if _, err := decode(raw); err != nil {
		return nil, dErrors.Wrap(fmt.Errorf("decode product %s: %w", code, err), dErrors.CodeNetwork, "product information is temporarily unavailable, please retry")
	}
	if err := s.cache.Set(fetchCtx, code, raw, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "product cache write failed", "code", code, "error", err)
	}
	return raw, nil
}

func decode(raw []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("empty product document")
	}
	return info, nil
}
