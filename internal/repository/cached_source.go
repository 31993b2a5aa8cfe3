package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
	"CorrPull/pkg/cache"
	applogger "CorrPull/pkg/logger"
	"CorrPull/pkg/util"
)

// CachedSeriesSource resolves validated series from the cache, the vendor or
// the alternate store.
//
//	useAlternateStore: store (forceDownload: vendor first, written through to the store)
//	otherwise:         cache, then vendor (forceDownload skips the cache read)
//
// Concurrent requests for the same cache key share one lookup; the returned
// series is shared too and must not be modified. The shared lookup is
// detached from every caller's cancellation and bounded by flightTimeout;
// each caller stops waiting when its own context ends.
type CachedSeriesSource struct {
	group         singleflight.Group
	flightTimeout time.Duration
	provider      domrepo.SeriesProvider
	store         domrepo.SeriesStore
	cache         cache.Service
	ttl           time.Duration
	metrics       domrepo.Metrics
	l             *applogger.Logger
}

var _ domrepo.SeriesSource = (*CachedSeriesSource)(nil)

const defaultFlightTimeout = 2 * time.Minute

// NewCachedSeriesSource wires the retrieval policy. store and c may be nil.
func NewCachedSeriesSource(provider domrepo.SeriesProvider, store domrepo.SeriesStore, c cache.Service, ttl time.Duration, metrics domrepo.Metrics, l *applogger.Logger) *CachedSeriesSource {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CachedSeriesSource{
		flightTimeout: defaultFlightTimeout,
		provider:      provider,
		store:         store,
		cache:         c,
		ttl:           ttl,
		metrics:       metrics,
		l:             l,
	}
}

// SetFlightTimeout bounds a shared lookup once no single caller owns it.
// Non-positive values keep the current bound.
func (s *CachedSeriesSource) SetFlightTimeout(d time.Duration) {
	if d > 0 {
		s.flightTimeout = d
	}
}

func seriesCacheKey(source, symbol, window string, end time.Time) string {
	return cache.Key("series", source, symbol, window, end.Format(time.DateOnly))
}

func (s *CachedSeriesSource) FetchValidatedSeries(ctx context.Context, symbol, window string, endDate time.Time, source string, forceDownload, useAlternateStore bool) (models.TimeSeries, error) {
	from, to, err := util.WindowRange(window, endDate)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: window %s starts after %s", domrepo.ErrNoData, window, to.Format(time.DateOnly))
	}

	if useAlternateStore {
		return s.fromStore(ctx, symbol, source, from, to, forceDownload)
	}

	key := seriesCacheKey(source, symbol, window, to)
	flight := key
	if forceDownload {
		flight += ":force"
	}
	ch := s.group.DoChan(flight, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.cachedDownload(fctx, key, symbol, source, from, to, forceDownload)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(models.TimeSeries), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CachedSeriesSource) cachedDownload(ctx context.Context, key, symbol, source string, from, to time.Time, forceDownload bool) (models.TimeSeries, error) {
	if !forceDownload && s.cache != nil {
		var cached models.TimeSeries
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil && len(cached) > 0:
			s.record(source, "hit")
			return cached, nil
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			s.l.Warn("series cache read failed", applogger.String("key", key), applogger.Error(err))
		}
		s.record(source, "miss")
	}

	validated, err := s.download(ctx, symbol, source, from, to)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, validated, s.ttl); err != nil {
			s.l.Warn("series cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return validated, nil
}

func (s *CachedSeriesSource) fromStore(ctx context.Context, symbol, source string, from, to time.Time, forceDownload bool) (models.TimeSeries, error) {
	if s.store == nil {
		return nil, errors.New("alternate store requested but not configured")
	}

	if forceDownload {
		validated, err := s.download(ctx, symbol, source, from, to)
		if err != nil {
			return nil, err
		}
		if err := s.store.StoreSeries(ctx, symbol, source, validated); err != nil {
			s.l.Warn("series write-through failed",
				applogger.String("symbol", symbol),
				applogger.String("source", source),
				applogger.Error(err),
			)
		}
		return validated, nil
	}

	raw, err := s.store.Query(ctx, symbol, source, from, to)
	if err != nil {
		if errors.Is(err, domrepo.ErrNoData) {
			s.record(source, "no_data")
		}
		return nil, err
	}
	s.record(source, "store")
	return ValidateSeries(raw, from, to)
}

func (s *CachedSeriesSource) download(ctx context.Context, symbol, source string, from, to time.Time) (models.TimeSeries, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("download %s: no provider configured", symbol)
	}
	raw, err := s.provider.Download(ctx, symbol, source, from, to)
	if err != nil {
		if errors.Is(err, domrepo.ErrNoData) {
			s.record(source, "no_data")
		}
		return nil, err
	}
	s.record(source, "download")

	validated, err := ValidateSeries(raw, from, to)
	if errors.Is(err, domrepo.ErrNoData) {
		s.record(source, "no_data")
	}
	return validated, err
}

func (s *CachedSeriesSource) record(source, result string) {
	if s.metrics != nil {
		s.metrics.RecordFetch(source, result)
	}
}
