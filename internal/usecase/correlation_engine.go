package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"CorrPull/internal/domain/models"
	drepo "CorrPull/internal/domain/repository"
	"CorrPull/internal/services/features"
	applogger "CorrPull/pkg/logger"
)

// ErrMalformedEntity is returned when a primary entity cannot be correlated at all.
var ErrMalformedEntity = errors.New("malformed primary entity")

// CorrelationParams selects the window and retrieval policy for one engine pass.
type CorrelationParams struct {
	Window            string
	EndDate           time.Time
	Source            string
	ForceDownload     bool
	UseAlternateStore bool
}

// CorrelationEngine fills AllCorrelations of primary entities against a candidate universe.
type CorrelationEngine struct {
	source          drepo.SeriesSource
	metrics         drepo.Metrics
	l               *applogger.Logger
	workers         int
	downloadWorkers int
	fetchTimeout    time.Duration
}

type EngineOption func(*CorrelationEngine)

// WithWorkers caps the parallel path. Zero means runtime.NumCPU().
func WithWorkers(n int) EngineOption {
	return func(e *CorrelationEngine) { e.workers = n }
}

// WithDownloadWorkers caps concurrency when series are force-downloaded.
func WithDownloadWorkers(n int) EngineOption {
	return func(e *CorrelationEngine) { e.downloadWorkers = n }
}

// WithFetchTimeout bounds every single series retrieval.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(e *CorrelationEngine) { e.fetchTimeout = d }
}

func NewCorrelationEngine(source drepo.SeriesSource, metrics drepo.Metrics, l *applogger.Logger, opts ...EngineOption) *CorrelationEngine {
	if l == nil {
		l = applogger.NewNop()
	}
	e := &CorrelationEngine{
		source:          source,
		metrics:         orNoop(metrics),
		l:               l,
		downloadWorkers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// target pairs a primary with its detrended series for the window being computed.
// Workers only read targets; all writes to entities happen on the caller's goroutine.
type target struct {
	entity *models.Security
	series models.TimeSeries
}

type pairResult struct {
	target int
	corr   float64
}

type symbolResult struct {
	symbol string
	pairs  []pairResult
}

// ComputeCorrelations fetches each candidate once and correlates it against
// every primary entity, sequentially. Candidates without data are skipped.
// Pairs that cannot be aligned are logged and skipped. Entries already present
// for the window are overwritten; entries for other windows are untouched.
func (e *CorrelationEngine) ComputeCorrelations(ctx context.Context, entities []*models.Security, candidates []string, p CorrelationParams) ([]*models.Security, error) {
	targets, err := e.targets(entities, p.Window)
	if err != nil {
		return entities, err
	}
	start := time.Now()
	written := 0

	for _, symbol := range uniqueSymbols(candidates) {
		if err := ctx.Err(); err != nil {
			return entities, err
		}

		series, err := e.fetch(ctx, symbol, p)
		if err != nil {
			if skip := e.skipFetch(ctx, symbol, p, err); skip {
				continue
			}
			e.metrics.RecordError("fetch")
			return entities, fmt.Errorf("fetch %s: %w", symbol, err)
		}

		pairs, err := e.correlateCandidate(symbol, series, targets, p.Window)
		if err != nil {
			e.metrics.RecordError("correlate")
			return entities, err
		}
		written += merge(targets, symbolResult{symbol: symbol, pairs: pairs}, p.Window)
	}

	e.metrics.RecordCorrelations(p.Window, written)
	e.metrics.RecordLatency("compute_correlations", time.Since(start).Seconds())
	return entities, nil
}

// ComputeCorrelationsParallel produces the same mapping as ComputeCorrelations
// but fetches and correlates candidates on a bounded worker pool. Workers
// return per-symbol results; the caller goroutine merges them, so no entity
// is written concurrently. The first unexpected error cancels the pool.
func (e *CorrelationEngine) ComputeCorrelationsParallel(ctx context.Context, entities []*models.Security, candidates []string, p CorrelationParams) ([]*models.Security, error) {
	targets, err := e.targets(entities, p.Window)
	if err != nil {
		return entities, err
	}
	start := time.Now()
	workers := e.workerCount(p.ForceDownload)
	symbols := uniqueSymbols(candidates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	results := make(chan symbolResult, workers)

	var waitErr error
	go func() {
		defer close(results)
		for _, symbol := range symbols {
			if gctx.Err() != nil {
				break
			}
			symbol := symbol
			g.Go(func() error {
				series, err := e.fetch(gctx, symbol, p)
				if err != nil {
					if e.skipFetch(gctx, symbol, p, err) {
						return nil
					}
					e.metrics.RecordError("fetch")
					return fmt.Errorf("fetch %s: %w", symbol, err)
				}
				pairs, err := e.correlateCandidate(symbol, series, targets, p.Window)
				if err != nil {
					e.metrics.RecordError("correlate")
					return err
				}
				select {
				case results <- symbolResult{symbol: symbol, pairs: pairs}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		waitErr = g.Wait()
	}()

	written := 0
	for r := range results {
		written += merge(targets, r, p.Window)
	}
	if waitErr != nil {
		return entities, waitErr
	}
	if err := ctx.Err(); err != nil {
		return entities, err
	}

	e.l.Debug("parallel correlation pass done",
		applogger.String("window", p.Window),
		applogger.Int("workers", workers),
		applogger.Int("symbols", len(symbols)),
		applogger.Int("correlations", written),
	)
	e.metrics.RecordCorrelations(p.Window, written)
	e.metrics.RecordLatency("compute_correlations", time.Since(start).Seconds())
	return entities, nil
}

// CorrelateAcrossWindows runs one engine pass per window, in order.
func (e *CorrelationEngine) CorrelateAcrossWindows(ctx context.Context, entities []*models.Security, candidates []string, windows []string, base CorrelationParams, parallel bool) ([]*models.Security, error) {
	for _, w := range windows {
		p := base
		p.Window = w

		var err error
		if parallel {
			entities, err = e.ComputeCorrelationsParallel(ctx, entities, candidates, p)
		} else {
			entities, err = e.ComputeCorrelations(ctx, entities, candidates, p)
		}
		if err != nil {
			return entities, fmt.Errorf("window %s: %w", w, err)
		}
	}
	return entities, nil
}

func (e *CorrelationEngine) targets(entities []*models.Security, window string) ([]target, error) {
	out := make([]target, 0, len(entities))
	for i, ent := range entities {
		if ent == nil || ent.Symbol == "" {
			return nil, fmt.Errorf("%w: index %d", ErrMalformedEntity, i)
		}
		// Self-exclusion keys on Kind, so an unset Kind would correlate
		// the entity with its own ticker.
		if !ent.Kind.IsValid() {
			return nil, fmt.Errorf("%w: index %d has kind %q", ErrMalformedEntity, i, ent.Kind)
		}
		out = append(out, target{entity: ent, series: ent.SeriesDataDetrended[window]})
	}
	return out, nil
}

func (e *CorrelationEngine) fetch(ctx context.Context, symbol string, p CorrelationParams) (models.TimeSeries, error) {
	fctx, cancel := ctx, context.CancelFunc(func() {})
	if e.fetchTimeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
	}
	defer cancel()

	start := time.Now()
	series, err := e.source.FetchValidatedSeries(fctx, symbol, p.Window, p.EndDate, p.Source, p.ForceDownload, p.UseAlternateStore)
	e.metrics.RecordLatency("fetch_series", time.Since(start).Seconds())
	return series, err
}

// skipFetch reports whether a fetch error only drops the symbol: no data, or
// the per-fetch timeout fired while the run itself is still alive.
func (e *CorrelationEngine) skipFetch(ctx context.Context, symbol string, p CorrelationParams, err error) bool {
	switch {
	case errors.Is(err, drepo.ErrNoData):
		e.metrics.RecordSkip("no_data")
		e.l.Debug("no data for candidate",
			applogger.String("symbol", symbol),
			applogger.String("window", p.Window),
		)
		return true
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		e.metrics.RecordSkip("fetch_timeout")
		e.l.Warn("candidate fetch timed out",
			applogger.String("symbol", symbol),
			applogger.String("window", p.Window),
			applogger.Duration("timeout_ms", e.fetchTimeout),
		)
		return true
	}
	return false
}

// correlateCandidate computes one candidate against every primary. It reads
// targets only and is safe to call from several goroutines.
func (e *CorrelationEngine) correlateCandidate(symbol string, series models.TimeSeries, targets []target, window string) ([]pairResult, error) {
	ref := models.CandidateRef{Kind: models.KindSecurity, Symbol: symbol}
	pairs := make([]pairResult, 0, len(targets))

	for i, t := range targets {
		if t.entity.Matches(ref) {
			continue
		}
		corr, err := features.CorrelationForSeries(t.series, series)
		if errors.Is(err, features.ErrIncompatibleSeries) {
			e.metrics.RecordSkip("incompatible")
			e.l.Warn("skipping pair with incompatible series",
				applogger.String("primary", t.entity.Symbol),
				applogger.String("candidate", symbol),
				applogger.String("window", window),
				applogger.Int("primary_points", len(t.series)),
				applogger.Int("candidate_points", len(series)),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("correlate %s/%s: %w", t.entity.Symbol, symbol, err)
		}
		pairs = append(pairs, pairResult{target: i, corr: corr})
	}
	return pairs, nil
}

func merge(targets []target, r symbolResult, window string) int {
	for _, pr := range r.pairs {
		targets[pr.target].entity.SetCorrelation(window, r.symbol, pr.corr)
	}
	return len(r.pairs)
}

func (e *CorrelationEngine) workerCount(forceDownload bool) int {
	n := e.workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if forceDownload && e.downloadWorkers > 0 && n > e.downloadWorkers {
		n = e.downloadWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// uniqueSymbols drops blanks and repeats, keeping first-seen order.
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
