package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"CorrPull/internal/domain/models"
	drepo "CorrPull/internal/domain/repository"
	"CorrPull/internal/services/entities"
	"CorrPull/internal/services/features"
	applogger "CorrPull/pkg/logger"
	"CorrPull/pkg/util"
)

// ErrInvalidJob wraps request validation failures.
var ErrInvalidJob = errors.New("invalid correlation job")

// fredSource is the retrieval source used for macro series primaries.
const fredSource = "fred"

// JobDefaults fills the fields a request leaves empty.
type JobDefaults struct {
	PrimarySymbols    []string
	PrimaryKind       string
	CandidateSymbols  []string
	Windows           []string
	RankWindows       []string
	TopN              int
	EndDate           string
	Source            string
	ForceDownload     bool
	UseAlternateStore bool
	Parallel          bool
}

// CorrelationJob runs one full pass: seed primaries, correlate, rank, persist, publish.
type CorrelationJob struct {
	engine    *CorrelationEngine
	reducer   *TopCorrelations
	factory   drepo.EntityFactory
	source    drepo.SeriesSource
	universe  drepo.SeriesStore
	results   drepo.ResultStore
	publisher drepo.ResultPublisher
	defaults  JobDefaults
	metrics   drepo.Metrics
	l         *applogger.Logger
	validate  *validator.Validate
	now       func() time.Time
}

type JobOption func(*CorrelationJob)

// WithUniverseStore lists the candidate universe when neither request nor defaults name one.
func WithUniverseStore(s drepo.SeriesStore) JobOption {
	return func(j *CorrelationJob) { j.universe = s }
}

func WithResultStore(s drepo.ResultStore) JobOption {
	return func(j *CorrelationJob) { j.results = s }
}

func WithPublisher(p drepo.ResultPublisher) JobOption {
	return func(j *CorrelationJob) { j.publisher = p }
}

func WithClock(now func() time.Time) JobOption {
	return func(j *CorrelationJob) { j.now = now }
}

func NewCorrelationJob(engine *CorrelationEngine, reducer *TopCorrelations, factory drepo.EntityFactory, source drepo.SeriesSource, d JobDefaults, metrics drepo.Metrics, l *applogger.Logger, opts ...JobOption) *CorrelationJob {
	if l == nil {
		l = applogger.NewNop()
	}
	j := &CorrelationJob{
		engine:   engine,
		reducer:  reducer,
		factory:  factory,
		source:   source,
		defaults: d,
		metrics:  orNoop(metrics),
		l:        l,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Prepare merges defaults into req and validates the result. Boolean flags
// are enabled when either the request or the defaults enable them.
func (j *CorrelationJob) Prepare(req models.JobRequest) (models.JobRequest, error) {
	d := j.defaults
	if len(req.PrimarySymbols) == 0 {
		req.PrimarySymbols = d.PrimarySymbols
	}
	if req.PrimaryKind == "" {
		req.PrimaryKind = d.PrimaryKind
	}
	if len(req.CandidateSymbols) == 0 {
		req.CandidateSymbols = d.CandidateSymbols
	}
	if len(req.Windows) == 0 {
		req.Windows = d.Windows
	}
	if len(req.RankWindows) == 0 {
		req.RankWindows = d.RankWindows
	}
	if req.TopN == 0 {
		req.TopN = d.TopN
	}
	if req.EndDate == "" {
		req.EndDate = d.EndDate
	}
	if req.Source == "" {
		req.Source = d.Source
	}
	req.ForceDownload = req.ForceDownload || d.ForceDownload
	req.UseAlternateStore = req.UseAlternateStore || d.UseAlternateStore
	req.Parallel = req.Parallel || d.Parallel

	if err := defaults.Set(&req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if len(req.Windows) == 0 {
		req.Windows = []string{"2023"}
	}
	if err := j.validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	for _, w := range append(append([]string{}, req.Windows...), req.RankWindows...) {
		if _, err := util.ParseWindowStart(w); err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
	}
	if req.EndDate != "" {
		if _, ok := util.ParseTime(req.EndDate); !ok {
			return req, fmt.Errorf("%w: bad end_date %q", ErrInvalidJob, req.EndDate)
		}
	}
	return req, nil
}

// Run executes req end to end. The engine finishes every window before the
// reducer starts, and each run owns its entity set.
func (j *CorrelationJob) Run(ctx context.Context, req models.JobRequest) (*models.JobResult, error) {
	req, err := j.Prepare(req)
	if err != nil {
		return nil, err
	}

	started := j.now()
	res := &models.JobResult{
		RunID:     uuid.NewString(),
		Windows:   req.Windows,
		StartedAt: started,
	}
	l := j.l.With(applogger.String("run_id", res.RunID))

	var endDate time.Time
	if req.EndDate != "" {
		endDate, _ = util.ParseTime(req.EndDate)
	}
	base := CorrelationParams{
		EndDate:           endDate,
		Source:            req.Source,
		ForceDownload:     req.ForceDownload,
		UseAlternateStore: req.UseAlternateStore,
	}

	primaries, skipped, err := j.seed(ctx, req, base)
	if err != nil {
		j.metrics.RecordError("seed")
		return nil, err
	}
	res.Primaries = len(primaries)
	res.SkippedSeeding = skipped

	candidates, err := j.candidates(ctx, req)
	if err != nil {
		j.metrics.RecordError("universe")
		return nil, err
	}
	res.Candidates = len(candidates)

	l.Info("correlation job started",
		applogger.Int("primaries", res.Primaries),
		applogger.Int("candidates", res.Candidates),
		applogger.Strings("windows", req.Windows),
		applogger.Bool("parallel", req.Parallel),
	)

	primaries, err = j.engine.CorrelateAcrossWindows(ctx, primaries, candidates, req.Windows, base, req.Parallel)
	if err != nil {
		j.metrics.RecordError("correlate")
		return nil, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	for _, e := range primaries {
		for _, w := range req.Windows {
			res.Correlations += len(e.AllCorrelations[w])
		}
	}

	primaries = j.reducer.RankAndPrune(primaries, req.TopN, req.RankWindows)

	computedAt := j.now().UTC()
	rows := models.FlattenRankings(res.RunID, computedAt, primaries)
	res.RankedRows = len(rows)

	if j.results != nil {
		if err := j.results.SaveRankings(ctx, rows); err != nil {
			j.metrics.RecordError("save_rankings")
			return nil, fmt.Errorf("run %s: %w", res.RunID, err)
		}
	}
	if j.publisher != nil {
		if err := j.publisher.PublishRankings(ctx, rankingMessages(res.RunID, computedAt, primaries)); err != nil {
			// results are already persisted; a failed announcement does not fail the run
			j.metrics.RecordError("publish_rankings")
			l.Warn("publishing rankings failed", applogger.Error(err))
		}
	}

	res.Duration = j.now().Sub(started)
	j.metrics.RecordLatency("correlation_job", res.Duration.Seconds())
	l.Info("correlation job finished",
		applogger.Int("correlations", res.Correlations),
		applogger.Int("ranked_rows", res.RankedRows),
		applogger.Duration("duration_ms", res.Duration),
	)
	return res, nil
}

// seed builds the primary entities and their detrended series per compute window.
// A primary without data in a window simply has no series there.
func (j *CorrelationJob) seed(ctx context.Context, req models.JobRequest, base CorrelationParams) ([]*models.Security, []string, error) {
	kind := models.EntityKind(req.PrimaryKind)
	source := base.Source
	if kind == models.KindFredSeries {
		source = fredSource
	}

	var (
		out     []*models.Security
		skipped []string
		seen    = make(map[string]struct{}, len(req.PrimarySymbols))
	)
	for _, sym := range req.PrimarySymbols {
		e := j.factory.NewPrimary(kind, sym)
		if e.Symbol == "" {
			continue
		}
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		seen[e.Key()] = struct{}{}

		for _, w := range req.Windows {
			s, err := j.source.FetchValidatedSeries(ctx, e.Symbol, w, base.EndDate, source, base.ForceDownload, base.UseAlternateStore)
			if errors.Is(err, drepo.ErrNoData) {
				skipped = append(skipped, e.Symbol+"@"+w)
				j.l.Warn("no data for primary", applogger.String("symbol", e.Symbol), applogger.String("window", w))
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("seed %s/%s: %w", e.Symbol, w, err)
			}
			e.SeriesDataDetrended[w] = features.Detrend(s)
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

// candidates resolves the universe: request or defaults first, then the
// alternate store's symbol list.
func (j *CorrelationJob) candidates(ctx context.Context, req models.JobRequest) ([]string, error) {
	syms := req.CandidateSymbols
	if len(syms) == 0 && j.universe != nil {
		listed, err := j.universe.ListSymbols(ctx, req.Source)
		if err != nil {
			return nil, fmt.Errorf("list universe: %w", err)
		}
		syms = listed
	}
	if len(syms) == 0 {
		return nil, fmt.Errorf("%w: empty candidate universe", ErrInvalidJob)
	}
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		out = append(out, entities.NormalizeSymbol(s))
	}
	return uniqueSymbols(out), nil
}

func rankingMessages(runID string, at time.Time, ents []*models.Security) []models.RankingMessage {
	out := make([]models.RankingMessage, 0, len(ents))
	for _, e := range ents {
		out = append(out, models.RankingMessage{
			RunID:      runID,
			Symbol:     e.Symbol,
			Kind:       e.Kind,
			ComputedAt: at,
			Positive:   e.PositiveCorrelations,
			Negative:   e.NegativeCorrelations,
		})
	}
	return out
}
