package di

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"CorrPull/internal/domain/repository"
	domsvc "CorrPull/internal/domain/service"
	"CorrPull/internal/handler/api"
	internalrepo "CorrPull/internal/repository"
	"CorrPull/internal/service/ratelimit"
	"CorrPull/internal/services/entities"
	"CorrPull/internal/usecase"
	"CorrPull/pkg/cache"
	pkgch "CorrPull/pkg/clickhouse"
	"CorrPull/pkg/config"
	xhttp "CorrPull/pkg/http"
	"CorrPull/pkg/http/middleware"
	pkgkafka "CorrPull/pkg/kafka"
	applogger "CorrPull/pkg/logger"
	"CorrPull/pkg/metrics"
	pkgpg "CorrPull/pkg/postgres"
	"CorrPull/pkg/queue"
	"CorrPull/pkg/server"
)

// ProvideKafkaProducer creates the shared producer, or nil when nothing publishes.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Results.Publish && !cfg.Logging.Digest.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the app logger and attaches the Kafka log digest when enabled.
// Its cleanup runs before the producer's, so the final digest flush still has a writer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, err
	}
	l = l.With(applogger.String("env", cfg.Environment))

	if cfg.Logging.Digest.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Digest.Interval,
			CountThreshold: cfg.Logging.Digest.CountThreshold,
			Topic:          cfg.Logging.Digest.Topic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

func ProvideRecorder() *metrics.Recorder {
	return metrics.New()
}

func ProvideMetrics(r *metrics.Recorder) repository.Metrics {
	return r
}

// ProvideClickHouseClient connects and creates the schema, or returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))

	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

// ProvideSeriesCache returns Redis behind an in-process L1 when enabled, otherwise
// the in-process cache alone.
func ProvideSeriesCache(cfg *config.Config) (cache.Service, func(), error) {
	if !cfg.Cache.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Host),
		cache.WithRedisPort(cfg.Cache.Port),
		cache.WithRedisPassword(cfg.Cache.Password),
		cache.WithRedisDB(cfg.Cache.DB),
		cache.WithRedisPrefix(cfg.Cache.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
	return lc, func() { _ = lc.Close() }, nil
}

func ProvideProviderLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Provider.MaxRPS, cfg.Provider.Burst)
}

// ProvideSeriesProvider returns nil when no vendor URL is configured.
func ProvideSeriesProvider(cfg *config.Config, limiter *ratelimit.Limiter, l *applogger.Logger) repository.SeriesProvider {
	if cfg.Provider.BaseURL == "" {
		return nil
	}
	client := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Provider.Timeout),
		xhttp.WithRetry(cfg.Provider.Retries, cfg.Provider.RetryBackoff),
	)
	return internalrepo.NewHTTPSeriesProvider(client, cfg.Provider.BaseURL, cfg.Provider.APIKey, limiter, l)
}

// ProvideSeriesStore returns nil without ClickHouse.
func ProvideSeriesStore(ch *pkgch.Client, l *applogger.Logger) repository.SeriesStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHSeriesStore(ch, l)
}

func ProvideSeriesSource(
	provider repository.SeriesProvider,
	store repository.SeriesStore,
	c cache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) repository.SeriesSource {
	src := internalrepo.NewCachedSeriesSource(provider, store, c, cfg.Cache.SeriesTTL, m, l)
	src.SetFlightTimeout(cfg.Correlation.FetchTimeout)
	return src
}

// ProvideResultStore selects the results backend; "none" yields nil.
func ProvideResultStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.ResultStore, func(), error) {
	switch cfg.Results.Backend {
	case "clickhouse":
		if ch == nil {
			return nil, nil, fmt.Errorf("results backend clickhouse: client not enabled")
		}
		return internalrepo.NewCHResultStore(ch), func() {}, nil
	case "postgres":
		client, err := pkgpg.NewClient(
			pkgpg.WithHost(cfg.Postgres.Host, cfg.Postgres.Port),
			pkgpg.WithDatabase(cfg.Postgres.Database),
			pkgpg.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
			pkgpg.WithSSLMode(cfg.Postgres.SSLMode),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		store := internalrepo.NewPGResultStore(client)
		if err := store.Migrate(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return store, func() {
			if err := client.Close(); err != nil {
				l.Warn("postgres close error", applogger.Error(err))
			}
		}, nil
	default:
		return nil, func() {}, nil
	}
}

// ProvideResultPublisher returns nil unless results are published.
func ProvideResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ResultPublisher {
	if !cfg.Results.Publish || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Results.Topic)
}

func ProvideEntityFactory() repository.EntityFactory {
	return entities.NewFactory()
}

func ProvideCorrelationEngine(source repository.SeriesSource, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.CorrelationEngine {
	return usecase.NewCorrelationEngine(source, m, l,
		usecase.WithWorkers(cfg.Correlation.Workers),
		usecase.WithDownloadWorkers(cfg.Correlation.DownloadWorkers),
		usecase.WithFetchTimeout(cfg.Correlation.FetchTimeout),
	)
}

func ProvideTopCorrelations(factory repository.EntityFactory, m repository.Metrics) *usecase.TopCorrelations {
	return usecase.NewTopCorrelations(factory, m)
}

func ProvideCorrelationJob(
	cfg *config.Config,
	engine *usecase.CorrelationEngine,
	reducer *usecase.TopCorrelations,
	factory repository.EntityFactory,
	source repository.SeriesSource,
	universe repository.SeriesStore,
	results repository.ResultStore,
	publisher repository.ResultPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CorrelationJob {
	c := cfg.Correlation
	defaults := usecase.JobDefaults{
		PrimarySymbols:    c.PrimarySymbols,
		PrimaryKind:       c.PrimaryKind,
		CandidateSymbols:  c.CandidateSymbols,
		Windows:           c.Windows,
		RankWindows:       c.RankWindows,
		TopN:              c.TopN,
		EndDate:           c.EndDate,
		Source:            c.Source,
		ForceDownload:     c.ForceDownload,
		UseAlternateStore: c.UseAlternateStore,
		Parallel:          c.Parallel,
	}

	// interface values stay untyped nil when a backend is absent
	var opts []usecase.JobOption
	if universe != nil {
		opts = append(opts, usecase.WithUniverseStore(universe))
	}
	if results != nil {
		opts = append(opts, usecase.WithResultStore(results))
	}
	if publisher != nil {
		opts = append(opts, usecase.WithPublisher(publisher))
	}
	return usecase.NewCorrelationJob(engine, reducer, factory, source, defaults, m, l, opts...)
}

func ProvideRankingsUseCase(results repository.ResultStore) *usecase.RankingsUseCase {
	return usecase.NewRankingsUseCase(results)
}

// ProvideJobQueue builds the Redis work queue with the job handler registered,
// or nil when disabled. Workers start with the serve mode.
func ProvideJobQueue(cfg *config.Config, h *usecase.JobHandler, l *applogger.Logger) (*queue.RedisQueue, func(), error) {
	if !cfg.Queue.Enabled {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Cache.Host, cfg.Cache.Port),
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	q := queue.NewRedisQueue(l, &queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		StatusTTL:  cfg.Queue.StatusTTL,
	}, client, queue.WithKeyPrefix(cfg.Queue.Prefix))
	q.RegisterJob(h)

	return q, func() { _ = client.Close() }, nil
}

func ProvideJobSubmitter(q *queue.RedisQueue, job *usecase.CorrelationJob) *usecase.JobQueue {
	if q == nil {
		return nil
	}
	return usecase.NewJobQueue(q, job)
}

// ProvideHTTPServer builds the Echo server with request metrics and optional rate limiting.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	rec *metrics.Recorder,
	rankings *usecase.RankingsUseCase,
	job *usecase.CorrelationJob,
	jq *usecase.JobQueue,
) *xhttp.Server {
	mw := []echo.MiddlewareFunc{middleware.Metrics(rec, l, cfg.Server.SlowThreshold)}
	if cfg.Server.RateLimitRPS > 0 {
		mw = append(mw, middleware.RateLimit(ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)))
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	var submitter domsvc.JobSubmitter
	if jq != nil {
		submitter = jq
	}
	h := api.NewCorrelationsEchoHandler(l, rankings, job, submitter, cfg.Server.JobTimeout)
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithMiddleware(mw...),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORSOrigins(cfg.Server.CORSOrigins...))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideKafkaConsumer creates the job consumer, or nil when Kafka intake is off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.RejectEmptyHook(),
		pkgkafka.LoggingHook(l),
	))
	return consumer, nil
}

func ProvideJobHandler(cfg *config.Config, job *usecase.CorrelationJob, m repository.Metrics, l *applogger.Logger) *usecase.JobHandler {
	return usecase.NewJobHandler(cfg.Kafka.JobsTopic, job, m, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	job *usecase.CorrelationJob,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.JobHandler,
	q *queue.RedisQueue,
) *server.App {
	return server.New(cfg, l, job, srv, consumer, kh, q)
}
