package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CorrPull/internal/domain/models"
	"CorrPull/internal/usecase"
	"CorrPull/pkg/config"
	xhttp "CorrPull/pkg/http"
	pkgkafka "CorrPull/pkg/kafka"
	applogger "CorrPull/pkg/logger"
	"CorrPull/pkg/queue"
)

const (
	ModeRun   = "run"
	ModeServe = "serve"
)

var ErrUnknownMode = errors.New("unknown mode (want run or serve)")

// App encapsulates the application lifecycle for both modes.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	job        *usecase.CorrelationJob
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	queue      *queue.RedisQueue
}

// New creates a new App. httpServer, consumer and q may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	job *usecase.CorrelationJob,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	q *queue.RedisQueue,
) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{
		cfg:        cfg,
		l:          l,
		job:        job,
		httpServer: httpServer,
		consumer:   consumer,
		kh:         kh,
		queue:      q,
	}
}

// Start dispatches on mode and blocks until the work is done or a signal arrives.
func (a *App) Start(mode string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case ModeRun:
		return a.RunOnce(ctx)
	case ModeServe:
		return a.Serve(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// RunOnce executes the configured job a single time. Every request field
// comes from the job defaults, which DI fills from configuration.
func (a *App) RunOnce(ctx context.Context) error {
	res, err := a.job.Run(ctx, models.JobRequest{})
	if err != nil {
		a.l.Error("correlation run failed", applogger.Error(err))
		return err
	}
	a.l.Info("correlation run complete",
		applogger.String("run_id", res.RunID),
		applogger.Int("primaries", res.Primaries),
		applogger.Int("candidates", res.Candidates),
		applogger.Int("ranked_rows", res.RankedRows),
		applogger.Duration("duration_ms", res.Duration),
	)
	return nil
}

// Serve starts HTTP, the job consumer and the queue workers, then waits for ctx to end.
func (a *App) Serve(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return err
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.l.Info("job consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
