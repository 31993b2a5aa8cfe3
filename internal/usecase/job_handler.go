package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"CorrPull/internal/domain/models"
	drepo "CorrPull/internal/domain/repository"
	pkgkafka "CorrPull/pkg/kafka"
	applogger "CorrPull/pkg/logger"
	"CorrPull/pkg/queue"
)

// JobType tags correlation jobs on the background queue.
const JobType = "correlation_job"

// JobHandler runs JSON job requests delivered by Kafka or the Redis queue.
type JobHandler struct {
	topic   string
	job     *CorrelationJob
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewJobHandler(topic string, job *CorrelationJob, metrics drepo.Metrics, l *applogger.Logger) *JobHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &JobHandler{topic: topic, job: job, metrics: orNoop(metrics), l: l}
}

func (h *JobHandler) Topic() string { return h.topic }

func (h *JobHandler) Type() string { return JobType }

// Handle returns an error for undecodable or invalid payloads so the consumer
// can route them to its dead-letter topic. Those come back as
// *kafka.HookError so they are dead-lettered without retries.
func (h *JobHandler) Handle(ctx context.Context, b []byte) error {
	var req models.JobRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("job_unmarshal")
		return rejectJob(fmt.Errorf("decode job request: %w", err))
	}

	res, err := h.job.Run(ctx, req)
	if err != nil {
		h.l.Error("queued correlation job failed", applogger.Error(err))
		if errors.Is(err, ErrInvalidJob) {
			return rejectJob(err)
		}
		return err
	}
	h.l.Info("queued correlation job done",
		applogger.String("run_id", res.RunID),
		applogger.Int("ranked_rows", res.RankedRows),
	)
	return nil
}

func rejectJob(err error) error {
	return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: err}
}

// ErrJobNotFound is returned for IDs the queue has no status for.
var ErrJobNotFound = errors.New("job not found")

// Enqueuer is the producer side of the background job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload any) (string, error)
	Status(ctx context.Context, id string) (*queue.Status, error)
}

// JobQueue validates requests up front and hands them to the background queue.
type JobQueue struct {
	q   Enqueuer
	job *CorrelationJob
}

func NewJobQueue(q Enqueuer, job *CorrelationJob) *JobQueue {
	return &JobQueue{q: q, job: job}
}

// Submit returns the queued message ID.
func (s *JobQueue) Submit(ctx context.Context, req models.JobRequest) (string, error) {
	req, err := s.job.Prepare(req)
	if err != nil {
		return "", err
	}
	return s.q.Enqueue(ctx, JobType, req)
}

// Status reports the queue state of a submitted job. Statuses expire, so an
// old ID yields ErrJobNotFound.
func (s *JobQueue) Status(ctx context.Context, id string) (*models.JobStatus, error) {
	st, err := s.q.Status(ctx, id)
	if errors.Is(err, queue.ErrUnknownMessage) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.JobStatus{
		JobID:     st.ID,
		State:     string(st.State),
		Attempts:  st.Attempts,
		Error:     st.Error,
		UpdatedAt: st.UpdatedAt,
	}, nil
}
