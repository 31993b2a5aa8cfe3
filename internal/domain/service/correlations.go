package service

import (
	"context"

	"CorrPull/internal/domain/models"
)

// JobRunner executes one correlation job to completion.
type JobRunner interface {
	Run(ctx context.Context, req models.JobRequest) (*models.JobResult, error)
}

// RankingsReader is the read side of stored ranked lists.
type RankingsReader interface {
	Get(ctx context.Context, q models.RankingsRequest) ([]models.RankedCorrelation, error)
	Health(ctx context.Context) error
}

// JobSubmitter queues a job for background execution and reports on it by ID.
type JobSubmitter interface {
	Submit(ctx context.Context, req models.JobRequest) (string, error)
	Status(ctx context.Context, id string) (*models.JobStatus, error)
}
