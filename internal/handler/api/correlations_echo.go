package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "CorrPull/internal/domain/models"
	domsvc "CorrPull/internal/domain/service"
	"CorrPull/internal/usecase"
	xhttp "CorrPull/pkg/http"
	xlogger "CorrPull/pkg/logger"
)

// CorrelationsEchoHandler serves ranked lists and accepts correlation jobs.
type CorrelationsEchoHandler struct {
	logger     *xlogger.Logger
	rankings   domsvc.RankingsReader
	jobs       domsvc.JobRunner
	queue      domsvc.JobSubmitter
	jobTimeout time.Duration
}

// NewCorrelationsEchoHandler builds the handler. queue may be nil, which disables async submission.
func NewCorrelationsEchoHandler(logger *xlogger.Logger, rankings domsvc.RankingsReader, jobs domsvc.JobRunner, queue domsvc.JobSubmitter, jobTimeout time.Duration) *CorrelationsEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &CorrelationsEchoHandler{logger: logger, rankings: rankings, jobs: jobs, queue: queue, jobTimeout: jobTimeout}
}

func (h *CorrelationsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/correlations", h.Correlations)
	g.POST("/jobs", h.SubmitJob)
	g.GET("/jobs/:id", h.JobStatus)
	e.GET("/healthz", h.Health)
}

func (h *CorrelationsEchoHandler) Correlations(c echo.Context) error {
	req := &models.RankingsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.rankings.Get(c.Request().Context(), *req)
	switch {
	case errors.Is(err, usecase.ErrInvalidQuery):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, usecase.ErrRankingsNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case err != nil:
		h.logger.Error("rankings usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("rankings lookup failed").WithError(err))
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, models.RankingsResponse{
		Symbol:     rows[0].Symbol,
		Window:     rows[0].Window,
		Side:       rows[0].Side,
		RunID:      rows[0].RunID,
		Candidates: rows,
	})
}

// SubmitJob runs the job synchronously and answers with its summary.
// With ?async=true the job is queued instead and 202 carries the queue ID.
func (h *CorrelationsEchoHandler) SubmitJob(c echo.Context) error {
	req := models.JobRequest{}
	if err := c.Bind(&req); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("malformed job request"))
	}

	if c.QueryParam("async") == "true" {
		return h.enqueue(c, req)
	}

	ctx := c.Request().Context()
	if h.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.jobTimeout)
		defer cancel()
	}

	res, err := h.jobs.Run(ctx, req)
	switch {
	case errors.Is(err, usecase.ErrInvalidJob):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("correlation job timed out"))
	case err != nil:
		h.logger.Error("correlation job error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("correlation job failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CorrelationsEchoHandler) enqueue(c echo.Context, req models.JobRequest) error {
	if h.queue == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("background queue disabled"))
	}
	id, err := h.queue.Submit(c.Request().Context(), req)
	switch {
	case errors.Is(err, usecase.ErrInvalidJob):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case err != nil:
		h.logger.Error("enqueue job error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("could not queue job").WithError(err))
	}
	return xhttp.AcceptedResponse(c, map[string]string{"job_id": id})
}

// JobStatus reports the queue state of an asynchronously submitted job.
func (h *CorrelationsEchoHandler) JobStatus(c echo.Context) error {
	if h.queue == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("background queue disabled"))
	}
	st, err := h.queue.Status(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, usecase.ErrJobNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no such job").WithField("id"))
	case err != nil:
		h.logger.Error("job status error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("job status unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *CorrelationsEchoHandler) Health(c echo.Context) error {
	if err := h.rankings.Health(c.Request().Context()); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("result store unavailable").WithError(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
