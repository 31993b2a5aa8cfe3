package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CorrPull/internal/domain/models"
	domrepo "CorrPull/internal/domain/repository"
	"CorrPull/internal/service/ratelimit"
	pkghttp "CorrPull/pkg/http"
	applogger "CorrPull/pkg/logger"
)

type seriesResponse struct {
	Symbol string         `json:"symbol"`
	Points []models.Point `json:"points"`
}

// HTTPSeriesProvider downloads series from the upstream vendor API.
type HTTPSeriesProvider struct {
	client  *pkghttp.Client
	baseURL string
	apiKey  string
	limiter *ratelimit.Limiter
	l       *applogger.Logger
}

var _ domrepo.SeriesProvider = (*HTTPSeriesProvider)(nil)

func NewHTTPSeriesProvider(client *pkghttp.Client, baseURL, apiKey string, limiter *ratelimit.Limiter, l *applogger.Logger) *HTTPSeriesProvider {
	if l == nil {
		l = applogger.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.New(0, 1)
	}
	return &HTTPSeriesProvider{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limiter: limiter,
		l:       l,
	}
}

// Download fetches [from, to] for symbol. Unknown symbols and empty payloads are ErrNoData.
func (p *HTTPSeriesProvider) Download(ctx context.Context, symbol, source string, from, to time.Time) (models.TimeSeries, error) {
	if err := p.limiter.Wait(ctx, source); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", source, err)
	}

	opts := &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    p.baseURL + "/series",
		QueryParams: map[string][]string{
			"symbol": {symbol},
			"source": {source},
			"from":   {from.Format(time.DateOnly)},
			"to":     {to.Format(time.DateOnly)},
		},
	}
	if p.apiKey != "" {
		opts.Headers = map[string]string{"X-API-Key": p.apiKey}
	}

	start := time.Now()
	var body seriesResponse
	if err := p.client.SendAndParse(ctx, opts, &body); err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, domrepo.ErrNoData
		}
		return nil, fmt.Errorf("download %s from %s: %w", symbol, source, err)
	}
	if len(body.Points) == 0 {
		return nil, domrepo.ErrNoData
	}

	p.l.Debug("series downloaded",
		applogger.String("symbol", symbol),
		applogger.String("source", source),
		applogger.Int("points", len(body.Points)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return body.Points, nil
}
