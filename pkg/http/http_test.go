package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndParseDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"AAPL"}`))
	}))
	defer srv.Close()

	var out struct {
		Symbol string `json:"symbol"`
	}
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		Headers:     map[string]string{"X-API-Key": "k"},
		QueryParams: map[string][]string{"symbol": {"AAPL"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", out.Symbol)
}

func TestSendAndParseReturnsStatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithRetry(3, time.Millisecond))
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	// 4xx other than 429 is final
	assert.EqualValues(t, 1, calls.Load())
}

func TestSendAndParseRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`"ok"`))
	}))
	defer srv.Close()

	var out string
	c := NewClient(WithRetry(2, time.Millisecond))
	require.NoError(t, c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &out))
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 3, calls.Load())
}

func TestSendAndParseGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithRetry(1, time.Millisecond))
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Retryable())
	assert.EqualValues(t, 2, calls.Load())
}

type jobBody struct {
	Symbols []string `json:"symbols" validate:"required,min=1"`
	TopN    int      `json:"top_n" default:"40" validate:"lte=500"`
}

func TestReadAndValidateRequest(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"symbols":["SPY"]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	var ok jobBody
	assert.Nil(t, ReadAndValidateRequest(c, &ok))
	assert.Equal(t, 40, ok.TopN)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"symbols":[],"top_n":900}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, httptest.NewRecorder())
	var bad jobBody
	errs := ReadAndValidateRequest(c, &bad)
	require.Len(t, errs, 2)
	assert.Equal(t, "symbols", errs[0].Field)
	assert.Equal(t, "ERR_MIN", errs[0].Code)
	assert.Equal(t, "top_n", errs[1].Field)
	assert.Equal(t, "top_n must be less than or equal to 500", errs[1].Message)
}

func TestReadAndValidateRequestUsesQueryNames(t *testing.T) {
	type query struct {
		Side string `query:"side" default:"positive" validate:"oneof=positive negative"`
	}
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?side=up", nil), httptest.NewRecorder())

	var q query
	errs := ReadAndValidateRequest(c, &q)
	require.Len(t, errs, 1)
	assert.Equal(t, "side", errs[0].Field)
	assert.Equal(t, "side must be one of: positive, negative", errs[0].Message)
}

func TestAppErrorResponseUsesStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, NotFoundError("no rankings")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestAppErrorResponseHidesPlainErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, errors.New("dsn=secret")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestAppErrorKeepsCauseOutOfBody(t *testing.T) {
	err := UnavailableError("store down").WithError(errors.New("dial tcp"))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(err))
	assert.EqualError(t, err, "store down: dial tcp")

	e := echo.New()
	rec := httptest.NewRecorder()
	require.NoError(t, AppErrorResponse(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), err))
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
}

func TestServerRoutesAndCORS(t *testing.T) {
	s := NewServer(pingHandler{}, WithCORSOrigins("https://dash.example"), WithMetricsPath(""))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set(echo.HeaderOrigin, "https://dash.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
