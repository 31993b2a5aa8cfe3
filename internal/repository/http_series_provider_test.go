package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "CorrPull/internal/domain/repository"
	pkghttp "CorrPull/pkg/http"
)

func newProviderServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-01-01", r.URL.Query().Get("from"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_, _ = w.Write([]byte(`{"symbol":"AAPL","points":[{"t":"2023-01-02T00:00:00Z","v":1.5},{"t":"2023-01-03T00:00:00Z","v":2}]}`))
		case "EMPTY":
			_, _ = w.Write([]byte(`{"symbol":"EMPTY","points":[]}`))
		case "FAIL":
			http.Error(w, "upstream", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestHTTPSeriesProviderDownload(t *testing.T) {
	srv := newProviderServer(t)
	defer srv.Close()
	p := NewHTTPSeriesProvider(pkghttp.NewClient(), srv.URL+"/", "secret", nil, nil)

	s, err := p.Download(context.Background(), "AAPL", "yahoo", day(0), day(30))
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, 1.5, s[0].Value)
	assert.Equal(t, day(1), s[0].Time)
}

func TestHTTPSeriesProviderNoData(t *testing.T) {
	srv := newProviderServer(t)
	defer srv.Close()
	p := NewHTTPSeriesProvider(pkghttp.NewClient(), srv.URL, "secret", nil, nil)

	for _, sym := range []string{"UNKNOWN", "EMPTY"} {
		_, err := p.Download(context.Background(), sym, "yahoo", day(0), day(30))
		assert.ErrorIs(t, err, domrepo.ErrNoData, sym)
	}
}

func TestHTTPSeriesProviderUpstreamErrorIsNotNoData(t *testing.T) {
	srv := newProviderServer(t)
	defer srv.Close()
	p := NewHTTPSeriesProvider(pkghttp.NewClient(), srv.URL, "secret", nil, nil)

	_, err := p.Download(context.Background(), "FAIL", "yahoo", day(0), day(30))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domrepo.ErrNoData)
}
