package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
)

func TestNewServerExposesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg).IncSuccess("escrow-release-sweep")

	srv := NewServer(":0", reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tixmarket_cron_job_success_total{job="escrow-release-sweep"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeDisabledWithoutAddr(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "metrics-test", Output: io.Discard})
	Serve(context.Background(), nil, logg)
	Serve(context.Background(), NewServer("", prometheus.NewRegistry()), logg)
}
