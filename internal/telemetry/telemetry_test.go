package telemetry

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsObserveRequest(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(reg)
	require.NoError(t, err)

	m.ObserveRequest(http.MethodGet, "/v1/groups", http.StatusOK, 40*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/v1/groups", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/v1/admin/locations", http.StatusCreated, time.Millisecond)

	count := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodGet, "200"))
	require.Equal(t, float64(2), count)
	count = testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodPost, "201"))
	require.Equal(t, float64(1), count)
}

func TestHTTPMetricsDoubleRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewHTTPMetrics(reg)
	require.NoError(t, err)
	_, err = NewHTTPMetrics(reg)
	require.Error(t, err)
}
