package access_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jamestelfer/cfaccess-gate/internal/access"
	"github.com/jamestelfer/cfaccess-gate/internal/config"
	"github.com/jamestelfer/cfaccess-gate/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDecisionMetrics(t *testing.T) {
	testhelpers.SetupLogger(t)
	td := newTeamDomain(t)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mw, err := access.Middleware(
		config.AccessConfig{TeamDomain: td.URL(), Audience: testAudience, CertsCacheTTLSeconds: 300},
		access.WithMeterProvider(mp),
	)
	require.NoError(t, err)

	handler := mw(okHandler())

	serve := func(token string) {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			request.Header.Set(access.TokenHeader, token)
		}
		handler.ServeHTTP(httptest.NewRecorder(), request)
	}

	valid := sign(t, td.key, td.validClaims())
	serve(valid)
	serve(valid)
	serve("")
	serve("not-a-jwt")

	misconfigured, err := access.Middleware(config.AccessConfig{}, access.WithMeterProvider(mp))
	require.NoError(t, err)
	misconfigured(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, map[string]int64{
		"admitted":      2,
		"missing":       1,
		"invalid":       1,
		"misconfigured": 1,
	}, decisionCounts(t, reader))
}

func decisionCounts(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "access.gate.decisions" {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "decisions should be an int64 sum")

			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				counts[outcome.AsString()] += dp.Value
			}
		}
	}

	return counts
}
