package observe

import (
	"context"
	"net/http"
	"testing"

	"github.com/jamestelfer/cfaccess-gate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/resource"
)

func Test_ResourceMerge(t *testing.T) {
	// Ensure that schema incompatibility on OTEL upgrades is detected before
	// merge
	_, err := resourceWithServiceName(
		resource.Default(),
		"serviceName")

	require.NoError(t, err)
}

func TestConfigure_Disabled(t *testing.T) {
	shutdown, err := Configure(context.Background(), config.ObserveConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestConfigure_Stdout(t *testing.T) {
	shutdown, err := Configure(context.Background(), config.ObserveConfig{
		Enabled:                   true,
		MetricsEnabled:            true,
		Type:                      "stdout",
		ServiceName:               "cfaccess-gate-test",
		TraceBatchTimeoutSeconds:  1,
		MetricReadIntervalSeconds: 60,
	})
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
	// a second shutdown has nothing left to stop
	assert.NoError(t, shutdown(context.Background()))
}

func TestHttpTransport(t *testing.T) {
	base := &http.Transport{}

	cases := []struct {
		name    string
		cfg     config.ObserveConfig
		wrapped bool
	}{
		{name: "telemetry disabled", cfg: config.ObserveConfig{Enabled: false, HttpTransportEnabled: true}},
		{name: "transport disabled", cfg: config.ObserveConfig{Enabled: true, HttpTransportEnabled: false}},
		{name: "enabled", cfg: config.ObserveConfig{Enabled: true, HttpTransportEnabled: true}, wrapped: true},
		{name: "enabled with connection trace", cfg: config.ObserveConfig{Enabled: true, HttpTransportEnabled: true, HttpConnectionTraceEnabled: true}, wrapped: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := HttpTransport(base, tc.cfg)
			if tc.wrapped {
				assert.NotSame(t, base, rt)
			} else {
				assert.Same(t, base, rt)
			}
		})
	}
}
