package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Access  AccessConfig
	Server  ServerConfig
	Observe ObserveConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHttpMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHttpMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// AccessConfig describes the Cloudflare Access application that protects this
// service.
//
// The team domain and audience are deliberately not marked as required: a
// missing value is reported on every request by the gate rather than
// preventing startup.
type AccessConfig struct {
	// TeamDomain is the base URL of the Access tenant, e.g.
	// https://<team>.cloudflareaccess.com. Tokens must carry it as their issuer.
	TeamDomain string `env:"CF_ACCESS_TEAM_DOMAIN"`
	// Audience is the application AUD tag.
	Audience string `env:"CF_ACCESS_AUD"`

	CertsCacheTTLSeconds int `env:"CF_ACCESS_CERTS_CACHE_TTL_SECS, default=300"`
	// CertsRefreshCooldownSeconds limits how often a token that fails
	// verification can force the cached key set to be fetched again.
	CertsRefreshCooldownSeconds int `env:"CF_ACCESS_CERTS_REFRESH_COOLDOWN_SECS, default=30"`
	ClockSkewSeconds            int `env:"CF_ACCESS_CLOCK_SKEW_SECS, default=0"`
}

// Complete reports whether both values needed to verify a token are present.
func (c AccessConfig) Complete() bool {
	return c.TeamDomain != "" && c.Audience != ""
}

type ObserveConfig struct {
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=cfaccess-gate"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HttpTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HttpConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (cfg Config, err error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith processes the configuration using the supplied lookuper, allowing
// tests to provide the environment explicitly.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (cfg Config, err error) {
	err = envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	})
	return
}
