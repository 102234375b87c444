package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jamestelfer/cfaccess-gate/internal/access"
	"github.com/jamestelfer/cfaccess-gate/internal/audit"
	"github.com/jamestelfer/cfaccess-gate/internal/config"
	"github.com/jamestelfer/cfaccess-gate/internal/observe"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"
)

// gatedMux routes requests only after they have passed the middleware chain,
// so paths without a registered route are gated as well.
type gatedMux struct {
	*http.ServeMux
	chain http.Handler
}

func newGatedMux(middleware alice.Chain) *gatedMux {
	mux := http.NewServeMux()
	return &gatedMux{
		ServeMux: mux,
		chain:    middleware.Then(mux),
	}
}

func (g *gatedMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.chain.ServeHTTP(w, r)
}

func configureServerRoutes(cfg config.Config) (http.Handler, error) {
	gate, err := access.Middleware(cfg.Access)
	if err != nil {
		return nil, fmt.Errorf("access gate configuration failed: %w", err)
	}

	// Requests to this service carry no meaningful body. The limit is not
	// configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	gated := newGatedMux(alice.New(requestLimiter, audit.Middleware(), gate))

	// wrap the mux such that HTTP telemetry covers rejected requests too
	mux := observe.NewMux(gated, cfg.Observe.ServiceName)

	mux.Handle("GET /message", handleGetMessage())

	return mux, nil
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func main() {
	configureLogging()

	logBuildInfo(log.Logger)

	err := launchServer(log.Logger.WithContext(context.Background()))
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	// the certs fetches made by the gate use the default client
	http.DefaultTransport = outboundTransport(cfg)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	handler, err := configureServerRoutes(cfg)
	if err != nil {
		return errors.Join(
			fmt.Errorf("server routing configuration failed: %w", err),
			shutdownTelemetry(ctx),
		)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10, // 20 KB
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serveHTTP(ctx, cfg, server, shutdownHook{name: "telemetry", stop: shutdownTelemetry})
}

// outboundTransport bounds the connections used for certs fetches and
// instruments them when telemetry is enabled.
func outboundTransport(cfg config.Config) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.Server.OutgoingHttpMaxIdleConns
	transport.MaxConnsPerHost = cfg.Server.OutgoingHttpMaxConnsPerHost

	return observe.HttpTransport(transport, cfg.Observe)
}
