package testhelpers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger sends global and context log output to the test log for the
// duration of the test.
func SetupLogger(t *testing.T) {
	t.Helper()

	globalLogger := log.Logger
	defaultContextLogger := zerolog.DefaultContextLogger
	t.Cleanup(func() {
		log.Logger = globalLogger
		zerolog.DefaultContextLogger = defaultContextLogger
	})

	log.Logger = log.
		Output(zerolog.NewTestWriter(t)).
		Level(zerolog.DebugLevel)

	// zerolog.Ctx is silent unless a default is configured
	zerolog.DefaultContextLogger = &log.Logger
}

// ContextWithLogHook returns a context whose logger invokes hook for every
// event, in addition to writing to the test log.
func ContextWithLogHook(ctx context.Context, t *testing.T, hook zerolog.Hook) context.Context {
	t.Helper()

	logger := zerolog.New(zerolog.NewTestWriter(t)).
		Level(zerolog.DebugLevel).
		Hook(hook)

	return logger.WithContext(ctx)
}
