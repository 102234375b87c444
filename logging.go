package main

import (
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// configureLogging installs the process logger as both the global and the
// context default, so middleware logging via zerolog.Ctx reaches it.
func configureLogging() {
	// Loggers filter by their own level. Leaving the global level at the
	// minimum keeps the OpenTelemetry bridge free to log below it.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	if os.Getenv("ENV") == "development" {
		log.Logger = newLogger(true, os.Stdout)
	} else {
		log.Logger = newLogger(false, os.Stderr)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

// newLogger writes JSON at info level, or console output at debug level when
// developing locally.
func newLogger(development bool, out io.Writer) zerolog.Logger {
	if development {
		out = zerolog.ConsoleWriter{Out: out}
	}

	level := zerolog.InfoLevel
	if development {
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func logBuildInfo(logger zerolog.Logger) {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	logger.Info().
		Str("version", buildInfo.Main.Version).
		Fields(buildFields(buildInfo.Settings)).
		Msg("build information")
}

// buildFields keeps the VCS and toolchain settings of the build.
func buildFields(settings []debug.BuildSetting) map[string]any {
	fields := map[string]any{}
	for _, s := range settings {
		if strings.HasPrefix(s.Key, "vcs.") ||
			strings.HasPrefix(s.Key, "GO") ||
			s.Key == "CGO_ENABLED" {
			fields[s.Key] = s.Value
		}
	}

	return fields
}
