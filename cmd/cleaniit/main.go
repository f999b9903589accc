// Command cleaniit reports PostgreSQL sessions stuck "idle in transaction"
// and optionally kills the oldest of them.
//
// Usage:
//
//	CLEANIIT_DB_HOST=db01 CLEANIIT_DB_PASSWORD=... cleaniit --min-age 90 --kill --max 3
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/cleaniit/internal/config"
	cerrors "github.com/p-blackswan/cleaniit/internal/errors"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(defaultDeps()).ExecuteContext(ctx)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("cleaniit failed")
		os.Exit(cerrors.ExitCode(err))
	}
}

// setupLogger builds the process logger the way the platform services do:
// JSON with timestamps, console output in development. levelFlag, when
// non-empty, overrides the configured level.
func setupLogger(cfg *config.Config, levelFlag string, debug bool, out io.Writer) (zerolog.Logger, error) {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	raw := cfg.LogLevel
	if levelFlag != "" {
		raw = levelFlag
	} else if debug {
		raw = zerolog.LevelDebugValue
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.Nop(), cerrors.Invalid("unknown log level %q", raw)
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = logger
	return logger, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrInvalidArgument, err, fmt.Sprintf("reading %s_* environment", config.Prefix))
	}
	return cfg, nil
}
