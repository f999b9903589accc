// Package database opens the single short-lived PostgreSQL session cleaniit uses.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	cerrors "github.com/p-blackswan/cleaniit/internal/errors"
)

// ApplicationName is reported to the server so the tool's own session is recognizable.
const ApplicationName = "cleaniit"

// Options controls how the connection is established.
type Options struct {
	DSN            string
	ConnectTimeout time.Duration
}

// Open connects to the database and verifies the link with a ping.
// The returned connection is not safe for concurrent use.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(opts.DSN)
	if err != nil {
		// The parse error may echo the DSN, credentials included.
		return nil, cerrors.Wrap(cerrors.ErrConnection, nil, "parsing connection string")
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnectTimeout = opts.ConnectTimeout
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = ApplicationName
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrConnection, err, fmt.Sprintf("connecting to %s:%d", cfg.Host, cfg.Port))
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(context.Background())
		return nil, cerrors.Wrap(cerrors.ErrConnection, err, "pinging database")
	}

	logger.Debug().
		Str("host", cfg.Host).
		Uint16("port", cfg.Port).
		Str("database", cfg.Database).
		Str("user", cfg.User).
		Msg("database connection established")
	return conn, nil
}

// CloseNotifier reports when a connection's resources have been released.
// *pgconn.PgConn satisfies it.
type CloseNotifier interface {
	CleanupDone() chan struct{}
}

// Watch starts a detached task that logs when the link goes away before ctx is cancelled.
// Nothing in the main flow waits on it; the returned channel closes when the task exits.
func Watch(ctx context.Context, n CloseNotifier, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
		case <-n.CleanupDone():
			if ctx.Err() == nil {
				logger.Error().Msg("connection error: database link closed")
			}
		}
	}()
	return done
}
