package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/p-blackswan/cleaniit/internal/activity"
	"github.com/p-blackswan/cleaniit/internal/config"
	"github.com/p-blackswan/cleaniit/internal/database"
	cerrors "github.com/p-blackswan/cleaniit/internal/errors"
	"github.com/p-blackswan/cleaniit/internal/killer"
	"github.com/p-blackswan/cleaniit/internal/metrics"
	"github.com/p-blackswan/cleaniit/internal/policy"
	"github.com/p-blackswan/cleaniit/internal/reaper"
	"github.com/p-blackswan/cleaniit/internal/report"
)

const (
	outputLog  = "log"
	outputYAML = "yaml"
)

// sessionSource yields the idle-in-transaction sessions for one run.
type sessionSource interface {
	Fetch(ctx context.Context) ([]activity.SessionRecord, error)
	Close()
}

// deps are the seams between the command and the outside world.
type deps struct {
	loadConfig func() (*config.Config, error)
	connect    func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sessionSource, error)
	newKiller  func(argv []string, logger zerolog.Logger) (killer.Killer, error)
	stdout     io.Writer
	stderr     io.Writer
	now        func() time.Time
}

func defaultDeps() deps {
	return deps{
		loadConfig: loadConfig,
		connect:    connectPostgres,
		newKiller: func(argv []string, logger zerolog.Logger) (killer.Killer, error) {
			return killer.NewCommandKiller(argv, logger)
		},
		stdout: os.Stdout,
		stderr: os.Stderr,
		now:    time.Now,
	}
}

// pgSource owns the single connection and its link watcher.
type pgSource struct {
	conn       *pgx.Conn
	stopWatch  context.CancelFunc
	closeGrace time.Duration
}

func connectPostgres(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sessionSource, error) {
	logger.Debug().Str("dsn", cfg.RedactedDSN()).Msg("connecting to database")
	conn, err := database.Open(ctx, database.Options{
		DSN:            cfg.DSN(),
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	watchCtx, stop := context.WithCancel(context.Background())
	database.Watch(watchCtx, conn.PgConn(), logger.With().Str("component", "database").Logger())
	return &pgSource{conn: conn, stopWatch: stop, closeGrace: 5 * time.Second}, nil
}

func (s *pgSource) Fetch(ctx context.Context) ([]activity.SessionRecord, error) {
	return activity.Fetch(ctx, s.conn)
}

func (s *pgSource) Close() {
	s.stopWatch()
	ctx, cancel := context.WithTimeout(context.Background(), s.closeGrace)
	defer cancel()
	_ = s.conn.Close(ctx)
}

type rootFlags struct {
	logLevel        string
	debug           bool
	kill            bool
	minAge          string
	max             string
	maxCount        string
	dryRun          bool
	output          string
	metricsTextfile string
}

func newRootCmd(d deps) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "cleaniit",
		Short: "Clean up idle in transaction processes",
		Long: `Report PostgreSQL sessions that have been "idle in transaction" for longer than
a minimum age, oldest first, and optionally kill them.

Connection settings come from CLEANIIT_* environment variables
(CLEANIIT_DATABASE_URL, or CLEANIIT_DB_HOST / _PORT / _USER / _PASSWORD / _NAME).

Examples:
  cleaniit                          # report sessions idle for 2h or more
  cleaniit -a 30 -c 10              # report the 10 oldest idle for 30m or more
  cleaniit --kill --max 3           # kill the 3 oldest
  cleaniit --kill --dry-run         # show what would be killed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), d, f)
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return cerrors.Wrap(cerrors.ErrInvalidArgument, err, "parsing flags")
	})
	cmd.SetGlobalNormalizationFunc(func(fs *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "loglevel" {
			name = "log-level"
		}
		return pflag.NormalizedName(name)
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.logLevel, "log-level", "", "log `level` (trace, debug, info, warn, error); overrides CLEANIIT_LOG_LEVEL")
	pf.BoolVarP(&f.debug, "debug", "d", false, "log every field of each reported session")

	fl := cmd.Flags()
	fl.BoolVarP(&f.kill, "kill", "k", false, "kill idle in transaction sessions (default: report only)")
	fl.StringVarP(&f.minAge, "min-age", "a", "", "minimum idle age in `minutes` since the last state change (default 120)")
	fl.StringVarP(&f.max, "max", "m", "", "kill at most `N` sessions (default: no limit)")
	fl.StringVarP(&f.maxCount, "max-cnt", "c", "", "report at most `N` sessions (default: no limit)")
	fl.BoolVarP(&f.dryRun, "dry-run", "n", false, "log the kills that would happen without running them")
	fl.StringVarP(&f.output, "output", "o", outputLog, "output `format`: log or yaml (yaml prints a report on stdout)")
	fl.StringVar(&f.metricsTextfile, "metrics-textfile", "", "write run metrics to this node-exporter textfile `path`; overrides CLEANIIT_METRICS_TEXTFILE")

	cmd.AddCommand(newCheckCmd(d, &f))
	return cmd
}

func runSweep(ctx context.Context, d deps, f rootFlags) error {
	started := d.now()

	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}
	pol, err := policy.Resolve(policy.Options{
		MinAge:   f.minAge,
		Max:      f.max,
		MaxCount: f.maxCount,
		Kill:     f.kill,
		DryRun:   f.dryRun,
		Debug:    f.debug,
	})
	if err != nil {
		return err
	}
	if f.output != outputLog && f.output != outputYAML {
		return cerrors.Invalid("--output must be %q or %q, got %q", outputLog, outputYAML, f.output)
	}

	logOut := d.stdout
	if f.output == outputYAML {
		logOut = d.stderr
	}
	logger, err := setupLogger(cfg, f.logLevel, f.debug, logOut)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Logger()

	k, err := d.newKiller(cfg.KillCommand, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Int("min_age_minutes", pol.MinAgeMinutes()).
		Str("display_cap", pol.DisplayCap.String()).
		Str("kill_cap", pol.KillCap.String()).
		Bool("kill_enabled", pol.KillEnabled).
		Bool("dry_run", pol.DryRun).
		Msg("starting idle in transaction sweep")

	src, err := d.connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	records, err := src.Fetch(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	res, err := reaper.New(pol, k, logger, reaper.WithMetrics(m), reaper.WithClock(d.now)).Process(ctx, records)
	if err != nil {
		return err
	}

	finished := d.now()
	m.Finish(started, finished)

	textfile := cfg.MetricsTextfile
	if f.metricsTextfile != "" {
		textfile = f.metricsTextfile
	}
	if textfile != "" {
		if err := m.WriteTextfile(textfile); err != nil {
			logger.Warn().Err(err).Str("path", textfile).Msg("failed to write metrics textfile")
		}
	}

	if f.output == outputYAML {
		rep := report.New(runID, pol, finished)
		rep.Fetched = res.Fetched
		rep.Considered = res.Considered
		rep.Killed = res.Killed
		for _, o := range res.Outcomes {
			rep.Add(o.Record, o.Age, o.Killed)
		}
		if err := rep.Write(d.stdout); err != nil {
			return err
		}
	}
	return nil
}
