// Package reaper walks the fetched idle-in-transaction sessions once, oldest
// first, reporting those past the minimum age and killing up to the kill cap.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/cleaniit/internal/activity"
	"github.com/p-blackswan/cleaniit/internal/killer"
	"github.com/p-blackswan/cleaniit/internal/metrics"
	"github.com/p-blackswan/cleaniit/internal/policy"
)

// Outcome is what happened to one considered session.
type Outcome struct {
	Record activity.SessionRecord
	Age    time.Duration
	Killed bool
}

// Result holds the counters of a pass.
type Result struct {
	Fetched    int
	Considered int
	Killed     int
	Outcomes   []Outcome
}

// Reaper applies a Policy to a sequence of sessions.
type Reaper struct {
	policy  policy.Policy
	killer  killer.Killer
	now     func() time.Time
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reaper) { r.metrics = m }
}

// New creates a Reaper. k is only invoked when the policy enables kills outside dry-run.
func New(p policy.Policy, k killer.Killer, logger zerolog.Logger, opts ...Option) *Reaper {
	r := &Reaper{
		policy: p,
		killer: k,
		now:    time.Now,
		logger: logger.With().Str("component", "reaper").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process makes a single pass over records, which must be ordered oldest state change first.
// Any kill failure aborts the pass; the returned Result still holds the counts reached so far.
func (r *Reaper) Process(ctx context.Context, records []activity.SessionRecord) (Result, error) {
	res := Result{Fetched: len(records)}
	p := r.policy

	if r.metrics != nil {
		r.metrics.SetFetched(len(records))
		if len(records) > 0 {
			r.metrics.SetOldestIdle(records[0].Age(r.now()))
		}
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			r.summary(res, zerolog.WarnLevel, "pass interrupted")
			return res, err
		}

		// Age is taken at evaluation time, not fetch time.
		age := rec.Age(r.now())
		if !p.Qualifies(age) {
			r.logger.Debug().
				Int32("pid", rec.ProcessID).
				Dur("age", age).
				Int("min_age_minutes", p.MinAgeMinutes()).
				Msg("session younger than minimum age, skipping")
			continue
		}

		if p.DisplayCap.Reached(res.Considered) {
			r.logger.Info().Str("display_cap", p.DisplayCap.String()).Msg("display cap reached")
			break
		}

		r.logRecord(rec, age)

		outcome := Outcome{Record: rec, Age: age}
		if p.KillEnabled && !p.KillCap.Reached(res.Killed) {
			r.logger.Info().
				Int32("pid", rec.ProcessID).
				Bool("dry_run", p.DryRun).
				Msg("killing idle in transaction session")
			if !p.DryRun {
				if err := r.killer.Kill(ctx, rec.ProcessID); err != nil {
					r.summary(res, zerolog.ErrorLevel, "pass aborted")
					return res, err
				}
			}
			res.Killed++
			outcome.Killed = true
			if r.metrics != nil {
				r.metrics.RecordKill(p.DryRun)
			}
		}

		res.Considered++
		res.Outcomes = append(res.Outcomes, outcome)
		if r.metrics != nil {
			r.metrics.RecordConsidered()
		}
	}

	r.summary(res, zerolog.InfoLevel, "idle in transaction sweep complete")
	return res, nil
}

func (r *Reaper) logRecord(rec activity.SessionRecord, age time.Duration) {
	ev := r.logger.Info().
		Int32("pid", rec.ProcessID).
		Int64("age_minutes", int64(age/time.Minute))
	if r.policy.Verbose {
		ev = ev.
			Uint32("database_id", rec.DatabaseID).
			Str("query", rec.QueryText).
			Time("backend_start", rec.BackendStart).
			Time("xact_start", rec.TransactionStart).
			Time("query_start", rec.QueryStart).
			Time("state_change", rec.StateChange).
			Dur("age", age)
	}
	ev.Msg("idle in transaction session")
}

func (r *Reaper) summary(res Result, level zerolog.Level, msg string) {
	r.logger.WithLevel(level).
		Int("fetched", res.Fetched).
		Int("considered", res.Considered).
		Int("killed", res.Killed).
		Bool("kill_enabled", r.policy.KillEnabled).
		Bool("dry_run", r.policy.DryRun).
		Msg(msg)
}
