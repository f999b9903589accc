// Package report renders a run's outcome as a YAML document.
package report

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/cleaniit/internal/activity"
	"github.com/p-blackswan/cleaniit/internal/policy"
)

// Session is one considered record as it appears in the report.
type Session struct {
	ProcessID   int32     `yaml:"pid"`
	DatabaseID  uint32    `yaml:"database_id"`
	AgeMinutes  int       `yaml:"age_minutes"`
	StateChange time.Time `yaml:"state_change"`
	Killed      bool      `yaml:"killed"`
	Query       string    `yaml:"query,omitempty"`
}

// PolicySummary echoes the effective policy.
type PolicySummary struct {
	MinAgeMinutes int          `yaml:"min_age_minutes"`
	DisplayCap    policy.Limit `yaml:"display_cap"`
	KillCap       policy.Limit `yaml:"kill_cap"`
	KillEnabled   bool         `yaml:"kill_enabled"`
	DryRun        bool         `yaml:"dry_run"`
}

// Report is the whole document.
type Report struct {
	RunID       string        `yaml:"run_id"`
	GeneratedAt time.Time     `yaml:"generated_at"`
	Policy      PolicySummary `yaml:"policy"`
	Fetched     int           `yaml:"fetched"`
	Considered  int           `yaml:"considered"`
	Killed      int           `yaml:"killed"`
	Sessions    []Session     `yaml:"sessions"`
}

// New starts an empty report for a run.
func New(runID string, p policy.Policy, generatedAt time.Time) *Report {
	return &Report{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Policy: PolicySummary{
			MinAgeMinutes: p.MinAgeMinutes(),
			DisplayCap:    p.DisplayCap,
			KillCap:       p.KillCap,
			KillEnabled:   p.KillEnabled,
			DryRun:        p.DryRun,
		},
		Sessions: []Session{},
	}
}

// Add appends a considered record.
func (r *Report) Add(rec activity.SessionRecord, age time.Duration, killed bool) {
	r.Sessions = append(r.Sessions, Session{
		ProcessID:   rec.ProcessID,
		DatabaseID:  rec.DatabaseID,
		AgeMinutes:  int(age / time.Minute),
		StateChange: rec.StateChange,
		Killed:      killed,
		Query:       rec.QueryText,
	})
}

// Write encodes the report to w.
func (r *Report) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}
