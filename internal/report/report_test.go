package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/cleaniit/internal/activity"
	"github.com/p-blackswan/cleaniit/internal/policy"
)

func TestReport_Write(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := policy.Default()
	p.KillEnabled = true
	p.KillCap = policy.Max(1)

	r := New("run-1", p, now)
	r.Fetched = 5
	r.Considered = 2
	r.Killed = 1
	r.Add(activity.SessionRecord{ProcessID: 42, DatabaseID: 16384, QueryText: "SELECT 1", StateChange: now.Add(-200 * time.Minute)}, 200*time.Minute, true)
	r.Add(activity.SessionRecord{ProcessID: 43, DatabaseID: 16384, StateChange: now.Add(-150 * time.Minute)}, 150*time.Minute+30*time.Second, false)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	out := buf.String()

	assert.Contains(t, out, "run_id: run-1")
	assert.Contains(t, out, "display_cap: unlimited")
	assert.Contains(t, out, "kill_cap: 1")
	assert.Contains(t, out, "min_age_minutes: 120")

	var decoded struct {
		Fetched  int `yaml:"fetched"`
		Killed   int `yaml:"killed"`
		Sessions []struct {
			PID        int    `yaml:"pid"`
			AgeMinutes int    `yaml:"age_minutes"`
			Killed     bool   `yaml:"killed"`
			Query      string `yaml:"query"`
		} `yaml:"sessions"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 5, decoded.Fetched)
	assert.Equal(t, 1, decoded.Killed)
	require.Len(t, decoded.Sessions, 2)
	assert.Equal(t, 42, decoded.Sessions[0].PID)
	assert.True(t, decoded.Sessions[0].Killed)
	assert.Equal(t, "SELECT 1", decoded.Sessions[0].Query)
	assert.Equal(t, 150, decoded.Sessions[1].AgeMinutes)
	assert.Equal(t, "", decoded.Sessions[1].Query)
}

func TestReport_EmptySessions(t *testing.T) {
	r := New("run-2", policy.Default(), time.Unix(0, 0).UTC())
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.Contains(t, buf.String(), "sessions: []")
}
