package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement/milp"
	"placement/solver"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("test", nil)
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.Addr, c.Addr)
	assert.Equal(t, solver.DefaultTimeLimit, c.TimeLimit)
	assert.Equal(t, solver.DefaultBatchSize, c.BatchSize)
	assert.Equal(t, solver.DefaultScores.Ranks, c.Scores.Ranks)
	assert.Equal(t, []string{"*"}, c.CORS.Origins)
	assert.False(t, c.Overflow.Enabled)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "placement.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
time_limit: 10s
batch_size: 50
overflow:
  enabled: true
  cap: 4
scores:
  ranks: [10, 8, 6]
  sub: 2
  penalty: -5
cors:
  origins: ["https://a.example"]
`), 0o600))

	t.Setenv("ASSIGN_BATCH_SIZE", "25")
	t.Setenv("PGCONN", "postgres://localhost/placement")

	c, err := Load("test", []string{"--config", path, "--batch-size", "5", "-v", "2"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.Addr)
	assert.Equal(t, 10*time.Second, c.TimeLimit)
	assert.Equal(t, 5, c.BatchSize, "flag beats env")
	assert.Equal(t, 2, c.Verbosity)
	assert.Equal(t, "postgres://localhost/placement", c.PGConn)
	assert.Equal(t, Overflow{Enabled: true, Cap: 4, Penalty: solver.DefaultOverflowPenalty}, c.Overflow)
	assert.Equal(t, Scores{Ranks: []int{10, 8, 6}, Sub: 2, Penalty: -5}, c.Scores)
	assert.Equal(t, []string{"https://a.example"}, c.CORS.Origins)

	c, err = Load("test", []string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 25, c.BatchSize, "env beats file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "unknown flag", args: []string{"--nope"}},
		{name: "zero time limit", args: []string{"--time-limit", "0s"}},
		{name: "negative batch", args: []string{"--batch-size", "-1"}},
		{name: "bad scores", env: map[string]string{"ASSIGN_SCORES_SUB": "500"}},
		{name: "missing file", args: []string{"--config", "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("test", tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoad_Help(t *testing.T) {
	_, err := Load("test", []string{"-h"})
	assert.Equal(t, pflag.ErrHelp, err)
}

func TestOptions(t *testing.T) {
	c := Default()
	c.BatchSize = 30
	c.NodeLimit = 99
	c.Overflow = Overflow{Enabled: true, Cap: 3, Penalty: 50}

	opts, err := c.Options(VariantPhased)
	require.NoError(t, err)
	assert.Equal(t, solver.ModePhased, opts.Mode)
	assert.Equal(t, 30, opts.BatchSize)
	assert.True(t, opts.Overflow)
	assert.Equal(t, 3, opts.OverflowCap)
	assert.Equal(t, 50.0, opts.OverflowPenalty)
	assert.Equal(t, &milp.BranchAndBound{NodeLimit: 99, Tol: milp.DefaultBranchAndBound.Tol}, opts.Backend)

	opts, err = c.Options(VariantGlobal)
	require.NoError(t, err)
	assert.Equal(t, solver.ModeGlobal, opts.Mode)
	assert.Equal(t, solver.DefaultGlobalBatchSize, opts.BatchSize)

	opts, err = c.Options(VariantStrict)
	require.NoError(t, err)
	assert.True(t, opts.StrictFallback)
	assert.Equal(t, solver.CandidatesAll, opts.Candidates)

	_, err = c.Options("vc")
	assert.Error(t, err)
}
