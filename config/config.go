// Package config loads server and tuning settings. Flags win over the
// environment, which wins over the optional YAML file.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"placement/milp"
	"placement/solver"
)

const envPrefix = "ASSIGN"

// Variant names accepted by Options.
const (
	VariantPhased = "va"
	VariantGlobal = "vb"
	VariantStrict = "strict"
)

var Variants = []string{VariantPhased, VariantGlobal, VariantStrict}

type Overflow struct {
	Enabled bool    `mapstructure:"enabled"`
	Cap     int     `mapstructure:"cap"`
	Penalty float64 `mapstructure:"penalty"`
}

type Scores struct {
	Ranks   []int `mapstructure:"ranks"`
	Sub     int   `mapstructure:"sub"`
	Penalty int   `mapstructure:"penalty"`
}

type CORS struct {
	Origins []string `mapstructure:"origins"`
}

type Config struct {
	Addr      string `mapstructure:"addr"`
	PGConn    string `mapstructure:"pgconn"`
	Verbosity int    `mapstructure:"verbosity"`

	TimeLimit       time.Duration `mapstructure:"time_limit"`
	NodeLimit       int           `mapstructure:"node_limit"`
	BatchSize       int           `mapstructure:"batch_size"`
	GlobalBatchSize int           `mapstructure:"global_batch_size"`

	Overflow Overflow `mapstructure:"overflow"`
	Scores   Scores   `mapstructure:"scores"`
	CORS     CORS     `mapstructure:"cors"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		TimeLimit:       solver.DefaultTimeLimit,
		NodeLimit:       milp.DefaultBranchAndBound.NodeLimit,
		BatchSize:       solver.DefaultBatchSize,
		GlobalBatchSize: solver.DefaultGlobalBatchSize,
		Overflow: Overflow{
			Penalty: solver.DefaultOverflowPenalty,
		},
		Scores: Scores{
			Ranks:   append([]int(nil), solver.DefaultScores.Ranks...),
			Sub:     solver.DefaultScores.Sub,
			Penalty: solver.DefaultScores.Penalty,
		},
		CORS: CORS{Origins: []string{"*"}},
	}
}

// Load parses args (without the program name) and resolves the final
// configuration. pflag.ErrHelp is returned unwrapped for -h.
func Load(name string, args []string) (*Config, error) {
	d := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configFile := fs.String("config", "", "YAML configuration file")
	fs.String("addr", d.Addr, "listen address")
	fs.String("pgconn", "", "PostgreSQL connection string; enables the rounds endpoint")
	fs.IntP("verbosity", "v", d.Verbosity, "log verbosity")
	fs.Duration("time-limit", d.TimeLimit, "wall-clock limit per integer program solve")
	fs.Int("node-limit", d.NodeLimit, "branch-and-bound node limit per solve")
	fs.Int("batch-size", d.BatchSize, "phased batch size, 0 disables batching")
	fs.Int("global-batch-size", d.GlobalBatchSize, "global mode batch size")
	fs.Bool("overflow", d.Overflow.Enabled, "allow penalized capacity overflow")
	fs.Int("overflow-cap", d.Overflow.Cap, "default overflow allowance per house")
	fs.StringSlice("cors-origin", d.CORS.Origins, "allowed CORS origins")
	if err := fs.Parse(args); err != nil {
		if eris.Is(err, pflag.ErrHelp) {
			return nil, pflag.ErrHelp
		}
		return nil, eris.Wrap(err, "parsing flags")
	}

	v := viper.New()
	setDefaults(v, d)
	for key, flag := range map[string]string{
		"addr":              "addr",
		"pgconn":            "pgconn",
		"verbosity":         "verbosity",
		"time_limit":        "time-limit",
		"node_limit":        "node-limit",
		"batch_size":        "batch-size",
		"global_batch_size": "global-batch-size",
		"overflow.enabled":  "overflow",
		"overflow.cap":      "overflow-cap",
		"cors.origins":      "cors-origin",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, eris.Wrapf(err, "binding flag %s", flag)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("pgconn", envPrefix+"_PGCONN", "PGCONN"); err != nil {
		return nil, eris.Wrap(err, "binding PGCONN")
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "reading %s", *configFile)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, eris.Wrap(err, "decoding configuration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("addr", d.Addr)
	v.SetDefault("pgconn", d.PGConn)
	v.SetDefault("verbosity", d.Verbosity)
	v.SetDefault("time_limit", d.TimeLimit)
	v.SetDefault("node_limit", d.NodeLimit)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("global_batch_size", d.GlobalBatchSize)
	v.SetDefault("overflow.enabled", d.Overflow.Enabled)
	v.SetDefault("overflow.cap", d.Overflow.Cap)
	v.SetDefault("overflow.penalty", d.Overflow.Penalty)
	v.SetDefault("scores.ranks", d.Scores.Ranks)
	v.SetDefault("scores.sub", d.Scores.Sub)
	v.SetDefault("scores.penalty", d.Scores.Penalty)
	v.SetDefault("cors.origins", d.CORS.Origins)
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return eris.New("addr is required")
	}
	if c.TimeLimit <= 0 {
		return eris.Errorf("time_limit must be positive, got %v", c.TimeLimit)
	}
	if c.NodeLimit <= 0 {
		return eris.Errorf("node_limit must be positive, got %d", c.NodeLimit)
	}
	if c.BatchSize < 0 || c.GlobalBatchSize < 0 {
		return eris.Errorf("batch sizes must be >= 0, got %d and %d", c.BatchSize, c.GlobalBatchSize)
	}
	for _, variant := range Variants {
		opts, err := c.Options(variant)
		if err != nil {
			return err
		}
		if err := opts.Validate(); err != nil {
			return eris.Wrapf(err, "variant %s", variant)
		}
	}
	return nil
}

func (c Config) ScoreTable() solver.ScoreTable {
	return solver.ScoreTable{
		Ranks:   append([]int(nil), c.Scores.Ranks...),
		Sub:     c.Scores.Sub,
		Penalty: c.Scores.Penalty,
	}
}

// Options builds the solver options of a variant. The recorder is left
// unset.
func (c Config) Options(variant string) (solver.Options, error) {
	var opts solver.Options
	switch variant {
	case VariantPhased:
		opts = solver.PhasedOptions()
		opts.BatchSize = c.BatchSize
	case VariantGlobal:
		opts = solver.GlobalOptions()
		opts.BatchSize = c.GlobalBatchSize
	case VariantStrict:
		opts = solver.StrictOptions()
		opts.BatchSize = c.BatchSize
	default:
		return solver.Options{}, eris.Errorf("unknown variant %q", variant)
	}
	opts.Scores = c.ScoreTable()
	opts.TimeLimit = c.TimeLimit
	opts.Overflow = c.Overflow.Enabled
	opts.OverflowCap = c.Overflow.Cap
	opts.OverflowPenalty = c.Overflow.Penalty
	opts.Backend = &milp.BranchAndBound{NodeLimit: c.NodeLimit, Tol: milp.DefaultBranchAndBound.Tol}
	return opts, nil
}
