// Package solver places capacity-bounded groups into houses according to
// their ranked preferences.
//
// A phased solve commits easy top choices greedily, hands the rest to an
// integer program and sends whatever the program could not place through a
// greedy fallback cascade. A global solve builds one program per batch.
// Commits are final in both modes: a group placed by an earlier phase is
// never moved by a later one.
package solver

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/rotisserie/eris"

	"placement/milp"
)

type Mode int

const (
	ModePhased Mode = iota
	ModeGlobal
)

func (m Mode) String() string {
	if m == ModeGlobal {
		return "global"
	}
	return "phased"
}

// Candidates selects which houses enter the integer program for a group.
type Candidates int

const (
	CandidatesRankedSub Candidates = iota
	CandidatesRanked
	CandidatesAll
)

const (
	DefaultTimeLimit       = 30 * time.Second
	DefaultBatchSize       = 200
	DefaultGlobalBatchSize = 200
	DefaultOverflowPenalty = 1000
)

type Options struct {
	Mode       Mode
	Scores     ScoreTable
	Candidates Candidates
	// StrictFallback runs a second, penalized program over sub-preference
	// and any-house candidates before the any-house greedy step.
	StrictFallback bool

	Overflow        bool
	OverflowCap     int
	OverflowPenalty float64

	BatchSize int
	TimeLimit time.Duration

	Backend  milp.Backend
	Recorder Recorder
}

func PhasedOptions() Options {
	return Options{
		Mode:            ModePhased,
		Scores:          DefaultScores,
		Candidates:      CandidatesRankedSub,
		OverflowPenalty: DefaultOverflowPenalty,
		BatchSize:       DefaultBatchSize,
		TimeLimit:       DefaultTimeLimit,
	}
}

func GlobalOptions() Options {
	o := PhasedOptions()
	o.Mode = ModeGlobal
	o.BatchSize = DefaultGlobalBatchSize
	return o
}

func StrictOptions() Options {
	o := PhasedOptions()
	o.Candidates = CandidatesAll
	o.StrictFallback = true
	return o
}

func (o Options) Validate() error {
	if err := o.Scores.Validate(); err != nil {
		return eris.Wrap(err, "scores")
	}
	if o.BatchSize < 0 {
		return eris.Errorf("batch size must be >= 0, got %d", o.BatchSize)
	}
	if o.TimeLimit < 0 {
		return eris.Errorf("time limit must be >= 0, got %v", o.TimeLimit)
	}
	if o.Overflow && o.OverflowCap < 0 {
		return eris.Errorf("overflow cap must be >= 0, got %d", o.OverflowCap)
	}
	if o.Overflow && o.OverflowPenalty <= 0 {
		return eris.Errorf("overflow penalty must be > 0, got %v", o.OverflowPenalty)
	}
	return nil
}

// Recorder observes a solve. Implementations must be safe for concurrent use
// when shared between requests.
type Recorder interface {
	Placed(phase Phase, n int)
	Solved(status milp.Status, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Placed(Phase, int) {}

func (nopRecorder) Solved(milp.Status, time.Duration) {}

type run struct {
	ctx    context.Context
	opts   Options
	p      *Problem
	l      *ledger
	logger logr.Logger
}

// Solve assigns every group of p to a house or leaves it explicitly
// unassigned. Solver failures are recovered; only invalid options are
// returned as errors.
func Solve(ctx context.Context, p *Problem, opts Options) (*Result, error) {
	if opts.Scores.Ranks == nil {
		opts.Scores = DefaultScores
	}
	if err := opts.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid options")
	}
	if opts.Backend == nil {
		opts.Backend = milp.NewBranchAndBound()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	s := &run{
		ctx:    ctx,
		opts:   opts,
		p:      p,
		l:      newLedger(p),
		logger: logr.FromContextOrDiscard(ctx).WithValues("mode", opts.Mode.String()),
	}

	start := time.Now()
	chunks := batches(p.Groups, opts.BatchSize)
	for i, batch := range chunks {
		s.logger.V(1).Info("Solving batch", "batch", i, "of", len(chunks), "groups", len(batch))
		switch opts.Mode {
		case ModeGlobal:
			s.global(batch)
		default:
			s.phased(batch)
		}
	}

	res := assemble(p, s.l)
	s.logger.Info("Placement completed",
		"groups", len(p.Groups),
		"houses", len(p.Houses),
		"unassigned", len(res.Unassigned()),
		"elapsed", time.Since(start))
	return res, nil
}

func (s *run) phased(batch []Group) {
	deferred := s.greedy(batch)
	remaining := s.optimize(deferred)
	s.fallback(remaining)
}

func (s *run) placed(phase Phase, n int) {
	if n > 0 {
		s.opts.Recorder.Placed(phase, n)
	}
}
