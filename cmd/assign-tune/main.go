package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/goccy/go-json"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"placement/gen"
	"placement/solver"
)

const variantBaseline = "baseline"

type runResult struct {
	score    int
	summary  solver.Summary
	solution string
	util     map[string]float64
	elapsed  time.Duration
}

// solutionKey is a stable rendering of an assignment, used to count how
// many distinct placements a set of runs produced.
func solutionKey(r *solver.Result) string {
	var buf strings.Builder
	for _, a := range r.Assignments {
		buf.WriteString(a.Group)
		buf.WriteByte('=')
		if a.Assigned {
			buf.WriteString(a.House)
		}
		buf.WriteByte(';')
	}
	return buf.String()
}

// utilization returns committed members over hard capacity, keyed by house
// id or by size class when classes are known.
func utilization(p *solver.Problem, r *solver.Result, class map[string]string) map[string]float64 {
	used, capacity := map[string]int{}, map[string]int{}
	totals := solver.HouseTotals(p, r)
	for _, h := range p.Houses {
		key := h.ID
		if c, ok := class[h.ID]; ok {
			key = c
		}
		used[key] += totals[h.ID]
		capacity[key] += h.Max
	}
	out := make(map[string]float64, len(used))
	for k, u := range used {
		if capacity[k] > 0 {
			out[k] = float64(u) / float64(capacity[k])
		}
	}
	return out
}

func printStats(label string, results []runResult, runs int) {
	if len(results) == 0 {
		fmt.Printf("--- %s ---\n  no results\n\n", label)
		return
	}
	var totalTime time.Duration
	var ranks [solver.MaxRanked]int
	var sub, unlisted, unassigned int
	scores := map[int]int{}
	solutions := map[string]int{}
	util := map[string]float64{}
	minScore, maxScore, sumScore := results[0].score, results[0].score, 0

	for _, r := range results {
		totalTime += r.elapsed
		scores[r.score]++
		solutions[r.solution]++
		sumScore += r.score
		minScore = min(minScore, r.score)
		maxScore = max(maxScore, r.score)
		for i, n := range r.summary.Ranks {
			ranks[i] += n
		}
		sub += r.summary.Sub
		unlisted += r.summary.Unlisted
		unassigned += r.summary.Unassigned
		for k, v := range r.util {
			util[k] += v
		}
	}

	n := float64(len(results))
	fmt.Printf("--- %s ---\n", label)
	fmt.Printf("  avg time: %v\n", totalTime/time.Duration(len(results)))
	fmt.Printf("  score: min %d, avg %.1f, max %d\n", minScore, float64(sumScore)/n, maxScore)

	fmt.Printf("  placements (avg per run):\n")
	for i, c := range ranks {
		fmt.Printf("    rank %d: %.1f\n", i+1, float64(c)/n)
	}
	fmt.Printf("    sub: %.1f\n", float64(sub)/n)
	fmt.Printf("    unlisted: %.1f\n", float64(unlisted)/n)
	fmt.Printf("    unassigned: %.1f\n", float64(unassigned)/n)

	keys := make([]string, 0, len(util))
	for k := range util {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("  utilization:\n")
	for _, k := range keys {
		fmt.Printf("    %s: %.0f%%\n", k, util[k]/n*100)
	}

	if len(scores) > 1 {
		type scoreCount struct{ score, count int }
		var list []scoreCount
		for s, c := range scores {
			list = append(list, scoreCount{s, c})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].score > list[j].score })
		topN := min(5, len(list))
		fmt.Printf("  top %d scores: ", topN)
		for i := range topN {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("%d (%d/%d)", list[i].score, list[i].count, runs)
		}
		fmt.Println()
	}
	fmt.Printf("  unique solutions seen: %d\n", len(solutions))
	fmt.Println()
}

func main() {
	input := pflag.String("input", "", "JSON or YAML request file; generated problems are used when empty")
	groups := pflag.Int("generate", gen.DefaultParams.Groups, "number of groups per generated problem")
	runs := pflag.Int("runs", 5, "runs per variant; every run of a generated problem uses a new seed")
	variants := pflag.String("variants", "va,vb,strict,baseline", "comma-separated variants: va, vb, strict, baseline")
	batches := pflag.String("batch", strconv.Itoa(solver.DefaultBatchSize), "comma-separated phased batch sizes, 0 disables batching")
	globalBatch := pflag.Int("global-batch", solver.DefaultGlobalBatchSize, "global mode batch size")
	timeLimit := pflag.Duration("time-limit", solver.DefaultTimeLimit, "limit per integer program solve")
	overflow := pflag.Bool("overflow", false, "allow penalized capacity overflow")
	overflowCap := pflag.Int("overflow-cap", 0, "default overflow allowance per house")
	dump := pflag.Bool("dump", false, "dump the problem and the first result of each variant")
	verbosity := pflag.IntP("verbosity", "v", 0, "solver log verbosity")
	pflag.Parse()

	stdr.SetVerbosity(*verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	var fixed *solver.Problem
	if *input != "" {
		p, err := readProblem(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading %s: %v\n", *input, err)
			os.Exit(1)
		}
		fixed = p
		fmt.Printf("Input: %s\n", *input)
	} else {
		fmt.Printf("Generated: %d groups per run\n", *groups)
	}
	fmt.Printf("Runs per config: %d\n\n", *runs)

	problem := func(run int) (*solver.Problem, map[string]string) {
		if fixed != nil {
			return fixed, nil
		}
		params := gen.DefaultParams
		params.Groups = *groups
		s, err := gen.Generate(rand.New(rand.NewSource(int64(run*31337))), params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "generating problem: %v\n", err)
			os.Exit(1)
		}
		return s.Problem, s.Class
	}

	if *dump {
		p, _ := problem(0)
		spew.Dump(p)
	}

	ctx := context.Background()
	for _, variant := range strings.Split(*variants, ",") {
		variant = strings.TrimSpace(variant)
		sizes := []int{0}
		if variant == "va" || variant == "strict" {
			sizes = parseIntList(*batches)
		}
		for _, size := range sizes {
			var opts solver.Options
			switch variant {
			case "va":
				opts = solver.PhasedOptions()
				opts.BatchSize = size
			case "vb":
				opts = solver.GlobalOptions()
				opts.BatchSize = *globalBatch
			case "strict":
				opts = solver.StrictOptions()
				opts.BatchSize = size
			case variantBaseline:
			default:
				fmt.Fprintf(os.Stderr, "unknown variant %q\n", variant)
				os.Exit(1)
			}
			opts.TimeLimit = *timeLimit
			opts.Overflow = *overflow
			opts.OverflowCap = *overflowCap

			var results []runResult
			for run := range *runs {
				p, class := problem(run)
				start := time.Now()
				var res *solver.Result
				if variant == variantBaseline {
					res = solver.Baseline(p)
				} else {
					var err error
					res, err = solver.Solve(logrContext(ctx, logger, variant, run), p, opts)
					if err != nil {
						fmt.Fprintf(os.Stderr, "%s run %d: %v\n", variant, run, err)
						os.Exit(1)
					}
				}
				elapsed := time.Since(start)
				if *dump && run == 0 {
					spew.Dump(res.Map())
				}
				results = append(results, runResult{
					score:    solver.Score(p, res, solver.DefaultScores),
					summary:  solver.Summarize(p, res),
					solution: solutionKey(res),
					util:     utilization(p, res, class),
					elapsed:  elapsed,
				})
			}

			label := variant
			if variant == "va" || variant == "strict" {
				label = fmt.Sprintf("%s batch=%d", variant, size)
			}
			if variant == "vb" {
				label = fmt.Sprintf("%s batch=%d", variant, *globalBatch)
			}
			printStats(label, results, *runs)
		}
	}
}

func logrContext(ctx context.Context, logger logr.Logger, variant string, run int) context.Context {
	return logr.NewContext(ctx, logger.WithValues("variant", variant, "run", run))
}

// readProblem loads a request body from JSON or, by extension, YAML.
func readProblem(path string) (*solver.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if data, err = json.Marshal(stringKeys(doc)); err != nil {
			return nil, err
		}
	}
	return solver.ParseRequest(data)
}

// stringKeys rewrites YAML mappings with non-string keys, such as numeric
// house ids, into JSON-encodable maps.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	default:
		return v
	}
}

func parseIntList(s string) []int {
	parts := strings.Split(s, ",")
	var result []int
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err == nil && !slices.Contains(result, v) {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return []int{0}
	}
	return result
}
