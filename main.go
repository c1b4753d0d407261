package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"

	"placement/config"
	"placement/metrics"
	"placement/solver"
	"placement/store"
)

const maxBody = 32 << 20

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	stdr.SetVerbosity(cfg.Verbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))

	var db *sql.DB
	if cfg.PGConn != "" {
		db, err = sql.Open("postgres", cfg.PGConn)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		if err := store.Migrate(context.Background(), db); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		logger.Info("Connected to database")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	logger.Info("Listening", "addr", cfg.Addr, "rounds", db != nil)
	log.Fatal(http.ListenAndServe(cfg.Addr, routes(cfg, db, reg, logger)))
}

func routes(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, logger logr.Logger) http.Handler {
	m := metrics.New(reg)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/solve_va", handleSolve(cfg, m, config.VariantPhased))
	mux.HandleFunc("POST /api/solve_vb", handleSolve(cfg, m, config.VariantGlobal))
	mux.HandleFunc("POST /api/solve_strict", handleSolve(cfg, m, config.VariantStrict))
	mux.HandleFunc("POST /api/rounds/{roundID}/solve", handleRoundSolve(db, cfg, m))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		fmt.Fprintln(w, "ok")
	})
	return withRequestLogger(logger, withCORS(cfg.CORS.Origins, mux))
}

func withRequestLogger(logger logr.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logger.WithValues("request", uuid.NewString(), "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logr.NewContext(r.Context(), l)))
	})
}

func withCORS(origins []string, next http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || slices.Contains(origins, origin)) {
			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleSolve(cfg *config.Config, m *metrics.Collectors, variant string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logr.FromContextOrDiscard(r.Context()).WithValues("variant", variant)
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			m.Request(variant, http.StatusRequestEntityTooLarge)
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		p, err := solver.ParseRequest(body)
		if err != nil {
			logger.Info("Rejected request", "error", err.Error())
			m.Request(variant, http.StatusBadRequest)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, ok := solve(w, r, cfg, m, variant, p)
		if !ok {
			return
		}
		m.Request(variant, writeJSON(w, r, res))
	}
}

func handleRoundSolve(db *sql.DB, cfg *config.Config, m *metrics.Collectors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variant := r.URL.Query().Get("variant")
		if variant == "" {
			variant = config.VariantPhased
		}
		if !slices.Contains(config.Variants, variant) {
			http.Error(w, "variant must be one of "+strings.Join(config.Variants, ", "), http.StatusBadRequest)
			return
		}
		if db == nil {
			m.Request(variant, http.StatusServiceUnavailable)
			http.Error(w, "rounds are unavailable without a database", http.StatusServiceUnavailable)
			return
		}

		var body struct {
			Groups []string `json:"groups"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&body); err != nil && err != io.EOF {
				m.Request(variant, http.StatusBadRequest)
				http.Error(w, "groups must be a list of ids", http.StatusBadRequest)
				return
			}
		}

		roundID := r.PathValue("roundID")
		p, err := store.Load(r.Context(), db, roundID, body.Groups)
		if err != nil {
			code := http.StatusInternalServerError
			switch {
			case eris.Is(err, store.ErrRoundNotFound):
				code = http.StatusNotFound
			case eris.Is(err, solver.ErrInvalidInput):
				code = http.StatusBadRequest
			case eris.Is(err, store.ErrNoSchema):
				code = http.StatusServiceUnavailable
			}
			logr.FromContextOrDiscard(r.Context()).Error(err, "Failed to load round", "round", roundID)
			m.Request(variant, code)
			http.Error(w, err.Error(), code)
			return
		}

		res, ok := solve(w, r, cfg, m, variant, p)
		if !ok {
			return
		}
		m.Request(variant, writeJSON(w, r, map[string]any{
			"round":       roundID,
			"variant":     variant,
			"assignments": res,
			"summary":     solver.Summarize(p, res),
			"score":       solver.Score(p, res, cfg.ScoreTable()),
		}))
	}
}

// writeJSON encodes v before writing any header, so an encoding failure
// becomes a 500 instead of an empty 200. It returns the status sent.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "Failed to encode response")
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(data, '\n'))
	return http.StatusOK
}

func solve(w http.ResponseWriter, r *http.Request, cfg *config.Config, m *metrics.Collectors, variant string, p *solver.Problem) (*solver.Result, bool) {
	opts, err := cfg.Options(variant)
	if err != nil {
		m.Request(variant, http.StatusInternalServerError)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	opts.Recorder = m
	res, err := solver.Solve(r.Context(), p, opts)
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "Solve failed", "variant", variant)
		m.Request(variant, http.StatusInternalServerError)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return res, true
}
