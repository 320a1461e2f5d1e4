// README: Bench cases; gate round trips, error mapping, concurrent gate storm, archive and mirror checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

// archiveTables are the relations the receipt archive writes to.
var archiveTables = []string{"receipts"}

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	// run prefixes every plate so repeated runs against one server do not collide.
	run string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		run:   strings.ToUpper(uuid.NewString()[:6]),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) plate(name string) string {
	return r.run + "-" + name
}

func (r *Runner) cases() []TestCase {
	trip := r.plate("TRIP")
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "dsn not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: StatusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: StatusFail, Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				// No arguments, so pgx sends the whole file as one simple query.
				if _, err := r.db.Exec(ctx, string(sql)); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not configured"}
				}
				for _, t := range archiveTables {
					var exists bool
					err := r.db.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", "public."+t).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: StatusPass}
			},
		},
		httpCase("API: health", http.MethodGet, "/health", nil, http.StatusOK),

		httpCase("Gate: entry (regular)", http.MethodPost, "/api/entries", map[string]any{
			"plate": trip, "category": "regular",
		}, http.StatusCreated),
		httpCase("Gate: duplicate entry -> 409", http.MethodPost, "/api/entries", map[string]any{
			"plate": trip, "category": "regular",
		}, http.StatusConflict),
		httpCase("Gate: unknown category -> 400", http.MethodPost, "/api/entries", map[string]any{
			"plate": r.plate("BAD"), "category": "truck",
		}, http.StatusBadRequest),
		httpCase("Plate: active session", http.MethodGet, "/api/plates/"+trip+"/session", nil, http.StatusOK),
		httpCase("Plate: live quote", http.MethodGet, "/api/plates/"+trip+"/quote", nil, http.StatusOK),
		httpCase("Gate: exit", http.MethodPost, "/api/exits", map[string]any{"plate": trip}, http.StatusOK),
		httpCase("Gate: exit without session -> 404", http.MethodPost, "/api/exits", map[string]any{"plate": trip}, http.StatusNotFound),
		{
			Name: "Plate: history has one receipt",
			Run: func(ctx context.Context, r *Runner) Result {
				var body struct {
					Receipts []json.RawMessage `json:"receipts"`
				}
				status, latency, err := r.doJSON(ctx, http.MethodGet, "/api/plates/"+trip+"/receipts", nil, &body)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if status != http.StatusOK || len(body.Receipts) != 1 {
					return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d receipts=%d", status, len(body.Receipts))}
				}
				return Result{Status: StatusPass, Latency: latency}
			},
		},
		{
			Name: "Concurrency: gate storm never double-books",
			Run:  gateStorm,
		},
		httpCase("Debug: invariants hold", http.MethodGet, "/debug/invariants", nil, http.StatusOK),
		{
			Name: "Traffic: snapshot has 24 buckets",
			Run: func(ctx context.Context, r *Runner) Result {
				var body struct {
					Hours []uint64 `json:"hours"`
					Total uint64   `json:"total"`
				}
				status, latency, err := r.doJSON(ctx, http.MethodGet, "/api/traffic", nil, &body)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if status != http.StatusOK || len(body.Hours) != 24 || body.Total == 0 {
					return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d hours=%d total=%d", status, len(body.Hours), body.Total)}
				}
				return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("total=%d", body.Total)}
			},
		},
		{
			Name: "Archive: receipt persisted",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "db not configured"}
				}
				deadline := time.Now().Add(5 * time.Second)
				for {
					var n int
					err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM receipts WHERE plate=$1", trip).Scan(&n)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if n == 1 {
						return Result{Status: StatusPass}
					}
					if time.Now().After(deadline) {
						return Result{Status: StatusFail, Note: fmt.Sprintf("rows=%d", n)}
					}
					time.Sleep(200 * time.Millisecond)
				}
			},
		},
		{
			Name: "Mirror: traffic hash present",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				n, err := r.redis.HLen(ctx, r.cfg.TrafficKey).Result()
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				if n == 0 {
					return Result{Status: StatusSkip, Note: "not flushed yet"}
				}
				return Result{Status: StatusPass, Note: fmt.Sprintf("fields=%d", n)}
			},
		},
		{
			Name: "Perf: entry/exit throughput",
			Run:  perfLoad,
		},
	}
}

func httpCase(name, method, path string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			status, latency, err := r.doJSON(ctx, method, path, body, nil)
			if err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
			note := fmt.Sprintf("status=%d", status)
			if status == want {
				return Result{Status: StatusPass, Latency: latency, Note: note}
			}
			return Result{Status: StatusFail, Latency: latency, Note: note}
		},
	}
}

// doJSON sends body as JSON and decodes the response into out when non-nil.
func (r *Runner) doJSON(ctx context.Context, method, path string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.GateToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.GateToken)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
		return resp.StatusCode, latency, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func (r *Runner) freeSpots(ctx context.Context, category string) (int, error) {
	var body struct {
		Facility struct {
			Categories []struct {
				Category string `json:"category"`
				Free     int    `json:"free"`
			} `json:"categories"`
		} `json:"facility"`
	}
	if _, _, err := r.doJSON(ctx, http.MethodGet, "/api/status", nil, &body); err != nil {
		return 0, err
	}
	for _, c := range body.Facility.Categories {
		if c.Category == category {
			return c.Free, nil
		}
	}
	return 0, fmt.Errorf("category %q not in status", category)
}

// gateStorm sends Concurrency simultaneous entries for one category and checks
// that admissions never exceed the free spots, then exits every admitted plate.
func gateStorm(ctx context.Context, r *Runner) Result {
	free, err := r.freeSpots(ctx, r.cfg.StormCategory)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}

	var admitted, rejected atomic.Int64
	plates := make([]string, r.cfg.Concurrency)
	ok := make([]bool, r.cfg.Concurrency)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := range plates {
		plates[i] = r.plate(fmt.Sprintf("STORM%d", i))
		g.Go(func() error {
			status, _, err := r.doJSON(gctx, http.MethodPost, "/api/entries", map[string]any{
				"plate": plates[i], "category": r.cfg.StormCategory,
			}, nil)
			if err != nil {
				return err
			}
			switch status {
			case http.StatusCreated:
				admitted.Add(1)
				ok[i] = true
			case http.StatusConflict:
				rejected.Add(1)
			default:
				return fmt.Errorf("plate %s: status=%d", plates[i], status)
			}
			return nil
		})
	}
	err = g.Wait()
	latency := time.Since(start)

	for i, p := range plates {
		if ok[i] {
			_, _, _ = r.doJSON(ctx, http.MethodPost, "/api/exits", map[string]any{"plate": p}, nil)
		}
	}
	if err != nil {
		return Result{Status: StatusFail, Latency: latency, Note: err.Error()}
	}
	note := fmt.Sprintf("free=%d admitted=%d rejected=%d", free, admitted.Load(), rejected.Load())
	if admitted.Load() > int64(free) {
		return Result{Status: StatusFail, Latency: latency, Note: note}
	}
	return Result{Status: StatusPass, Latency: latency, Note: note}
}

func perfLoad(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		plate := r.plate(fmt.Sprintf("PERF%d", i))
		g.Go(func() error {
			for time.Now().Before(end) && gctx.Err() == nil {
				status, _, err := r.doJSON(gctx, http.MethodPost, "/api/entries", map[string]any{
					"plate": plate, "category": "regular",
				}, nil)
				if err != nil || status != http.StatusCreated {
					errCount.Add(1)
					continue
				}
				if status, _, err = r.doJSON(gctx, http.MethodPost, "/api/exits", map[string]any{"plate": plate}, nil); err != nil || status != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if count.Load() == 0 {
		return Result{Status: StatusFail, Note: "no round trips completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("round_trips/s=%.1f errors=%d", rps, errCount.Load())}
}
