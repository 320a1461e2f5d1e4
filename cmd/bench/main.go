// README: Bench runner against a live parking API; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	BaseURL        string
	GateToken      string
	DSN            string
	RedisAddr      string
	TrafficKey     string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
	StormCategory  string
}

var errChecksFailed = errors.New("bench checks failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd, _ := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *viper.Viper) {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "bench",
		Short:         "Run gate, archive and mirror checks against a running park-api",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.String("base-url", "http://localhost:8080", "API base URL")
	fs.String("gate-token", "", "Bearer token for entry/exit")
	fs.String("dsn", "", "Postgres DSN (empty skips archive checks)")
	fs.String("redis", "", "Redis address (empty skips mirror checks)")
	fs.String("traffic-key", "park:traffic:hourly", "Redis hash holding hourly traffic")
	fs.String("migration", "migrations/0001_init.sql", "Migration SQL path")
	fs.Bool("apply-migration", false, "Apply migration SQL before tests")
	fs.Bool("strict", false, "Fail on skipped tests")
	fs.Duration("timeout", 60*time.Second, "Total timeout")
	fs.Int("concurrency", 20, "Concurrent gates")
	fs.Duration("duration", 10*time.Second, "Duration for perf tests")
	fs.String("storm-category", "disabled", "Category the gate storm competes for")

	// Flags are the keys; PARK_BENCH_<FLAG> overrides the default when the
	// flag is not given.
	v.SetEnvPrefix("park_bench")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)
	// The server's own variables work too, so one env file drives both.
	_ = v.BindEnv("gate-token", "PARK_BENCH_GATE_TOKEN", "PARK_HTTP_GATE_TOKEN")
	_ = v.BindEnv("dsn", "PARK_BENCH_DSN", "PARK_DB_DSN")
	_ = v.BindEnv("redis", "PARK_BENCH_REDIS", "PARK_REDIS_ADDR")
	_ = v.BindEnv("traffic-key", "PARK_BENCH_TRAFFIC_KEY", "PARK_TRAFFIC_KEY")
	return cmd, v
}

func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseURL:        v.GetString("base-url"),
		GateToken:      v.GetString("gate-token"),
		DSN:            v.GetString("dsn"),
		RedisAddr:      v.GetString("redis"),
		TrafficKey:     v.GetString("traffic-key"),
		MigrationPath:  v.GetString("migration"),
		ApplyMigration: v.GetBool("apply-migration"),
		Strict:         v.GetBool("strict"),
		Timeout:        v.GetDuration("timeout"),
		Concurrency:    v.GetInt("concurrency"),
		Duration:       v.GetDuration("duration"),
		StormCategory:  v.GetString("storm-category"),
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Concurrency <= 0 {
		return Config{}, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.Timeout <= 0 || cfg.Duration <= 0 {
		return Config{}, errors.New("timeout and duration must be positive")
	}
	return cfg, nil
}

func run(parent context.Context, cfg Config) error {
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		return errChecksFailed
	}
	return nil
}
