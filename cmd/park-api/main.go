// README: Entry point; loads config, wires the facility with its archive, mirror and metrics, serves HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"park/internal/config"
	httptransport "park/internal/http"
	"park/internal/infra"
	"park/internal/logging"
	"park/internal/metrics"
	"park/internal/modules/facility"
	"park/internal/modules/receipt"
	"park/internal/modules/spot"
	"park/internal/modules/traffic"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "park-api",
	Short: "Parking facility occupancy and billing service",
	Long: `park-api admits and releases vehicles at the facility gates, bills
closed sessions per started hour and keeps per-plate receipts and hourly
entry traffic.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the configured spot inventory and rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printLayout(cmd, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("PARK_CONFIG"), "config file (default ./park.yaml if present)")
	rootCmd.AddCommand(serveCmd, layoutCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	v, err := config.New(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logging.Logger()

	layout, err := cfg.Facility.Layout()
	if err != nil {
		return err
	}
	rates, err := cfg.Facility.RateTable()
	if err != nil {
		return err
	}
	loc, err := cfg.Facility.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}
	observers := facility.Observers{collector}

	// Background writers outlive the signal: they are cancelled only after the
	// server has drained, so late exits still reach the archive.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer bgCancel()
	bg, bgCtx := errgroup.WithContext(bgCtx)

	var archive *receipt.Archiver
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer dbPool.Close()
		archive = receipt.NewArchiver(receipt.NewPGStore(dbPool), receipt.ArchiverConfig{
			Buffer:   cfg.Archive.Buffer,
			Timeout:  cfg.Archive.Timeout,
			MaxTries: cfg.Archive.MaxTries,
		})
		observers = append(observers, archive)
		bg.Go(func() error { return archive.Run(bgCtx) })
	} else {
		log.Info().Msg("db.dsn empty, receipt archive disabled")
	}

	f, err := facility.New(facility.Config{
		Layout:    layout,
		Rates:     rates,
		MinCharge: cfg.Facility.MinChargeMoney(),
		Location:  loc,
		Clock:     facility.RealClock{},
		Observer:  observers,
	})
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		mirror := traffic.NewRedisMirror(redisClient, cfg.Traffic.Key)
		if snap, err := mirror.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("traffic mirror load failed, starting from zero")
		} else {
			f.SeedTraffic(snap)
		}
		bg.Go(func() error {
			return mirror.RunMirror(bgCtx, cfg.Traffic.FlushInterval, cfg.Traffic.FlushTimeout, func() traffic.Snapshot {
				return f.TrafficSnapshot(bgCtx)
			})
		})
	} else {
		log.Info().Msg("redis.addr empty, traffic mirror disabled")
	}

	deps := httptransport.RouterDeps{
		Facility:  f,
		Gatherer:  reg,
		GateToken: cfg.HTTP.GateToken,
	}
	if archive != nil {
		deps.Archive = archive
	}
	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.NewRouter(deps))
	log.Info().
		Int("spots", len(layout)).
		Bool("gate_auth", cfg.HTTP.GateToken != "").
		Msg("park-api started")

	// A background writer failing takes the server down with it.
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	go func() {
		select {
		case <-bgCtx.Done():
			srvCancel()
		case <-srvCtx.Done():
		}
	}()
	srvErr := server.Run(srvCtx)

	bgCancel()
	bgErr := bg.Wait()
	if err := errors.Join(srvErr, bgErr); err != nil {
		log.Error().Err(err).Msg("park-api stopped")
		return err
	}
	log.Info().Msg("park-api stopped")
	return nil
}

func printLayout(cmd *cobra.Command, cfg config.Config) error {
	layout, err := cfg.Facility.Layout()
	if err != nil {
		return err
	}
	rates, err := cfg.Facility.RateTable()
	if err != nil {
		return err
	}
	counts := make(map[spot.Category]int)
	for _, s := range layout {
		counts[s.Category]++
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSPOTS\tRATE/HOUR")
	for _, c := range spot.Categories {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c, counts[c], rates[c])
	}
	fmt.Fprintf(w, "min charge\t\t%s\n", cfg.Facility.MinChargeMoney())
	return w.Flush()
}
