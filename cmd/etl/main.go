package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	_ "net/http/pprof"

	"github.com/Laxman2008/elt-pipeline-project/pkg/analytics"
	"github.com/Laxman2008/elt-pipeline-project/pkg/clickhouse"
	"github.com/Laxman2008/elt-pipeline-project/pkg/pipeline"
	"github.com/Laxman2008/elt-pipeline-project/pkg/postgres"
	"github.com/Laxman2008/elt-pipeline-project/pkg/staging"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultConfigPath = "/opt/etl/config.yml"
	defaultInputCSV   = "/data/green_tripdata_sample.csv"
	defaultInterval   = time.Hour
	defaultRetryDelay = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Best effort: a .env file is a local-dev convenience.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	if cfg.EnablePprof {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		pipeline.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Staging store (Postgres)
	pool, err := postgres.NewPool(ctx, log, &postgres.Config{
		Host:     cfg.PGHost,
		Port:     cfg.PGPort,
		Database: cfg.PGDatabase,
		Username: cfg.PGUser,
		Password: cfg.PGPassword,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, log, pool); err != nil {
		return err
	}

	// Analytics store (ClickHouse). The session database stays "default";
	// the analytics database is created by the migrations and addressed
	// with qualified names.
	chDB, err := clickhouse.NewClient(ctx, log, net.JoinHostPort(cfg.CHHost, cfg.CHPort), "default", cfg.CHUser, cfg.CHPassword)
	if err != nil {
		return err
	}
	defer func() {
		if err := chDB.Close(); err != nil {
			log.Error("failed to close ClickHouse client", "error", err)
		}
	}()

	conn, err := chDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}

	if err := clickhouse.RunMigrations(ctx, log, conn); err != nil {
		return err
	}

	settings, err := pipeline.LoadSettings(cfg.ConfigPath)
	if err != nil {
		return err
	}
	hmacKey, ok := settings.HMACKey()
	if !ok {
		log.Warn("anonymization key env var not set, using insecure default key", "env", settings.Anonymization.HMACKeyEnv)
	}

	transformer, err := pipeline.NewTransformer(settings, hmacKey)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	analyticsStore := analytics.NewStore(log, clock, conn)

	p, err := pipeline.New(&pipeline.Config{
		Logger:      log,
		Clock:       clock,
		Staging:     staging.NewStore(log, pool),
		Analytics:   analyticsStore,
		Transformer: transformer,
		InputCSV:    cfg.InputCSV,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	switch cfg.Mode {
	case "ingest":
		_, err = p.Ingest(ctx, pipeline.NewRunID())
		return err
	case "transform":
		_, err = p.TransformLoad(ctx, pipeline.NewRunID())
		return err
	case "full":
		return p.Run(ctx)
	case "clear":
		return p.Clear(ctx)
	case "stats":
		return printStats(ctx, analyticsStore, cfg.StatsLimit)
	case "serve":
		runner, err := pipeline.NewRunner(&pipeline.RunnerConfig{
			Logger:     log,
			Clock:      clock,
			Pipeline:   p,
			Interval:   cfg.Interval,
			RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			return fmt.Errorf("failed to create runner: %w", err)
		}
		return runner.Run(ctx)
	default:
		return fmt.Errorf("unknown mode %q (expected ingest, transform, full, clear, stats or serve)", cfg.Mode)
	}
}

func printStats(ctx context.Context, store *analytics.Store, limit int) error {
	metrics, err := store.RecentMetrics(ctx, limit)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Run ID", "Run Time (UTC)", "Stage", "Rows", "Notes"})
	for _, m := range metrics {
		table.Append([]string{
			m.RunID,
			m.RunTime.UTC().Format("2006-01-02 15:04:05"),
			m.Stage,
			fmt.Sprintf("%d", m.RowsProcessed),
			m.Notes,
		})
	}
	table.Render()
	return nil
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	EnablePprof bool
	MetricsAddr string

	Mode       string
	ConfigPath string
	InputCSV   string
	Interval   time.Duration
	RetryDelay time.Duration
	StatsLimit int

	PGHost     string
	PGPort     string
	PGDatabase string
	PGUser     string
	PGPassword string

	CHHost     string
	CHPort     string
	CHUser     string
	CHPassword string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func loadConfig() (Config, error) {
	var cfg Config

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	flag.BoolVar(&cfg.EnablePprof, "enable-pprof", false, "enable pprof server")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", ""), "address to listen on for prometheus metrics (env: METRICS_ADDR; empty disables)")

	flag.StringVar(&cfg.Mode, "mode", "full", "pipeline mode: ingest, transform, full, clear, stats or serve")
	flag.StringVar(&cfg.ConfigPath, "config", getenv("ETL_CONFIG", defaultConfigPath), "path to the pipeline settings file (env: ETL_CONFIG)")
	flag.StringVar(&cfg.InputCSV, "input-csv", getenv("INPUT_CSV", defaultInputCSV), "path to the trip-record input CSV (env: INPUT_CSV)")
	flag.DurationVar(&cfg.Interval, "interval", defaultInterval, "interval between runs in serve mode")
	flag.DurationVar(&cfg.RetryDelay, "retry-delay", defaultRetryDelay, "delay before retrying a failed run in serve mode (0 disables)")
	flag.IntVar(&cfg.StatsLimit, "stats-limit", 20, "number of audit rows shown in stats mode")

	flag.StringVar(&cfg.PGHost, "pg-host", getenv("PG_HOST", "postgres"), "staging postgres host (env: PG_HOST)")
	flag.StringVar(&cfg.PGPort, "pg-port", getenv("PG_PORT", "5432"), "staging postgres port (env: PG_PORT)")
	flag.StringVar(&cfg.PGDatabase, "pg-db", getenv("PG_DB", "staging_db"), "staging postgres database (env: PG_DB)")
	flag.StringVar(&cfg.PGUser, "pg-user", getenv("PG_USER", "staging"), "staging postgres user (env: PG_USER)")
	flag.StringVar(&cfg.PGPassword, "pg-password", getenv("PG_PASSWORD", "stagingpwd"), "staging postgres password (env: PG_PASSWORD)")

	flag.StringVar(&cfg.CHHost, "ch-host", getenv("CH_HOST", "clickhouse"), "clickhouse host (env: CH_HOST)")
	flag.StringVar(&cfg.CHPort, "ch-port", getenv("CH_PORT", "9000"), "clickhouse native port (env: CH_PORT)")
	flag.StringVar(&cfg.CHUser, "ch-user", getenv("CH_USER", "default"), "clickhouse user (env: CH_USER)")
	flag.StringVar(&cfg.CHPassword, "ch-password", getenv("CH_PASSWORD", ""), "clickhouse password (env: CH_PASSWORD)")

	flag.Parse()

	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("interval must be greater than 0")
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
