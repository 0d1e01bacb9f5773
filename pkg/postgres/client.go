package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	elt "github.com/Laxman2008/elt-pipeline-project"
)

// Config holds the staging database connection settings.
type Config struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("postgres host is required")
	}
	if c.Port == "" {
		return errors.New("postgres port is required")
	}
	if c.Database == "" {
		return errors.New("postgres database is required")
	}
	if c.Username == "" {
		return errors.New("postgres username is required")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.Username, c.Password, c.Host, c.Port, c.Database,
	)
}

// NewPool connects a pgx pool to the staging database. The initial ping is
// retried with exponential backoff so the pipeline survives the database
// coming up slightly after it in a compose deployment.
func NewPool(ctx context.Context, log *slog.Logger, cfg *Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	}
	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(ping, backoff.WithContext(exp, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Info("postgres client initialized", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return pool, nil
}

// RunMigrations executes the embedded staging migrations in filename order.
// The staging schema uses CREATE TABLE IF NOT EXISTS throughout, so this is
// safe to run on every start.
func RunMigrations(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool) error {
	log.Info("running postgres migrations")

	entries, err := elt.MigrationsFS.ReadDir("migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []fs.DirEntry
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry)
		}
	}
	sort.Slice(migrationFiles, func(i, j int) bool {
		return migrationFiles[i].Name() < migrationFiles[j].Name()
	})

	for _, entry := range migrationFiles {
		content, err := elt.MigrationsFS.ReadFile("migrations/postgres/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		log.Info("executing migration", "file", entry.Name())
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}

	log.Info("postgres migrations completed", "count", len(migrationFiles))
	return nil
}
