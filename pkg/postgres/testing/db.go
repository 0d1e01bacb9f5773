package postgrestesting

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Laxman2008/elt-pipeline-project/pkg/postgres"
)

const containerImage = "postgres:16-alpine"

// NewPool starts a throwaway Postgres container, connects a pool to it and
// applies the staging migrations. Cleanup happens via t.Cleanup.
func NewPool(t testing.TB) *pgxpool.Pool {
	ctx := t.Context()

	container, err := tcpg.Run(ctx, containerImage,
		tcpg.WithDatabase("staging_db"),
		tcpg.WithUsername("staging"),
		tcpg.WithPassword("stagingpwd"),
		tcpg.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		// t.Context() is already cancelled by the time cleanups run.
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	log := slog.Default()
	pool, err := postgres.NewPool(ctx, log, &postgres.Config{
		Host:     host,
		Port:     port.Port(),
		Database: "staging_db",
		Username: "staging",
		Password: "stagingpwd",
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.RunMigrations(ctx, log, pool))

	return pool
}
