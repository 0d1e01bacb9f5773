package clickhousetesting

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/Laxman2008/elt-pipeline-project/pkg/clickhouse"
)

const containerImage = "clickhouse/clickhouse-server:latest"

// DB wraps a ClickHouse client backed by a throwaway container. The
// container and the client are torn down via t.Cleanup.
type DB struct {
	clickhouse.DB
	container *tcch.ClickHouseContainer
	t         testing.TB
}

func (db *DB) Close() {
	if err := db.DB.Close(); err != nil {
		db.t.Logf("failed to close ClickHouse: %v", err)
	}
}

// Conn returns a connection to the test database, failing the test on error.
func (db *DB) Conn() clickhouse.Connection {
	conn, err := db.DB.Conn(db.t.Context())
	require.NoError(db.t, err, "failed to get ClickHouse connection")
	return conn
}

// NewDB starts a single-node ClickHouse container and connects a client to
// it. Container start and first connection are retried a few times; the
// server may need a moment after start before it accepts native protocol
// connections.
func NewDB(t testing.TB) *DB {
	ctx := t.Context()

	var container *tcch.ClickHouseContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcch.Run(ctx,
			containerImage,
			tcch.WithDatabase("default"),
			tcch.WithUsername("default"),
			tcch.WithPassword("password"),
		)
		if err != nil {
			lastErr = err
			if isRetryableErr(err) && attempt < 3 {
				time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
				continue
			}
			require.NoError(t, err)
		}
		break
	}
	if container == nil {
		t.Fatalf("failed to start ClickHouse container after retries: %v", lastErr)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, nat.Port("9000/tcp"))
	require.NoError(t, err)

	addr := fmt.Sprintf("%s:%s", host, mappedPort.Port())

	log := slog.Default()
	var chDB clickhouse.DB
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		chDB, err = clickhouse.NewClient(ctx, log, addr, "default", "default", "password")
		if err != nil {
			if isRetryableErr(err) && attempt < 3 {
				time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
				continue
			}
			_ = container.Terminate(ctx)
			require.NoError(t, err)
		}
		break
	}

	db := &DB{
		DB:        chDB,
		container: container,
		t:         t,
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "handshake") ||
		strings.Contains(s, "packet") ||
		strings.Contains(s, "failed to ping") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "dial tcp")
}
