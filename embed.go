package elt

import "embed"

// MigrationsFS contains the SQL schema migrations for both stores, under
// migrations/postgres and migrations/clickhouse.
//
//go:embed migrations
var MigrationsFS embed.FS
