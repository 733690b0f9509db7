package migrations

import "embed"

// PostgresFS embeds the PostgreSQL migrations in golang-migrate naming
// ({version}_{name}.up.sql / .down.sql).
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
