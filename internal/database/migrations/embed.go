package migrations

import "embed"

// FS contains the per-dialect SQL migrations.
//
//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var FS embed.FS
