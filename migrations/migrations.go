// Package migrations embeds the SQL files applied by internal/migrate.
package migrations

import "embed"

// FS holds every *.sql migration file, consumed by goose.SetBaseFS.
//
//go:embed *.sql
var FS embed.FS
