// Package migrations embeds the SQL migration files for the run-history
// ledger.
package migrations

import "embed"

// FS holds the embedded migration files, applied by goose at startup.
//
//go:embed *.sql
var FS embed.FS
