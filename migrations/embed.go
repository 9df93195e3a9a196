// Package migrations embeds the SQL migration files so that callers of
// Initialize carry their own schema management without requiring files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
