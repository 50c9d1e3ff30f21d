// Package migrations embeds the SQLite schema of the messaging store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
