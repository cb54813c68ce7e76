// Package migrations embeds the per-tenant schema. Files are applied in
// numeric order by db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
