// Package migrations embeds the SQL migration files for golang-migrate's
// iofs source driver, the same pattern as the teacher's
// pkg/store/metadata/postgres/migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
