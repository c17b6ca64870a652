// Package migrations embeds the SQL migrations applied by the server at
// startup when MIGRATE=true, and by storage tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
