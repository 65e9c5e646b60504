package migrations

import "embed"

// FS holds the goose migrations applied by `cli migrate`.
//
//go:embed *.sql
var FS embed.FS
