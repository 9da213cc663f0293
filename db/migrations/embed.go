// Package migrations bundles the SQL schema so commands and tests apply the
// same files regardless of working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
