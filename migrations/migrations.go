// Package migrations embeds the MySQL schema applied by `agency-crm migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
