// Package migrations embeds the inventory schema.
package migrations

import "embed"

// FS holds the *.up.sql files applied at startup.
//
//go:embed *.up.sql
var FS embed.FS
