// Package migrations embeds the Postgres schema shipped with the service.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
