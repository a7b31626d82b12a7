// Package migrations embeds the goose SQL migrations applied by voxenctl.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
