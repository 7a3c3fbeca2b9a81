// Package dobble embeds the browser client served by cmd/server.
package dobble

import "embed"

// WebFS holds the static browser client under "web/".
//
//go:embed web
var WebFS embed.FS
