// Package appfs embeds the files shipped with the binaries: SQL migrations and email templates.
package appfs

import "embed"

//go:embed assets migrations
var FS embed.FS
