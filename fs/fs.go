// Package appfs embeds non-Go assets shipped with the binary: SQL migrations,
// email templates and the common passwords list.
package appfs

import "embed"

//go:embed assets migrations templates
var FS embed.FS
