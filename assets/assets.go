// Package assets provides access to embedded SQL migrations.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embedFS embed.FS

// FS returns the embedded file system rooted at the assets directory.
func FS() fs.FS {
	return embedFS
}
