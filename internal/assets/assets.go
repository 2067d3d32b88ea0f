// Package assets holds the explorer UI bundled into the binary.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed explorer
var explorer embed.FS

// Explorer returns the explorer files rooted at the bundle directory.
func Explorer() fs.FS {
	sub, err := fs.Sub(explorer, "explorer")
	if err != nil {
		panic(err) // the directory is embedded above
	}
	return sub
}
