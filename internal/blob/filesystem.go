package blob

import (
	"datatree/internal/infra/blob/fs"
)

// NewFilesystem returns a Store rooted at the given directory.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
