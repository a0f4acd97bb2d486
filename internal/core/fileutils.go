package core

import (
	"io/fs"
)

// IsExecutable checks if a file mode has any executable bits set.
// It checks the executable bits for owner, group, and others (0111).
func IsExecutable(info fs.FileInfo) bool {
	permissions := info.Mode().Perm()
	return permissions&0111 != 0
}
