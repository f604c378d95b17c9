//go:build !linux

package fsutil

// RenameNoReplace renames oldpath to newpath, failing with ErrExists
// instead of replacing an existing newpath.
func RenameNoReplace(oldpath, newpath string) error {
	return renameChecked(oldpath, newpath)
}
