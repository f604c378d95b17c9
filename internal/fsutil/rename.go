package fsutil

import "os"

// Rename is a plain rename.
func Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func renameChecked(oldpath, newpath string) error {
	if Exists(newpath) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: ErrExists}
	}
	return os.Rename(oldpath, newpath)
}
