// Package fsutil holds the filesystem primitives the install swap is built
// from.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrExists is returned by RenameNoReplace when the target is present.
var ErrExists = errors.New("target already exists")

// Exists reports whether path exists. Errors other than "not found" count
// as existing so callers do not clobber what they cannot inspect.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// IsDir reports whether path is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Within reports whether path is dir or lies below it. Both are cleaned
// first; no symlinks are resolved.
func Within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Wipe removes path and everything below it. A missing path is not an
// error.
func Wipe(path string) error {
	if path == "" || path == "/" || path == filepath.VolumeName(path)+string(filepath.Separator) {
		return fmt.Errorf("refusing to wipe %q", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// CopyStats counts what CopyDir wrote.
type CopyStats struct {
	Files int
	Dirs  int
	Bytes int64
}

// CopyDir recursively copies src into dst, creating dst if needed and
// overwriting files that already exist there. Symlinks are recreated, not
// followed.
func CopyDir(src, dst string) (*CopyStats, error) {
	stats := &CopyStats{}
	info, err := os.Stat(src)
	if err != nil {
		return stats, err
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%s is not a directory", src)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, info.Mode().Perm()|0700); err != nil {
				return err
			}
			stats.Dirs++
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return err
			}
		case d.Type().IsRegular():
			n, err := CopyFile(path, target)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += n
		}
		return nil
	})
	return stats, err
}

// CopyFile copies one regular file, preserving its permission bits.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, err
	}
	return n, out.Close()
}

// DirSize sums the sizes of the regular files below path.
func DirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
