package archive

import (
	"errors"
	"path/filepath"
	"strings"
)

// DefaultStripPrefix is the top-level directory build archives are packed
// under.
const DefaultStripPrefix = "BUILD"

// sanitizePath maps an archive entry name onto a path relative to the
// destination root. Both separator styles are accepted; the result uses the
// host separator. A leading segment equal to stripPrefix is dropped; when
// the archive has no such segment nothing is stripped. isDir reports a
// trailing separator on the original name.
func sanitizePath(name, stripPrefix string) (rel string, isDir bool, err error) {
	normalized := strings.ReplaceAll(name, "\\", "/")
	isDir = strings.HasSuffix(normalized, "/")

	if strings.HasPrefix(normalized, "/") || filepath.VolumeName(filepath.FromSlash(normalized)) != "" {
		return "", isDir, errors.New("absolute path")
	}

	var segments []string
	for _, seg := range strings.Split(normalized, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", isDir, errors.New("path escapes destination")
		}
		segments = append(segments, seg)
	}

	if stripPrefix != "" && len(segments) > 0 && segments[0] == stripPrefix {
		segments = segments[1:]
	}

	return filepath.Join(segments...), isDir, nil
}
