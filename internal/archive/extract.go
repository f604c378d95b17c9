// Package archive unpacks build archives: a single forward pass over a tar
// stream that honours the GNU long-name convention, optionally wrapped in
// gzip, zstd or lz4.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultChunkSize is the copy buffer used for entry payloads.
const DefaultChunkSize = 4096

// maxLongName bounds the payload of a long-name entry.
const maxLongName = 64 << 10

// Extractor unpacks an archive file into a destination directory.
type Extractor struct {
	// StripPrefix is a top-level directory removed from every entry path.
	StripPrefix string
	// ChunkSize is the payload copy buffer size.
	ChunkSize int
	Logger    *slog.Logger
}

// Stats summarizes a finished extraction.
type Stats struct {
	Compression Compression
	Files       int
	Dirs        int
	Skipped     int
	Bytes       int64
}

// NewExtractor returns an extractor with default settings.
func NewExtractor() *Extractor {
	return &Extractor{StripPrefix: DefaultStripPrefix, ChunkSize: DefaultChunkSize}
}

// Extract unpacks archivePath under destRoot.
func (e *Extractor) Extract(archivePath, destRoot string) error {
	_, err := e.ExtractWithStats(archivePath, destRoot)
	return err
}

// ExtractWithStats is Extract that also reports what was written. Any
// failure aborts the extraction; files already written are left in place.
func (e *Extractor) ExtractWithStats(archivePath, destRoot string) (*Stats, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return nil, &Error{Kind: KindOpen, Path: archivePath, Err: err}
	}
	defer file.Close()

	stream, compression, release, err := decompress(file)
	if err != nil {
		return nil, &Error{Kind: KindOpen, Path: archivePath, Err: err}
	}
	defer release()

	stats := &Stats{Compression: compression}
	tr := NewReader(stream)
	buf := make([]byte, chunkSize)
	var longName string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, withPath(err, archivePath)
		}

		if hdr.Name == LongNameSentinel || hdr.Typeflag == TypeLongName {
			name, err := readLongName(tr, hdr.Size)
			if err != nil {
				return stats, withPath(err, archivePath)
			}
			longName = name
			continue
		}

		name := hdr.Name
		if longName != "" {
			name = longName
			longName = ""
		}

		rel, isDir, err := sanitizePath(name, e.StripPrefix)
		if err != nil {
			return stats, &Error{Kind: KindUnsafePath, Path: name, Err: err}
		}
		target := filepath.Join(destRoot, rel)

		switch {
		case isDir || hdr.Typeflag == TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return stats, &Error{Kind: KindMkdir, Path: target, Err: err}
			}
			stats.Dirs++

		case hdr.Typeflag == TypeReg || hdr.Typeflag == TypeRegA:
			if rel == "" {
				return stats, &Error{Kind: KindUnsafePath, Path: name, Err: errors.New("file entry has no name")}
			}
			if err := writeEntry(tr, target, hdr, buf); err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += hdr.Size

		default:
			logger.Warn("skipping unsupported archive entry", "name", name, "type", string(hdr.Typeflag))
			stats.Skipped++
		}
	}

	logger.Debug("archive extracted",
		"archive", archivePath,
		"destination", destRoot,
		"compression", compression.String(),
		"files", stats.Files,
		"dirs", stats.Dirs,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

func readLongName(tr *Reader, size int64) (string, error) {
	if size > maxLongName {
		return "", &Error{Kind: KindCorrupt, Err: fmt.Errorf("long name of %d bytes", size)}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(tr, payload); err != nil {
		return "", &Error{Kind: KindTruncated, Path: LongNameSentinel, Err: err}
	}
	return cString(payload), nil
}

// writeEntry replaces target with the current entry's payload, copied in
// len(buf)-sized chunks.
func writeEntry(tr *Reader, target string, hdr *Header, buf []byte) error {
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Kind: KindCreate, Path: target, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return &Error{Kind: KindMkdir, Path: filepath.Dir(target), Err: err}
	}

	perm := fs.FileMode(hdr.Mode) & fs.ModePerm
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return &Error{Kind: KindCreate, Path: target, Err: err}
	}

	remaining := hdr.Size
	for remaining > 0 {
		chunk := buf[:min(remaining, int64(len(buf)))]
		if _, err := io.ReadFull(tr, chunk); err != nil {
			_ = out.Close()
			return &Error{Kind: KindTruncated, Path: target, Err: err}
		}
		if _, err := out.Write(chunk); err != nil {
			_ = out.Close()
			return &Error{Kind: KindWrite, Path: target, Err: err}
		}
		remaining -= int64(len(chunk))
	}

	if err := out.Close(); err != nil {
		return &Error{Kind: KindWrite, Path: target, Err: err}
	}
	return nil
}

// withPath fills in the archive path on reader errors that lack one.
func withPath(err error, path string) error {
	var ae *Error
	if errors.As(err, &ae) && ae.Path == "" {
		ae.Path = path
	}
	return err
}
