package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the outer wrapping of a build archive.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// detectCompression sniffs the stream's leading magic bytes.
func detectCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	case bytes.HasPrefix(head, magicLZ4):
		return CompressionLZ4
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// decompress returns a reader over the tar stream inside r and the
// compression it detected. The returned closer releases decoder state.
func decompress(r io.Reader) (io.Reader, Compression, func(), error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, CompressionNone, nil, err
	}

	kind := detectCompression(head)
	noop := func() {}

	switch kind {
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, kind, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, kind, func() { _ = zr.Close() }, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, kind, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, kind, zr.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(br), kind, noop, nil
	default:
		return br, kind, noop, nil
	}
}
