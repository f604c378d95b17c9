package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const blockSize = 512

// LongNameSentinel is the name of a GNU entry whose payload is the real
// name of the entry that follows it.
const LongNameSentinel = "././@LongLink"

// Entry type flags the extractor distinguishes.
const (
	TypeReg      byte = '0'
	TypeRegA     byte = 0
	TypeLink     byte = '1'
	TypeSymlink  byte = '2'
	TypeDir      byte = '5'
	TypeLongName byte = 'L'
	TypeLongLink byte = 'K'
)

// Header is one raw archive entry header. Names are reported verbatim;
// long-name entries are not folded into the entry that follows.
type Header struct {
	Name     string
	Size     int64
	Mode     int64
	Typeflag byte
}

// Reader walks an archive header by header. It is forward-only.
type Reader struct {
	r         io.Reader
	remaining int64
	padding   int64
	block     [blockSize]byte
	done      bool
}

// NewReader reads an uncompressed tar stream from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next skips whatever is left of the current entry and returns the next
// header. It returns io.EOF at the end-of-archive marker.
func (tr *Reader) Next() (*Header, error) {
	if tr.done {
		return nil, io.EOF
	}
	if err := tr.skip(tr.remaining + tr.padding); err != nil {
		return nil, err
	}
	tr.remaining, tr.padding = 0, 0

	n, err := io.ReadFull(tr.r, tr.block[:])
	if err == io.EOF {
		tr.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, &Error{Kind: KindTruncated, Err: fmt.Errorf("header block: read %d of %d bytes", n, blockSize)}
	}

	if isZeroBlock(tr.block[:]) {
		tr.done = true
		return nil, io.EOF
	}

	hdr, err := parseHeader(tr.block[:])
	if err != nil {
		return nil, err
	}
	tr.remaining = hdr.Size
	tr.padding = -hdr.Size & (blockSize - 1)
	return hdr, nil
}

// Read reads from the payload of the current entry.
func (tr *Reader) Read(p []byte) (int, error) {
	if tr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > tr.remaining {
		p = p[:tr.remaining]
	}
	n, err := tr.r.Read(p)
	tr.remaining -= int64(n)
	if err == io.EOF && tr.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (tr *Reader) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	copied, err := io.CopyN(io.Discard, tr.r, n)
	if err != nil {
		return &Error{Kind: KindTruncated, Err: fmt.Errorf("skipping %d bytes, got %d: %w", n, copied, err)}
	}
	return nil
}

func parseHeader(block []byte) (*Header, error) {
	if err := verifyChecksum(block); err != nil {
		return nil, err
	}

	size, err := parseNumeric(block[124:136])
	if err != nil {
		return nil, &Error{Kind: KindCorrupt, Err: fmt.Errorf("size field: %w", err)}
	}
	if size < 0 {
		return nil, &Error{Kind: KindCorrupt, Err: fmt.Errorf("negative size %d", size)}
	}
	mode, err := parseNumeric(block[100:108])
	if err != nil {
		return nil, &Error{Kind: KindCorrupt, Err: fmt.Errorf("mode field: %w", err)}
	}

	name := cString(block[0:100])
	// POSIX ustar splits long paths into prefix and name. GNU archives
	// use those bytes for other fields and carry long names in a
	// separate entry instead.
	if string(block[257:263]) == "ustar\x00" {
		if prefix := cString(block[345:500]); prefix != "" {
			name = prefix + "/" + name
		}
	}

	return &Header{
		Name:     name,
		Size:     size,
		Mode:     mode,
		Typeflag: block[156],
	}, nil
}

// verifyChecksum checks the unsigned header sum with the checksum field
// counted as spaces.
func verifyChecksum(block []byte) error {
	want, err := parseNumeric(block[148:156])
	if err != nil {
		return &Error{Kind: KindCorrupt, Err: fmt.Errorf("checksum field: %w", err)}
	}
	var sum int64
	for i, b := range block {
		if i >= 148 && i < 156 {
			b = ' '
		}
		sum += int64(b)
	}
	if sum != want {
		return &Error{Kind: KindCorrupt, Err: fmt.Errorf("header checksum %d, computed %d", want, sum)}
	}
	return nil
}

// parseNumeric decodes an octal field, or a base-256 field when the high
// bit of the first byte is set.
func parseNumeric(field []byte) (int64, error) {
	if len(field) > 0 && field[0]&0x80 != 0 {
		if field[0]&0x40 != 0 {
			return 0, errors.New("negative base-256 value")
		}
		var v int64
		for i, b := range field {
			if i == 0 {
				b &= 0x7f
			}
			if v > (1<<55)-1 {
				return 0, errors.New("base-256 value overflows")
			}
			v = v<<8 | int64(b)
		}
		return v, nil
	}

	s := string(bytes.Trim(field, " \x00"))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 8, 64)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func isZeroBlock(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
