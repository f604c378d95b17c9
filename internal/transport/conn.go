package transport

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// retryConn wraps the raw TCP socket underneath the TLS record layer.
// A read or write that reports would-block is re-invoked immediately,
// so the handshake and the record layer only ever observe progress or a
// fatal error.
type retryConn struct {
	net.Conn
}

func (c *retryConn) Read(p []byte) (int, error) {
	for {
		n, err := c.Conn.Read(p)
		if n == 0 && wouldBlock(err) {
			continue
		}
		return n, err
	}
}

func (c *retryConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := c.Conn.Write(p[written:])
		written += n
		if err != nil {
			if wouldBlock(err) {
				continue
			}
			return written, err
		}
	}
	return written, nil
}

func wouldBlock(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// IsClosed reports whether err is a clean end of the peer connection: EOF
// at a record boundary, a closed socket or a broken pipe. A record cut
// short (io.ErrUnexpectedEOF) or a reset is not, since the data read so far
// may be incomplete.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return errors.Is(err, syscall.EPIPE)
}

// closeErrorIgnorable reports whether an error from tearing the connection
// down can be dropped.
func closeErrorIgnorable(err error) bool {
	return IsClosed(err) || errors.Is(err, syscall.ECONNRESET)
}
