// Package transport owns the single TCP connection and TLS context used to
// talk to the release feed. A Session serves one peer at a time and is
// reset before each logical request.
package transport

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
)

// DefaultPort is the port dialed when a host carries no explicit port.
const DefaultPort = "443"

// Dialer opens the raw TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithRand replaces the random source used for seeding and by the TLS stack.
func WithRand(r io.Reader) Option {
	return func(s *Session) { s.rand = r }
}

// WithPort changes the port used for hosts without one.
func WithPort(port string) Option {
	return func(s *Session) { s.port = port }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session is a certificate-pinned TLS client session over a raw TCP socket.
// It is not safe for concurrent use.
type Session struct {
	roots  *x509.CertPool
	rand   io.Reader
	dialer Dialer
	port   string
	logger *slog.Logger

	initialized bool
	initErr     error

	host string
	raw  net.Conn
	conn *tls.Conn
}

// NewSession parses the trust anchor and seeds the random source. If either
// step fails the session stays uninitialized and every operation fails fast.
func NewSession(anchorPEM []byte, opts ...Option) *Session {
	s := &Session{
		rand:   rand.Reader,
		dialer: &net.Dialer{},
		port:   DefaultPort,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initialize(anchorPEM)
	return s
}

func (s *Session) initialize(anchorPEM []byte) {
	seed := make([]byte, 32)
	if _, err := io.ReadFull(s.rand, seed); err != nil {
		s.initErr = fmt.Errorf("seeding random source: %w", err)
		s.logger.Error("tls session unusable", "error", s.initErr)
		return
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(anchorPEM) {
		s.initErr = errors.New("no certificates parsed from trust anchor")
		s.logger.Error("tls session unusable", "error", s.initErr)
		return
	}

	s.roots = pool
	s.initialized = true
}

// Initialized reports whether the session can be used.
func (s *Session) Initialized() bool {
	return s.initialized
}

// Err returns the reason initialization failed, or nil.
func (s *Session) Err() error {
	return s.initErr
}

// Reset drops any connection left from a previous request so no TLS state
// carries over to the next host.
func (s *Session) Reset() {
	_ = s.Close()
	s.host = ""
}

// Connect dials host (port 443 unless host carries a port) and performs a
// handshake that verifies the peer chain against the pinned trust anchor
// and the certificate name against host.
func (s *Session) Connect(ctx context.Context, host string) error {
	if !s.initialized {
		return &Error{Kind: KindUninitialized, Host: host, Err: s.initErr}
	}
	if s.raw != nil {
		return &Error{Kind: KindConnect, Host: host, Err: errors.New("session already connected")}
	}

	serverName, address := splitHostPort(host, s.port)
	if serverName == "" {
		return &Error{Kind: KindConnect, Host: host, Err: errors.New("empty host")}
	}

	raw, err := s.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &Error{Kind: KindConnect, Host: host, Err: err}
	}
	s.raw = raw
	s.host = serverName

	conn := tls.Client(&retryConn{Conn: raw}, &tls.Config{
		ServerName: serverName,
		RootCAs:    s.roots,
		Rand:       s.rand,
		MinVersion: tls.VersionTLS12,
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		s.raw = nil
		return &Error{Kind: KindHandshake, Host: host, Err: err}
	}
	s.conn = conn

	state := conn.ConnectionState()
	s.logger.Debug("tls session established",
		"host", serverName,
		"address", address,
		"version", tls.VersionName(state.Version),
		"cipher", tls.CipherSuiteName(state.CipherSuite),
	)
	return nil
}

// Send writes p to the peer.
func (s *Session) Send(p []byte) (int, error) {
	if s.conn == nil {
		return 0, &Error{Kind: KindNotConnected, Host: s.host}
	}
	n, err := s.conn.Write(p)
	if err != nil {
		return n, &Error{Kind: KindSend, Host: s.host, Err: err}
	}
	return n, nil
}

// Receive reads into buf. A peer close is reported as 0, io.EOF.
func (s *Session) Receive(buf []byte) (int, error) {
	if s.conn == nil {
		return 0, &Error{Kind: KindNotConnected, Host: s.host}
	}
	n, err := s.conn.Read(buf)
	if err != nil {
		if IsClosed(err) {
			return n, io.EOF
		}
		return n, &Error{Kind: KindReceive, Host: s.host, Err: err}
	}
	return n, nil
}

// Close sends close-notify when a handshake completed and frees the socket.
// It is a no-op when nothing is connected.
func (s *Session) Close() error {
	if s.raw == nil {
		return nil
	}

	var err error
	if s.conn != nil {
		err = s.conn.Close()
	} else {
		err = s.raw.Close()
	}
	s.conn = nil
	s.raw = nil

	if closeErrorIgnorable(err) {
		return nil
	}
	return err
}

// splitHostPort returns the TLS server name and the dial address for host.
func splitHostPort(host, defaultPort string) (string, string) {
	if name, port, err := net.SplitHostPort(host); err == nil {
		return name, net.JoinHostPort(name, port)
	}
	name := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return name, net.JoinHostPort(name, defaultPort)
}
