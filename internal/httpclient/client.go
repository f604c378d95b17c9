// Package httpclient is a minimal HTTP/1.1 GET client that speaks directly
// over a TLS session. Every request is a whole-resource GET with
// "Connection: close"; the body ends when the peer closes.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const (
	DefaultMaxRedirects   = 5
	DefaultMaxHeaderBytes = 64 << 10
	DefaultReadSize       = 4096
	DefaultUserAgent      = "buildswap"

	acceptMetadata = "application/vnd.github+json"
	acceptBinary   = "application/octet-stream"
)

// Transport is the connection the client drives. *transport.Session
// implements it.
type Transport interface {
	Reset()
	Connect(ctx context.Context, host string) error
	Send(p []byte) (int, error)
	Receive(buf []byte) (int, error)
	Close() error
}

// Option configures a Client.
type Option func(*Client)

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithReadSize sets the size of each receive call. It is a tuning knob,
// not a limit on anything.
func WithReadSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.readSize = n
		}
	}
}

func WithMaxHeaderBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxHeaderBytes = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client issues GET requests over a single Transport, one at a time.
type Client struct {
	transport      Transport
	userAgent      string
	maxRedirects   int
	maxHeaderBytes int
	readSize       int
	logger         *slog.Logger
}

// New creates a client over t.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport:      t,
		userAgent:      DefaultUserAgent,
		maxRedirects:   DefaultMaxRedirects,
		maxHeaderBytes: DefaultMaxHeaderBytes,
		readSize:       DefaultReadSize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url and returns the whole body.
func (c *Client) Get(ctx context.Context, url string) (string, error) {
	sink := &memorySink{}
	if err := c.fetch(ctx, url, acceptMetadata, sink); err != nil {
		return "", err
	}
	return sink.buf.String(), nil
}

// Download streams url into dst, creating or truncating it, and returns the
// number of body bytes written. An empty body is an error.
func (c *Client) Download(ctx context.Context, url, dst string) (int64, error) {
	sink := &fileSink{path: dst}
	err := c.fetch(ctx, url, acceptBinary, sink)
	if closeErr := sink.close(); err == nil && closeErr != nil {
		err = &Error{Kind: KindIO, URL: url, Err: closeErr}
	}
	if err != nil {
		return sink.written, err
	}
	if sink.written == 0 {
		return 0, &Error{Kind: KindEmptyBody, URL: url}
	}
	c.logger.Debug("download complete", "url", url, "path", dst, "bytes", sink.written)
	return sink.written, nil
}

// fetch follows redirects up to maxRedirects hops.
func (c *Client) fetch(ctx context.Context, url, accept string, sink bodySink) error {
	current := url
	for hop := 0; ; hop++ {
		t, err := splitURL(current)
		if err != nil {
			return err
		}

		location, err := c.roundTrip(ctx, t, current, accept, sink)
		if err != nil {
			return err
		}
		if location == "" {
			return nil
		}
		if hop >= c.maxRedirects {
			return &Error{Kind: KindTooManyRedirects, URL: url, Err: fmt.Errorf("stopped after %d redirects", hop)}
		}

		next := resolveLocation(t, location)
		c.logger.Debug("following redirect", "from", current, "to", next, "hop", hop+1)
		current = next
	}
}

// roundTrip performs one request on a freshly reset session. It returns the
// redirect target for 3xx responses, or "" once the body has been delivered
// to sink. The session is closed exactly once before returning.
func (c *Client) roundTrip(ctx context.Context, t target, url, accept string, sink bodySink) (string, error) {
	c.transport.Reset()
	if err := c.transport.Connect(ctx, t.host); err != nil {
		return "", &Error{Kind: KindTransport, URL: url, Err: err}
	}
	defer func() { _ = c.transport.Close() }()

	request := buildRequest(t, c.userAgent, accept)
	n, err := c.transport.Send(request)
	if err != nil {
		return "", &Error{Kind: KindTransport, URL: url, Err: err}
	}
	if n != len(request) {
		return "", &Error{Kind: KindTransport, URL: url, Err: fmt.Errorf("short write: %d of %d bytes", n, len(request))}
	}

	buf := make([]byte, c.readSize)
	head := newHeadScanner(c.maxHeaderBytes)
	var body []byte
	for {
		n, err := c.receive(buf)
		if n > 0 {
			rest, done, scanErr := head.feed(buf[:n])
			if scanErr != nil {
				return "", &Error{Kind: KindMalformedResponse, URL: url, Err: scanErr}
			}
			if code, ok := head.statusCode(); ok && code >= 400 {
				return "", &Error{Kind: KindStatus, URL: url, StatusCode: code}
			}
			if done {
				body = rest
				break
			}
		}
		if err == io.EOF {
			return "", &Error{Kind: KindMalformedResponse, URL: url, Err: errors.New("connection closed before end of response head")}
		}
		if err != nil {
			return "", &Error{Kind: KindTransport, URL: url, Err: err}
		}
	}

	resp, err := parseHead(head.buf)
	if err != nil {
		return "", &Error{Kind: KindMalformedResponse, URL: url, Err: err}
	}
	if resp.status >= 300 && resp.status < 400 {
		if resp.location == "" {
			return "", &Error{Kind: KindMalformedRedirect, URL: url, StatusCode: resp.status, Err: errors.New("missing Location header")}
		}
		return resp.location, nil
	}

	if err := sink.open(); err != nil {
		return "", &Error{Kind: KindIO, URL: url, Err: err}
	}
	if len(body) > 0 {
		if err := sink.write(body); err != nil {
			return "", &Error{Kind: KindIO, URL: url, Err: err}
		}
	}
	for {
		n, err := c.receive(buf)
		if n > 0 {
			if err := sink.write(buf[:n]); err != nil {
				return "", &Error{Kind: KindIO, URL: url, Err: err}
			}
		}
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", &Error{Kind: KindTransport, URL: url, Err: err}
		}
	}
}

// receive treats a zero-length read as the peer closing.
func (c *Client) receive(buf []byte) (int, error) {
	n, err := c.transport.Receive(buf)
	if n <= 0 && err == nil {
		return 0, io.EOF
	}
	return max(n, 0), err
}

// bodySink receives the body of the final, non-redirect response.
type bodySink interface {
	open() error
	write(p []byte) error
}

type memorySink struct {
	buf bytes.Buffer
}

func (s *memorySink) open() error {
	s.buf.Reset()
	return nil
}

func (s *memorySink) write(p []byte) error {
	_, err := s.buf.Write(p)
	return err
}

type fileSink struct {
	path    string
	file    *os.File
	written int64
}

func (s *fileSink) open() error {
	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.path, err)
	}
	s.file = file
	return nil
}

func (s *fileSink) write(p []byte) error {
	n, err := s.file.Write(p)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

func (s *fileSink) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
