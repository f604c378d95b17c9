package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const apiVersion = "2022-11-28"

var headTerminator = []byte("\r\n\r\n")

// target is a URL split the way the request line and Host header need it.
type target struct {
	scheme string
	host   string
	path   string
}

// splitURL takes host as everything strictly between "://" and the next "/".
// The path keeps that "/" and any query string.
func splitURL(raw string) (target, error) {
	i := strings.Index(raw, "://")
	if i < 0 {
		return target{}, &Error{Kind: KindMalformedURL, URL: raw, Err: errors.New("missing scheme separator")}
	}
	rest := raw[i+3:]
	j := strings.IndexByte(rest, '/')
	if j < 0 {
		return target{}, &Error{Kind: KindMalformedURL, URL: raw, Err: errors.New("missing path")}
	}
	if j == 0 {
		return target{}, &Error{Kind: KindMalformedURL, URL: raw, Err: errors.New("empty host")}
	}
	return target{scheme: raw[:i], host: rest[:j], path: rest[j:]}, nil
}

func (t target) origin() string {
	return t.scheme + "://" + t.host
}

// resolveLocation turns a Location value into an absolute URL relative to
// the request that produced it.
func resolveLocation(current target, location string) string {
	switch {
	case strings.Contains(location, "://"):
		return location
	case strings.HasPrefix(location, "//"):
		return current.scheme + ":" + location
	case strings.HasPrefix(location, "/"):
		return current.origin() + location
	default:
		dir := current.path
		if q := strings.IndexByte(dir, '?'); q >= 0 {
			dir = dir[:q]
		}
		dir = dir[:strings.LastIndexByte(dir, '/')+1]
		return current.origin() + dir + location
	}
}

func buildRequest(t target, userAgent, accept string) []byte {
	var b bytes.Buffer
	b.WriteString("GET ")
	b.WriteString(t.path)
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: ")
	b.WriteString(t.host)
	b.WriteString("\r\n")
	b.WriteString("User-Agent: ")
	b.WriteString(userAgent)
	b.WriteString("\r\n")
	b.WriteString("Accept: ")
	b.WriteString(accept)
	b.WriteString("\r\n")
	b.WriteString("X-GitHub-Api-Version: ")
	b.WriteString(apiVersion)
	b.WriteString("\r\n")
	b.WriteString("Connection: close\r\n\r\n")
	return b.Bytes()
}

// headScanner accumulates response bytes until the blank line that ends
// the head. The terminator may arrive split across any number of reads.
type headScanner struct {
	buf   []byte
	limit int
	done  bool
}

func newHeadScanner(limit int) *headScanner {
	return &headScanner{limit: limit}
}

// feed appends p. Once the terminator is seen it returns done and the
// bytes that followed it, which belong to the body.
func (h *headScanner) feed(p []byte) ([]byte, bool, error) {
	if h.done {
		return nil, false, errors.New("head already complete")
	}

	start := max(len(h.buf)-len(headTerminator)+1, 0)
	h.buf = append(h.buf, p...)

	if i := bytes.Index(h.buf[start:], headTerminator); i >= 0 {
		end := start + i
		rest := bytes.Clone(h.buf[end+len(headTerminator):])
		h.buf = h.buf[:end]
		h.done = true
		return rest, true, nil
	}

	if len(h.buf) > h.limit {
		return nil, false, fmt.Errorf("response head exceeds %d bytes", h.limit)
	}
	return nil, false, nil
}

// statusCode parses the status line as soon as it is complete.
func (h *headScanner) statusCode() (int, bool) {
	line := h.buf
	if i := bytes.Index(line, []byte("\r\n")); i >= 0 {
		line = line[:i]
	} else if !h.done {
		return 0, false
	}
	code, err := parseStatusLine(string(line))
	if err != nil {
		return 0, false
	}
	return code, true
}

type responseHead struct {
	status   int
	location string
}

func parseHead(head []byte) (responseHead, error) {
	lines := strings.Split(string(head), "\r\n")
	status, err := parseStatusLine(lines[0])
	if err != nil {
		return responseHead{}, err
	}

	resp := responseHead{status: status}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Location") {
			resp.location = strings.TrimSpace(value)
		}
	}
	return resp, nil
}

// parseStatusLine accepts "HTTP/1.x NNN [reason]".
func parseStatusLine(line string) (int, error) {
	if !strings.HasPrefix(line, "HTTP/1.") {
		return 0, fmt.Errorf("bad status line %q", line)
	}
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields[1]) != 3 {
		return 0, fmt.Errorf("bad status line %q", line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 599 {
		return 0, fmt.Errorf("bad status code in %q", line)
	}
	return code, nil
}
