// Package client speaks the server's "METHOD / VERSION" dialect, which stock
// HTTP clients cannot produce.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/devwelkin/cannedhttp/internal/headers"
)

const DefaultVersion = "HTTP/1.1"

var ErrMalformedResponse = errors.New("malformed response")

// Request is what Send puts on the wire.
type Request struct {
	Method  string
	Version string
	Headers map[string]string
	Body    string
}

// Response is a parsed server reply.
type Response struct {
	Proto      string
	StatusCode int
	Reason     string
	Headers    headers.Headers
	Body       string
}

// Bytes renders the request in the server's start-line shape.
func (r Request) Bytes() []byte {
	version := r.Version
	if version == "" {
		version = DefaultVersion
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s / %s\r\n", r.Method, version)

	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", name, r.Headers[name])
	}
	b.WriteString("\r\n")
	b.WriteString(r.Body)
	return []byte(b.String())
}

// Send dials addr, writes req and reads the reply until the server closes the
// connection.
func Send(ctx context.Context, addr string, req Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if _, err := conn.Write(req.Bytes()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	// Lines closes conn when it is done reading
	return ReadResponse(conn)
}

// ReadResponse consumes r to EOF and parses it.
func ReadResponse(r io.ReadCloser) (*Response, error) {
	lines := Lines(r)

	statusLine, ok := <-lines
	if !ok {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	res, err := parseStatusLine(strings.TrimSuffix(statusLine, "\r"))
	if err != nil {
		drain(lines)
		return nil, err
	}

	res.Headers = headers.NewHeaders()
	for line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			break
		}
		if err := res.Headers.ParseLine(line); err != nil {
			drain(lines)
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	var body []string
	for line := range lines {
		body = append(body, line)
	}
	res.Body = strings.Join(body, "\n")

	return res, nil
}

func parseStatusLine(line string) (*Response, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, parts[1])
	}

	res := &Response{Proto: parts[0], StatusCode: code}
	if len(parts) == 3 {
		res.Reason = parts[2]
	}
	return res, nil
}

// drain lets the reader goroutine finish.
func drain(lines <-chan string) {
	for range lines {
	}
}
