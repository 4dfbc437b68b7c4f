// request.go

package request

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/devwelkin/cannedhttp/internal/headers"
)

// DefaultReadBudget is the most a single exchange will read from a connection.
const DefaultReadBudget = 1024

// Custom errors
var (
	ErrInvalidRequestFormat = errors.New("invalid request line format")
	ErrMissingSeparator     = errors.New("missing blank line between headers and body")
	ErrEmptyRequest         = errors.New("empty request")
	ErrInvalidEncoding      = errors.New("request is not valid UTF-8")
)

const (
	headerSeparator = "\r\n\r\n"
	lineSeparator   = "\r\n"
	// the start line carries a literal "/" token between method and version
	startLineSeparator = " / "
)

type Request struct {
	RequestLine RequestLine
	Headers     headers.Headers
	Body        string
}

type RequestLine struct {
	Method      string
	HTTPVersion string
}

// RequestFromReader performs exactly one Read of at most budget bytes and
// parses whatever arrived. Anything past the budget is ignored.
func RequestFromReader(reader io.Reader, budget int) (*Request, error) {
	if budget <= 0 {
		budget = DefaultReadBudget
	}
	readBuf := make([]byte, budget)

	n, err := reader.Read(readBuf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyRequest
	}

	data := readBuf[:n]
	if n == budget {
		// the budget may have cut the last character in half
		data = trimPartialRune(data)
	}
	return Parse(data)
}

func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

// Parse splits data into the start line, header block and body.
func Parse(data []byte) (*Request, error) {
	// an echoed body must come back byte for byte, which JSON cannot do for
	// invalid UTF-8
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}

	meta, body, ok := strings.Cut(string(data), headerSeparator)
	if !ok {
		return nil, ErrMissingSeparator
	}

	startLine, headerBlock, _ := strings.Cut(meta, lineSeparator)

	reqLine, err := parseRequestLine(startLine)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request line: %w", err)
	}

	h := headers.NewHeaders()
	if err := h.ParseBlock(headerBlock); err != nil {
		return nil, err
	}

	return &Request{
		RequestLine: *reqLine,
		Headers:     h,
		Body:        body,
	}, nil
}

func parseRequestLine(line string) (*RequestLine, error) {
	parts := strings.Split(line, startLineSeparator)
	// panic guard
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected 'METHOD / VERSION', got %q", ErrInvalidRequestFormat, line)
	}

	method := parts[0]
	if method == "" {
		return nil, fmt.Errorf("%w: empty method", ErrInvalidRequestFormat)
	}

	return &RequestLine{
		Method:      method,
		HTTPVersion: parts[1],
	}, nil
}
