package headers

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedHeader = errors.New("invalid header: no colon found")

type Headers map[string]string

func NewHeaders() Headers {
	return map[string]string{}
}

// ParseLine adds a single "Name: value" line to h. The line is split once on
// the first colon, so values keep any colons of their own.
func (h Headers) ParseLine(line string) error {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
	}

	// always lowercase the key
	// an empty name is kept as the "" key
	key := strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)

	if prev, ok := h[key]; ok {
		h[key] = prev + ", " + value
		return nil
	}

	h[key] = value
	return nil
}

// ParseBlock parses CRLF separated header lines. Empty input yields no
// headers.
func (h Headers) ParseBlock(block string) error {
	if block == "" {
		return nil
	}
	for _, line := range strings.Split(block, "\r\n") {
		if err := h.ParseLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (h Headers) Get(key string) (string, error) {
	value, ok := h[strings.ToLower(key)]

	if ok {
		return value, nil
	}

	return "", errors.New("key not found")
}
