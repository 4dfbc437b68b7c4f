// Package handler maps the supported request methods to canned responses.
package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devwelkin/cannedhttp/internal/request"
	"github.com/devwelkin/cannedhttp/internal/response"
)

var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrHandlerFailed = errors.New("handler failed")
)

// Method is the closed set of methods the server answers.
type Method int

const (
	MethodGet Method = iota
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
)

var methodNames = [...]string{
	MethodGet:    "GET",
	MethodPost:   "POST",
	MethodPut:    "PUT",
	MethodPatch:  "PATCH",
	MethodDelete: "DELETE",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// Methods lists every supported method in declaration order.
func Methods() []Method {
	return []Method{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete}
}

// ParseMethod resolves a start-line token, ignoring case.
func ParseMethod(raw string) (Method, error) {
	for i, name := range methodNames {
		if strings.EqualFold(raw, name) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
}

// Result is what a handler answers with.
type Result struct {
	StatusCode response.StatusCode
	Payload    any
}

// Handler turns a parsed request into a result. Handlers keep no state.
type Handler func(req *request.Request) (Result, error)

// Set is a fixed dispatch table from method to handler.
type Set struct {
	handlers map[Method]Handler
}

// NewSet builds a set from the given table. Methods missing from the table
// dispatch as unknown.
func NewSet(handlers map[Method]Handler) *Set {
	table := make(map[Method]Handler, len(handlers))
	for m, h := range handlers {
		table[m] = h
	}
	return &Set{handlers: table}
}

// Default returns the canned handler set.
func Default() *Set {
	return NewSet(map[Method]Handler{
		MethodGet:    Get,
		MethodPost:   Post,
		MethodPut:    Put,
		MethodPatch:  Patch,
		MethodDelete: Delete,
	})
}

// Dispatch runs the handler registered for the request's method.
func (s *Set) Dispatch(req *request.Request) (Result, error) {
	method, err := ParseMethod(req.RequestLine.Method)
	if err != nil {
		return Result{}, err
	}

	h, ok := s.handlers[method]
	if !ok {
		return Result{}, fmt.Errorf("%w: no handler for %s", ErrUnknownMethod, method)
	}

	result, err := h(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrHandlerFailed, method, err)
	}
	return result, nil
}

func Get(*request.Request) (Result, error) {
	return Result{StatusCode: response.StatusOK, Payload: map[string]any{"lorem": "ipsum"}}, nil
}

func Post(*request.Request) (Result, error) {
	return Result{StatusCode: response.StatusCreated, Payload: map[string]any{"dolor": "sic"}}, nil
}

// Put echoes the raw body back.
func Put(req *request.Request) (Result, error) {
	return Result{StatusCode: response.StatusOK, Payload: map[string]any{"put": req.Body}}, nil
}

// Patch echoes the raw body back.
func Patch(req *request.Request) (Result, error) {
	return Result{StatusCode: response.StatusOK, Payload: map[string]any{"patch": req.Body}}, nil
}

func Delete(*request.Request) (Result, error) {
	return Result{StatusCode: response.StatusNoContent, Payload: map[string]any{}}, nil
}
