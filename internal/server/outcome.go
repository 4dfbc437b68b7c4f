package server

import (
	"fmt"

	"github.com/devwelkin/cannedhttp/internal/response"
)

// Kind classifies how an exchange ended. Every failure kind goes out on the
// wire as the same 500; the kind only exists on this side.
type Kind int

const (
	KindOK Kind = iota
	KindParse
	KindUnknownMethod
	KindHandler
	KindEncode
	KindWrite
)

var kindNames = [...]string{
	KindOK:            "ok",
	KindParse:         "parse",
	KindUnknownMethod: "unknown_method",
	KindHandler:       "handler",
	KindEncode:        "encode",
	KindWrite:         "write",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Outcome is the result of one exchange.
type Outcome struct {
	ID         string
	Kind       Kind
	Method     string
	StatusCode response.StatusCode
	// Err is the failure that decided Kind.
	Err error
	// WriteErr is set when the response could not be written out.
	WriteErr error
}

// OK reports whether the exchange succeeded end to end.
func (o Outcome) OK() bool {
	return o.Kind == KindOK && o.WriteErr == nil
}
