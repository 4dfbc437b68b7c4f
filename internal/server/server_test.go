package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartystreets/goconvey/convey"

	"github.com/devwelkin/cannedhttp/internal/client"
	"github.com/devwelkin/cannedhttp/internal/config"
	"github.com/devwelkin/cannedhttp/internal/handler"
	"github.com/devwelkin/cannedhttp/internal/request"
	"github.com/devwelkin/cannedhttp/internal/response"
)

// conn is an in-memory exchange: reads come from in, writes land in out.
type conn struct {
	in  io.Reader
	out bytes.Buffer
}

func (c *conn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *conn) Write(p []byte) (int, error) { return c.out.Write(p) }

type brokenConn struct {
	in io.Reader
}

func (c *brokenConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *brokenConn) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func testConfig() config.ServerConfig {
	cfg := config.LoadDefault().Server
	cfg.Port = 0
	return cfg
}

func newTestServer(handlers *handler.Set) *Server {
	return New(testConfig(), handlers, WithLogger(zerolog.Nop()))
}

func exchange(s *Server, raw string) (Outcome, *client.Response) {
	c := &conn{in: strings.NewReader(raw)}
	out := s.Exchange(c)
	res, err := client.ReadResponse(io.NopCloser(&c.out))
	if err != nil {
		panic(err)
	}
	return out, res
}

func TestExchange(t *testing.T) {
	convey.Convey("each method gets its canned response", t, func() {
		s := newTestServer(nil)
		cases := []struct {
			method string
			status int
			reason string
			body   string
		}{
			{"GET", 200, "Ok", `{"lorem":"ipsum"}`},
			{"POST", 201, "Created", `{"dolor":"sic"}`},
			{"PUT", 200, "Ok", `{"put":"hello"}`},
			{"PATCH", 200, "Ok", `{"patch":"hello"}`},
			{"DELETE", 204, "No-Content", `{}`},
		}
		for _, c := range cases {
			out, res := exchange(s, c.method+" / HTTP/1.1\r\nHost: localhost\r\n\r\nhello")
			convey.So(out.Kind, convey.ShouldEqual, KindOK)
			convey.So(out.OK(), convey.ShouldBeTrue)
			convey.So(out.Method, convey.ShouldEqual, c.method)
			convey.So(res.StatusCode, convey.ShouldEqual, c.status)
			convey.So(res.Reason, convey.ShouldEqual, c.reason)
			convey.So(res.Body, convey.ShouldEqual, c.body)
			convey.So(res.Headers["content-type"], convey.ShouldEqual, response.ContentTypeJSON)
			convey.So(res.Headers["connection"], convey.ShouldEqual, "close")
			convey.So(res.Headers["content-length"], convey.ShouldEqual, strconv.Itoa(len(res.Body)))
		}
	})

	convey.Convey("unsupported methods get a 500", t, func() {
		out, res := exchange(newTestServer(nil), "HEAD / HTTP/1.1\r\n\r\n")
		convey.So(out.Kind, convey.ShouldEqual, KindUnknownMethod)
		convey.So(errors.Is(out.Err, handler.ErrUnknownMethod), convey.ShouldBeTrue)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)
		convey.So(res.Reason, convey.ShouldEqual, "Ko")
		convey.So(res.Body, convey.ShouldContainSubstring, `"Error":`)
		convey.So(res.Body, convey.ShouldContainSubstring, "HEAD")
	})

	convey.Convey("a missing blank line gets a 500", t, func() {
		out, res := exchange(newTestServer(nil), "GET / HTTP/1.1\r\nHost: localhost\r\n")
		convey.So(out.Kind, convey.ShouldEqual, KindParse)
		convey.So(errors.Is(out.Err, request.ErrMissingSeparator), convey.ShouldBeTrue)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)
		convey.So(res.Headers["content-length"], convey.ShouldEqual, strconv.Itoa(len(res.Body)))
	})

	convey.Convey("a body that is not valid UTF-8 gets a 500 instead of an altered echo", t, func() {
		out, res := exchange(newTestServer(nil), "PUT / HTTP/1.1\r\n\r\nab\xffcd")
		convey.So(out.Kind, convey.ShouldEqual, KindParse)
		convey.So(errors.Is(out.Err, request.ErrInvalidEncoding), convey.ShouldBeTrue)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)
	})

	convey.Convey("a standard start line gets a 500", t, func() {
		out, res := exchange(newTestServer(nil), "GET /index.html HTTP/1.1\r\n\r\n")
		convey.So(out.Kind, convey.ShouldEqual, KindParse)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)
	})

	convey.Convey("handler failures get a 500", t, func() {
		set := handler.NewSet(map[handler.Method]handler.Handler{
			handler.MethodGet: func(*request.Request) (handler.Result, error) {
				return handler.Result{}, errors.New("boom")
			},
		})
		out, res := exchange(newTestServer(set), "GET / HTTP/1.1\r\n\r\n")
		convey.So(out.Kind, convey.ShouldEqual, KindHandler)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)
		convey.So(res.Body, convey.ShouldContainSubstring, "boom")
	})

	convey.Convey("payloads that cannot be encoded get a 500", t, func() {
		set := handler.NewSet(map[handler.Method]handler.Handler{
			handler.MethodGet: func(*request.Request) (handler.Result, error) {
				return handler.Result{StatusCode: response.StatusOK, Payload: map[string]any{"ch": make(chan int)}}, nil
			},
		})
		out, res := exchange(newTestServer(set), "GET / HTTP/1.1\r\n\r\n")
		convey.So(out.Kind, convey.ShouldEqual, KindEncode)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)
	})

	convey.Convey("write failures are recorded", t, func() {
		s := newTestServer(nil)
		out := s.Exchange(&brokenConn{in: strings.NewReader("GET / HTTP/1.1\r\n\r\n")})
		convey.So(out.Kind, convey.ShouldEqual, KindWrite)
		convey.So(out.WriteErr, convey.ShouldNotBeNil)
		convey.So(out.OK(), convey.ShouldBeFalse)

		out = s.Exchange(&brokenConn{in: strings.NewReader("garbage")})
		convey.So(out.Kind, convey.ShouldEqual, KindParse)
		convey.So(out.WriteErr, convey.ShouldNotBeNil)
	})
}

func TestServeSequentialExchanges(t *testing.T) {
	convey.Convey("the server keeps serving after every exchange", t, func() {
		outcomes := make(chan Outcome, 16)
		s, err := Serve(testConfig(), nil,
			WithLogger(zerolog.Nop()),
			WithExchangeHook(func(o Outcome) { outcomes <- o }),
		)
		convey.So(err, convey.ShouldBeNil)
		defer s.Close()

		addr := s.Addr().String()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		requests := []struct {
			req    client.Request
			status int
			kind   Kind
		}{
			{client.Request{Method: "GET"}, 200, KindOK},
			{client.Request{Method: "HEAD"}, 500, KindUnknownMethod},
			{client.Request{Method: "PUT", Body: "hello"}, 200, KindOK},
			{client.Request{Method: "DELETE"}, 204, KindOK},
			{client.Request{Method: "PATCH", Body: "again"}, 200, KindOK},
		}
		for _, r := range requests {
			res, err := client.Send(ctx, addr, r.req)
			convey.So(err, convey.ShouldBeNil)
			convey.So(res.StatusCode, convey.ShouldEqual, r.status)

			o := <-outcomes
			convey.So(o.Kind, convey.ShouldEqual, r.kind)
			convey.So(o.Method, convey.ShouldEqual, r.req.Method)
		}
	})

	convey.Convey("a malformed request does not stop the loop", t, func() {
		s, err := Serve(testConfig(), nil, WithLogger(zerolog.Nop()))
		convey.So(err, convey.ShouldBeNil)
		defer s.Close()

		raw, err := net.Dial("tcp", s.Addr().String())
		convey.So(err, convey.ShouldBeNil)
		_, err = raw.Write([]byte("not http at all"))
		convey.So(err, convey.ShouldBeNil)
		res, err := client.ReadResponse(raw)
		convey.So(err, convey.ShouldBeNil)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err = client.Send(ctx, s.Addr().String(), client.Request{Method: "POST"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(res.StatusCode, convey.ShouldEqual, 201)
		convey.So(res.Body, convey.ShouldEqual, `{"dolor":"sic"}`)
	})
}

func TestServeReadTimeout(t *testing.T) {
	convey.Convey("a silent client gets a 500 once the read deadline passes", t, func() {
		cfg := testConfig()
		cfg.ReadTimeout = 50
		outcomes := make(chan Outcome, 1)
		s, err := Serve(cfg, nil,
			WithLogger(zerolog.Nop()),
			WithExchangeHook(func(o Outcome) { outcomes <- o }),
		)
		convey.So(err, convey.ShouldBeNil)
		defer s.Close()

		raw, err := net.Dial("tcp", s.Addr().String())
		convey.So(err, convey.ShouldBeNil)
		res, err := client.ReadResponse(raw)
		convey.So(err, convey.ShouldBeNil)
		convey.So(res.StatusCode, convey.ShouldEqual, 500)

		o := <-outcomes
		convey.So(o.Kind, convey.ShouldEqual, KindParse)
	})
}

func TestServeBindFailure(t *testing.T) {
	first, err := Serve(testConfig(), nil, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer first.Close()

	cfg := testConfig()
	cfg.Port = first.Addr().(*net.TCPAddr).Port
	if _, err := Serve(cfg, nil, WithLogger(zerolog.Nop())); err == nil {
		t.Error("expected bind error for a port already in use")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Serve(testConfig(), nil, WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestCloseWithIdleClient(t *testing.T) {
	convey.Convey("Close returns while a connected client never sends anything", t, func() {
		outcomes := make(chan Outcome, 1)
		s, err := Serve(testConfig(), nil,
			WithLogger(zerolog.Nop()),
			WithExchangeHook(func(o Outcome) { outcomes <- o }),
		)
		convey.So(err, convey.ShouldBeNil)

		idle, err := net.Dial("tcp", s.Addr().String())
		convey.So(err, convey.ShouldBeNil)
		defer idle.Close()
		// give the accept loop time to pick the connection up and block in Read
		time.Sleep(100 * time.Millisecond)

		closed := make(chan error, 1)
		go func() { closed <- s.Close() }()

		select {
		case err := <-closed:
			convey.So(err, convey.ShouldBeNil)
		case <-time.After(2 * time.Second):
			t.Fatal("Close still blocked with an idle client connected")
		}

		// Close has returned, so a served exchange has already been reported
		select {
		case o := <-outcomes:
			convey.So(o.Kind, convey.ShouldEqual, KindParse)
		default:
		}
	})
}

func TestUnboundServer(t *testing.T) {
	s := newTestServer(nil)
	if s.Addr() != nil {
		t.Errorf("expected nil address for an unbound server, got %v", s.Addr())
	}
	if err := s.Close(); err != nil {
		t.Errorf("closing an unbound server should be a no-op, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindUnknownMethod.String() != "unknown_method" {
		t.Errorf("unexpected kind name %q", KindUnknownMethod.String())
	}
	if Kind(99).String() != "Kind(99)" {
		t.Errorf("unexpected out of range kind name %q", Kind(99).String())
	}
}
