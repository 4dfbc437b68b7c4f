package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devwelkin/cannedhttp/internal/config"
	"github.com/devwelkin/cannedhttp/internal/handler"
	"github.com/devwelkin/cannedhttp/internal/logging"
	"github.com/devwelkin/cannedhttp/internal/request"
	"github.com/devwelkin/cannedhttp/internal/response"
)

// Option configures a Server.
type Option func(*Server)

// WithExchangeHook registers fn to be called after every exchange.
func WithExchangeHook(fn func(Outcome)) Option {
	return func(s *Server) {
		s.onExchange = fn
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// Server holds the state for our http server
type Server struct {
	listener   net.Listener
	handlers   *handler.Set
	readBudget int
	timeout    time.Duration
	log        zerolog.Logger
	onExchange func(Outcome)
	closed     atomic.Bool
	done       chan struct{}

	mu     sync.Mutex
	active net.Conn // connection being served, nil between exchanges
}

// New builds a server without binding a socket. Exchange can be driven
// directly on it.
func New(cfg config.ServerConfig, handlers *handler.Set, opts ...Option) *Server {
	if handlers == nil {
		handlers = handler.Default()
	}
	budget := cfg.ReadBudget
	if budget <= 0 {
		budget = request.DefaultReadBudget
	}

	s := &Server{
		handlers:   handlers,
		readBudget: budget,
		timeout:    cfg.Timeout(),
		log:        logging.WithComponent("server"),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve binds to the configured address and starts the accept loop in the
// background.
func Serve(cfg config.ServerConfig, handlers *handler.Set, opts ...Option) (*Server, error) {
	s := New(cfg, handlers, opts...)

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", cfg.Addr(), err)
	}
	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("binding")

	go s.listen()

	return s, nil
}

// Addr reports the bound address, or nil if the server was never bound.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, cuts short a read that is still waiting on the
// client and waits for the exchange in flight to finish. A server that was
// never bound has nothing to close.
func (s *Server) Close() error {
	if s.listener == nil || s.closed.Swap(true) {
		return nil
	}
	err := s.listener.Close()

	s.mu.Lock()
	if s.active != nil {
		if derr := s.active.SetReadDeadline(time.Now()); derr != nil {
			s.active.Close()
		}
	}
	s.mu.Unlock()

	<-s.done
	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.active = conn
	return true
}

func (s *Server) untrack() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

// listen is the main accept loop. each connection is served to completion
// before the next Accept.
func (s *Server) listen() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.log.Info().Msg("listener closed, server shutting down.")
				return
			}
			s.log.Error().Err(err).Msg("error accepting connection")
			continue
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	if s.timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			s.log.Warn().Err(err).Msg("error setting read deadline")
		}
	}

	// tracked after the deadline is set so Close always has the last word
	if !s.track(conn) {
		return
	}
	defer s.untrack()

	outcome := s.Exchange(conn)

	event := s.log.Info()
	if outcome.Kind != KindOK {
		event = s.log.Error().AnErr("cause", outcome.Err)
	}
	if outcome.WriteErr != nil {
		event = event.AnErr("write_error", outcome.WriteErr)
	}
	event.
		Str("exchange", outcome.ID).
		Str("remote", conn.RemoteAddr().String()).
		Str("method", outcome.Method).
		Int("status", int(outcome.StatusCode)).
		Stringer("kind", outcome.Kind).
		Msg("exchange finished")

	if s.onExchange != nil {
		s.onExchange(outcome)
	}
}

// Exchange reads one request from rw, dispatches it and writes the response.
// Every failure before the response is written becomes a 500.
func (s *Server) Exchange(rw io.ReadWriter) Outcome {
	out := Outcome{ID: uuid.New().String()}
	log := s.log.With().Str("exchange", out.ID).Logger()

	// 1. parse the request
	req, err := request.RequestFromReader(rw, s.readBudget)
	if err != nil {
		return s.fail(rw, out, KindParse, err)
	}
	out.Method = req.RequestLine.Method
	log.Debug().
		Str("method", req.RequestLine.Method).
		Str("version", req.RequestLine.HTTPVersion).
		Interface("headers", req.Headers).
		Str("body", req.Body).
		Msg("request")

	// 2. dispatch by method
	result, err := s.handlers.Dispatch(req)
	if err != nil {
		if errors.Is(err, handler.ErrUnknownMethod) {
			return s.fail(rw, out, KindUnknownMethod, err)
		}
		return s.fail(rw, out, KindHandler, err)
	}

	// 3. encode before touching the connection so a bad payload can still 500
	body, err := response.Encode(result.Payload)
	if err != nil {
		return s.fail(rw, out, KindEncode, err)
	}
	log.Debug().Int("status", int(result.StatusCode)).RawJSON("payload", body).Msg("response")

	// 4. write the response
	out.StatusCode = result.StatusCode
	if _, err := response.WriteBytes(rw, result.StatusCode, response.ContentTypeFor(result.Payload), body); err != nil {
		out.Kind = KindWrite
		out.Err = err
		out.WriteErr = err
	}
	return out
}

// fail writes the blanket 500 response carrying the error text.
func (s *Server) fail(w io.Writer, out Outcome, kind Kind, err error) Outcome {
	out.Kind = kind
	out.Err = err
	out.StatusCode = response.StatusInternalServerError

	payload := map[string]string{"Error": err.Error()}
	if _, werr := response.Write(w, response.StatusInternalServerError, payload); werr != nil {
		out.WriteErr = werr
	}
	return out
}
