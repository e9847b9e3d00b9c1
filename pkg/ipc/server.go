package ipc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/model"
	"github.com/rrflink/sbcd/pkg/scheduler"
)

// CodeSubmitter is the channel scheduler's submission surface, as seen
// by Command and CodeStream mode.
type CodeSubmitter interface {
	Submit(code *gcode.Code)
}

// InterceptRegistry lets Intercept-mode connections register and
// withdraw themselves as a scheduler.Interceptor. A
// *scheduler.InterceptorRegistry, shared with the Scheduler via
// SetInterceptorRegistry, implements this directly; tests may use a
// stub.
type InterceptRegistry interface {
	RegisterInterceptor(i scheduler.Interceptor)
	UnregisterInterceptor(i scheduler.Interceptor)
}

// Server is the IPC server: it accepts connections on a local stream
// socket and negotiates a mode per connection.
type Server struct {
	socketPath         string
	socketPollInterval time.Duration
	log                *logging.Logger
	store              *model.Store
	sched              CodeSubmitter
	intercepts         InterceptRegistry

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Connection]struct{}
}

// New returns a Server that will listen on socketPath once Serve runs.
// pollInterval is the Subscribe-mode patch-batching window
// (ipc.socket_poll_interval).
func New(socketPath string, pollInterval time.Duration, log *logging.Logger, store *model.Store, sched CodeSubmitter, intercepts InterceptRegistry) *Server {
	return &Server{
		socketPath:         socketPath,
		socketPollInterval: pollInterval,
		log:                log,
		store:              store,
		sched:              sched,
		intercepts:         intercepts,
		conns:              map[*Connection]struct{}{},
	}
}

// Serve is T2: it binds the socket, accepts connections until ctx is
// cancelled, and spawns one goroutine per connection. It removes any
// stale socket file left behind by a prior crashed instance before
// binding.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("ipc accept failed", logging.F("err", err))
			continue
		}
		conn := newConnection(raw)
		s.trackConn(conn)
		go func() {
			defer s.untrackConn(conn)
			defer conn.Close()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) trackConn(c *Connection) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) handleConnection(ctx context.Context, conn *Connection) {
	id, err := newConnectionID()
	if err != nil {
		s.log.Error("ipc: generating connection id", logging.F("err", err))
		return
	}

	if err := conn.WriteLine(ServerInitMessage{Version: CurrentProtocolVersion, ID: id}); err != nil {
		return
	}

	var init ClientInitMessage
	if err := conn.ReadLine(&init); err != nil {
		return
	}

	if init.Version < MinimumProtocolVersion || init.Version > CurrentProtocolVersion {
		conn.WriteLine(errorReply("IncompatibleVersion",
			fmt.Sprintf("server supports [%d, %d], client requested %d",
				MinimumProtocolVersion, CurrentProtocolVersion, init.Version)))
		return
	}

	proc, err := s.newProcessor(init)
	if err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			conn.WriteLine(errorReply(ce.Type, ce.Message))
		}
		return
	}

	log := s.log.With(fmt.Sprintf("ipc:%s:%s", init.Mode, id))
	if err := proc.Process(ctx, conn, init); err != nil && ctx.Err() == nil {
		log.Debug("ipc connection ended", logging.F("err", err))
	}
}

func (s *Server) newProcessor(init ClientInitMessage) (Processor, error) {
	switch init.Mode {
	case ModeCommand, ModePluginService:
		return &commandProcessor{store: s.store, sched: s.sched, mode: init.Mode}, nil
	case ModeSubscribe:
		return &subscribeProcessor{store: s.store, socketPollInterval: s.socketPollInterval}, nil
	case ModeIntercept:
		return &interceptProcessor{intercepts: s.intercepts}, nil
	case ModeCodeStream:
		return &codeStreamProcessor{sched: s.sched}, nil
	default:
		return nil, newClientError("InvalidInitPayload", "unsupported mode %q", init.Mode)
	}
}

func newConnectionID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Close closes the listener and every tracked connection, for an
// orderly shutdown alongside the process-wide cancellation token.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	return nil
}

// Processor implements one mode's connection lifecycle.
type Processor interface {
	Process(ctx context.Context, conn *Connection, init ClientInitMessage) error
}
