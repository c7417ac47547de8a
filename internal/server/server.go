// Package server accepts TCP connections and answers one request on each.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/SuperTylerX/COMP445-A2/internal/config"
	"github.com/SuperTylerX/COMP445-A2/internal/filelock"
	"github.com/SuperTylerX/COMP445-A2/internal/handler"
	"github.com/SuperTylerX/COMP445-A2/internal/mimetype"
	"github.com/SuperTylerX/COMP445-A2/internal/protocol"
	"github.com/SuperTylerX/COMP445-A2/internal/resolve"
)

type Server struct {
	listener   net.Listener
	resolver   *resolve.Resolver
	dispatcher *handler.Dispatcher
	maxBody    int64
	log        *slog.Logger

	// mu orders conns.Add in the accept loop against Stop's Wait.
	mu       sync.Mutex
	stopping bool
	conns    sync.WaitGroup
}

// New resolves the serve root and starts listening on cfg's port. Connections
// are not accepted until Start or Serve is called.
func New(cfg config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	resolver, err := resolve.New(cfg.Directory)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	return &Server{
		listener: listener,
		resolver: resolver,
		dispatcher: &handler.Dispatcher{
			Locks: filelock.NewController(log),
			Read: filelock.Policy{
				Retries: cfg.ReadRetries,
				Backoff: cfg.RetryInterval,
				Settle:  cfg.ReadDelay,
			},
			Write:      filelock.Policy{Settle: cfg.WriteDelay},
			MIME:       mimetype.Lookup,
			ExactReads: cfg.ExactReads,
			Log:        log,
		},
		maxBody: cfg.MaxBody,
		log:     log,
	}, nil
}

// --- Lifecycle ---

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Root returns the canonical serve root.
func (s *Server) Root() string {
	return s.resolver.Root()
}

// Start runs the accept loop in the background.
func (s *Server) Start() {
	go func() {
		if err := s.Serve(); err != nil {
			s.log.Error("accept loop stopped", "error", err)
		}
	}()
}

// Serve accepts connections until Stop is called, handling each on its own
// goroutine. There is no limit on the number of connections in flight.
func (s *Server) Serve() error {
	s.log.Info("listening", "addr", s.listener.Addr().String(), "root", s.resolver.Root())
	for {
		// 1. Wait for the next client.
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isStopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept", "error", err)
			continue
		}

		// 2. Register it, unless Stop got there first.
		if !s.track() {
			conn.Close()
			return nil
		}

		// 3. Serve it on its own goroutine.
		go s.handleConnection(conn)
	}
}

// Stop closes the listener and waits for open connections to finish. It may
// be called more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	first := !s.stopping
	s.stopping = true
	s.mu.Unlock()

	if first {
		s.listener.Close()
	}
	s.conns.Wait()
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// track adds a connection to the wait group. It fails once Stop has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.conns.Add(1)
	return true
}

// --- Connection Handling ---

func (s *Server) handleConnection(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	s.log.Debug("connection accepted", "remote", conn.RemoteAddr().String())
	s.ServeConn(conn)
}

// ServeConn reads one request from rw and writes one response back. A
// transport failure while reading aborts without a response.
func (s *Server) ServeConn(rw io.ReadWriter) {
	// 1. Read the request.
	req, err := protocol.NewDecoder(rw, s.maxBody).Decode()
	switch {
	case errors.Is(err, protocol.ErrBodyTooLarge):
		s.log.Warn("rejecting request", "error", err)
		s.send(rw, handler.PayloadTooLarge())
		return
	case errors.Is(err, io.EOF):
		s.log.Debug("connection closed before a request arrived")
		return
	case err != nil:
		s.log.Warn("read request", "error", err)
		return
	}

	s.log.Debug("request", "method", req.Method, "path", req.Path,
		"headers", len(req.Headers), "body", humanize.Bytes(uint64(len(req.Body))))

	// 2. Resolve the path and build the response.
	target := s.resolver.Resolve(req.Path)
	resp := s.dispatch(req, target)

	// 3. Send it back.
	s.send(rw, resp)
}

func (s *Server) dispatch(req *protocol.Request, target resolve.Target) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", "method", req.Method, "path", req.Path, "panic", r)
			resp = handler.InternalError()
		}
	}()
	return s.dispatcher.Dispatch(req, target)
}

func (s *Server) send(w io.Writer, resp *protocol.Response) {
	if _, err := resp.WriteTo(w); err != nil {
		s.log.Warn("write response", "status", resp.Status, "error", err)
		return
	}
	s.log.Debug("response", "status", resp.Status, "body", humanize.Bytes(uint64(len(resp.Body))))
}
