package localserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

const (
	// idleTimeout closes connections that send nothing.
	idleTimeout = 5 * time.Minute

	maxLineLength = 4096
)

// Server represents the local administration server.
type Server struct {
	path    string
	handler *Handler
	logger  logger.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  atomic.Bool
	wg       sync.WaitGroup

	// Cancelled on Shutdown so long-running commands stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server for socketPath.
func New(socketPath string, handler *Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		path:    socketPath,
		handler: handler,
		logger:  log,
		conns:   map[net.Conn]struct{}{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Listen creates the socket with owner-only permissions. A stale socket
// file from an earlier run is replaced.
func (s *Server) Listen() error {
	if fi, err := os.Lstat(s.path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("localserver: %s exists and is not a socket", s.path)
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("localserver: remove stale socket: %w", err)
		}
	}

	l, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("localserver: listen: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		l.Close()
		return fmt.Errorf("localserver: chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.running.Store(true)
	return nil
}

// Serve accepts connections until Shutdown. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("localserver: not listening")
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// ListenAndServe combines Listen and Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Addr returns the socket path.
func (s *Server) Addr() string {
	return s.path
}

// Shutdown stops accepting, cancels running commands and waits for
// connections to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.cancel()

	s.mu.Lock()
	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
	}
	// Idle readers would otherwise block until idleTimeout.
	for conn := range s.conns {
		conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if errors.Is(closeErr, net.ErrClosed) {
			closeErr = nil
		}
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineLength)
	w := bufio.NewWriter(conn)

	for {
		if !s.running.Load() {
			return
		}
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !isTimeout(err) {
				s.logger.Debug("admin connection closed", "error", err)
			}
			return
		}

		line := scanner.Text()
		s.logger.Info("admin command", "command", line)
		if err := s.handler.Execute(s.ctx, w, line); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
