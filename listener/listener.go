// Package listener implements the Listener: binds TCP on (listen_ip, port),
// optionally with SO_REUSEPORT so M worker processes can each bind the same
// address and let the kernel distribute accepts, and hands every accepted
// socket to a fresh per-connection handler.
package listener

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Handler serves one accepted connection to completion.
type Handler func(conn net.Conn)

// Server owns a single bound listener and the goroutines accepting on it.
type Server struct {
	ln net.Listener
	wg sync.WaitGroup
}

// Listen binds (listenIP, port). When reuseport is true, SO_REUSEPORT is
// set on the socket before bind via a ListenConfig.Control callback, so
// multiple processes (or multiple calls to Listen within one process) can
// share the address; the kernel load-balances accepts across them.
func Listen(listenIP string, port int, reuseport bool) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", listenIP, port)
	lc := net.ListenConfig{}
	if reuseport {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		}
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", addr, err)
	}
	return &Server{ln: ln}, nil
}

// Serve accepts connections until Close is called, dispatching each to its
// own goroutine running handle. Serve blocks until the listener is closed
// and every in-flight handler has returned.
func (s *Server) Serve(handle Handler) error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.wg.Wait()
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handle(conn)
		}()
	}
}

// Close stops accepting new connections. In-flight handlers are not
// interrupted; Serve returns once they all finish.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Addr reports the bound address, useful when port is 0 at Listen time.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func isClosedErr(err error) bool {
	var netErr *net.OpError
	if e, ok := err.(*net.OpError); ok {
		netErr = e
	}
	if netErr == nil {
		return false
	}
	return netErr.Err.Error() == "use of closed network connection"
}
