// Package tcp implements the transport interfaces over plain TCP sockets.
// Every frame is preceded by a two byte little-endian length.
package tcp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/transport"
)

// Server accepts TCP connections and reads frames from each of them on a
// dedicated goroutine.
type Server struct {
	Logger logrus.FieldLogger

	mu             sync.RWMutex
	listener       *net.TCPListener
	clients        map[int]*net.TCPConn
	nextID         int
	maxConnections int

	events chan transport.Event
	wg     sync.WaitGroup
}

func NewServer(logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		Logger:  logger,
		clients: make(map[int]*net.TCPConn),
		events:  make(chan transport.Event, transport.EventQueueSize),
	}
}

// Listen opens a TCP socket and starts accepting connections in the background.
func (s *Server) Listen(host string, port int, maxConnections int) error {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("error listening on socket: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.maxConnections = maxConnections
	s.mu.Unlock()

	s.Logger.Infof("waiting for connections on %v", listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the address the server is listening on, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop is purely responsible for accepting new connections and
// spinning off goroutines to read from them.
func (s *Server) acceptLoop(listener *net.TCPListener) {
	defer s.wg.Done()

	for {
		conn, err := listener.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Logger.Warnf("failed to accept connection: %v", err)
			continue
		}

		id, err := s.addClient(conn)
		if err != nil {
			s.Logger.Infof("rejected connection from %v: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		s.events <- transport.Event{Type: transport.Connected, ConnID: id, Address: conn.RemoteAddr().String()}

		s.wg.Add(1)
		go s.readLoop(id, conn)
	}
}

// addClient registers conn unless the server is full or shutting down. Once
// Shutdown has taken the listener no connection is added, so every client it
// closes is one it saw.
func (s *Server) addClient(conn *net.TCPConn) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return 0, transport.ErrNotActive
	}
	if len(s.clients) >= s.maxConnections {
		return 0, transport.ErrServerFull
	}
	s.nextID++
	s.clients[s.nextID] = conn
	return s.nextID, nil
}

// readLoop only returns once the connection has closed.
func (s *Server) readLoop(id int, conn *net.TCPConn) {
	defer s.wg.Done()
	defer s.closeConnectionAndRecover(id, conn)

	buffer := make([]byte, 2048)
	for {
		var (
			frame []byte
			err   error
		)
		frame, buffer, err = readFrame(conn, buffer)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.Logger.Warnf("error reading from %v: %v", conn.RemoteAddr(), err)
			}
			return
		}
		s.events <- transport.Event{Type: transport.Data, ConnID: id, Data: frame}
	}
}

// Catch any panics, disconnect the client, and remove them from the list
// regardless of the state of the connection.
func (s *Server) closeConnectionAndRecover(id int, conn *net.TCPConn) {
	if err := recover(); err != nil {
		s.Logger.Errorf("error in client communication: %v: %v\n%s", conn.RemoteAddr(), err, debug.Stack())
	}

	_ = conn.Close()

	s.mu.Lock()
	_, known := s.clients[id]
	delete(s.clients, id)
	s.mu.Unlock()

	if known {
		s.events <- transport.Event{Type: transport.Disconnected, ConnID: id, Address: conn.RemoteAddr().String()}
	}
}

func (s *Server) Send(connID int, data []byte) error {
	s.mu.RLock()
	conn, ok := s.clients[connID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", transport.ErrUnknownConnection, connID)
	}
	return writeFrame(conn, data)
}

// Disconnect closes a client connection. The Disconnected event is still
// delivered once its read loop exits.
func (s *Server) Disconnect(connID int) error {
	s.mu.RLock()
	conn, ok := s.clients[connID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", transport.ErrUnknownConnection, connID)
	}
	return conn.Close()
}

func (s *Server) Receive() (transport.Event, bool) {
	select {
	case e := <-s.events:
		return e, true
	default:
		return transport.Event{}, false
	}
}

// Shutdown stops accepting connections and closes every client.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	var conns []*net.TCPConn
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if listener == nil {
		return transport.ErrNotActive
	}
	err := listener.Close()
	for _, c := range conns {
		_ = c.Close()
	}

	// Read loops may be blocked handing over their last event.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			s.drain()
			return err
		case <-s.events:
		}
	}
}

func (s *Server) drain() {
	for {
		if _, ok := s.Receive(); !ok {
			return
		}
	}
}
