// Package websocket implements the transport interfaces over WebSockets. Each
// binary message carries exactly one frame.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/transport"
)

// Path is the HTTP path clients upgrade on.
const Path = "/session"

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Server accepts WebSocket connections.
type Server struct {
	Logger logrus.FieldLogger

	upgrader websocket.Upgrader

	mu             sync.RWMutex
	httpServer     *http.Server
	listener       net.Listener
	clients        map[int]*wsConn
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
		Logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[int]*wsConn),
		events:  make(chan transport.Event, transport.EventQueueSize),
	}
}

func (s *Server) Listen(host string, port int, maxConnections int) error {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("error listening on socket: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handle)
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.maxConnections = maxConnections
	s.mu.Unlock()

	s.Logger.Infof("waiting for websocket connections on %v%s", listener.Addr(), Path)

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Errorf("websocket server stopped: %v", err)
		}
	}()
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	full := len(s.clients) >= s.maxConnections
	s.mu.RUnlock()
	if full {
		http.Error(w, "server is full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warnf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	id, err := s.addClient(conn)
	if err != nil {
		s.Logger.Infof("rejected connection from %s: %v", r.RemoteAddr, err)
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteMessage(websocket.CloseMessage, message)
		_ = conn.Close()
		return
	}

	s.events <- transport.Event{Type: transport.Connected, ConnID: id, Address: conn.RemoteAddr().String()}
	s.readLoop(id, conn)
}

// addClient registers conn unless the server is full or shutting down. Hijacked
// connections aren't tracked by http.Server, so after Shutdown has taken the
// server nothing may be added.
func (s *Server) addClient(conn *websocket.Conn) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return 0, transport.ErrNotActive
	}
	if len(s.clients) >= s.maxConnections {
		return 0, transport.ErrServerFull
	}
	s.nextID++
	s.clients[s.nextID] = &wsConn{conn: conn}
	s.wg.Add(1)
	return s.nextID, nil
}

func (s *Server) readLoop(id int, conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Logger.Warnf("error reading from %v: %v", conn.RemoteAddr(), err)
			}
			break
		}
		if messageType != websocket.BinaryMessage {
			s.Logger.Warnf("discarding non-binary message from %v", conn.RemoteAddr())
			continue
		}
		s.events <- transport.Event{Type: transport.Data, ConnID: id, Data: payload}
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
	c, ok := s.clients[connID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", transport.ErrUnknownConnection, connID)
	}
	return c.write(data)
}

func (s *Server) Disconnect(connID int) error {
	s.mu.RLock()
	c, ok := s.clients[connID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", transport.ErrUnknownConnection, connID)
	}
	return c.conn.Close()
}

func (s *Server) Receive() (transport.Event, bool) {
	select {
	case e := <-s.events:
		return e, true
	default:
		return transport.Event{}, false
	}
}

func (s *Server) Shutdown() error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.listener = nil
	var conns []*wsConn
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if httpServer == nil {
		return transport.ErrNotActive
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpServer.Shutdown(ctx)
	for _, c := range conns {
		_ = c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			for {
				if _, ok := s.Receive(); !ok {
					return err
				}
			}
		case <-s.events:
		}
	}
}
