// Package network implements the connection abstraction shared by the server
// and client halves of a session. Remote connections go through a transport;
// loopback connections hand frames straight to their in-process peer so a
// single process can be both server and client.
package network

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/protocol"
)

var (
	// ErrEmptyPayload is returned when asked to send a zero-length frame.
	ErrEmptyPayload = errors.New("cannot send zero bytes")
	// ErrTransportRejected is returned when the transport refuses a frame.
	ErrTransportRejected = errors.New("transport rejected frame")
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")
)

// Role says which end of the conversation a connection object represents.
type Role int

const (
	// ToClient is the server's handle for one of its clients.
	ToClient Role = iota
	// ToServer is a client's handle for the server.
	ToServer
)

func (r Role) String() string {
	if r == ToServer {
		return "to-server"
	}
	return "to-client"
}

// Connection is a bidirectional message channel.
type Connection interface {
	ID() int
	Address() string
	Role() Role

	// Send frames body as msgType and sends it.
	Send(msgType protocol.MsgType, body []byte) error
	// SendBytes sends an already encoded frame. Empty frames are rejected.
	SendBytes(frame []byte) error
	// Receive decodes an incoming frame and hands it to the dispatcher.
	Receive(frame []byte) error
	// Disconnect closes the connection. Further sends fail.
	Disconnect() error

	IsReady() bool
	SetReady(ready bool)

	Dispatcher() *Dispatcher
	Players() *PlayerTable
}

// FrameTracer observes every frame crossing a connection.
type FrameTracer interface {
	TraceFrame(direction string, conn Connection, frame []byte)
}

// Options configures a new connection.
type Options struct {
	Logger logrus.FieldLogger
	Tracer FrameTracer
}

// connection holds the state shared by every Connection implementation.
type connection struct {
	self       Connection
	id         int
	address    string
	role       Role
	ready      bool
	closed     bool
	dispatcher *Dispatcher
	players    PlayerTable
	logger     logrus.FieldLogger
	tracer     FrameTracer
}

func newConnection(self Connection, id int, address string, role Role, opts Options) connection {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithFields(logrus.Fields{"conn_id": id, "address": address})

	return connection{
		self:       self,
		id:         id,
		address:    address,
		role:       role,
		dispatcher: NewDispatcher(logger),
		logger:     logger,
		tracer:     opts.Tracer,
	}
}

func (c *connection) ID() int                 { return c.id }
func (c *connection) Address() string         { return c.address }
func (c *connection) Role() Role              { return c.role }
func (c *connection) IsReady() bool           { return c.ready }
func (c *connection) SetReady(ready bool)     { c.ready = ready }
func (c *connection) Dispatcher() *Dispatcher { return c.dispatcher }
func (c *connection) Players() *PlayerTable   { return &c.players }

func (c *connection) String() string {
	return fmt.Sprintf("connection(%d, %s)", c.id, c.address)
}

// encode builds the frame for Send.
func (c *connection) encode(msgType protocol.MsgType, body []byte) ([]byte, error) {
	frame, err := protocol.Encode(msgType, body)
	if err != nil {
		return nil, fmt.Errorf("encoding %v for %s: %w", msgType, c.address, err)
	}
	return frame, nil
}

// checkSendable applies the rules every outgoing frame is subject to.
func (c *connection) checkSendable(frame []byte) error {
	if c.closed {
		return ErrConnectionClosed
	}
	if len(frame) == 0 {
		c.logger.Error("cannot send zero bytes")
		return ErrEmptyPayload
	}
	c.trace("send", frame)
	return nil
}

func (c *connection) Receive(frame []byte) error {
	c.trace("recv", frame)

	msgType, body, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Warnf("dropping frame: %v", err)
		return err
	}
	c.dispatcher.Dispatch(&Envelope{Type: msgType, Payload: body, Conn: c.self})
	return nil
}

func (c *connection) trace(direction string, frame []byte) {
	if c.tracer != nil {
		c.tracer.TraceFrame(direction, c.self, frame)
	}
}
