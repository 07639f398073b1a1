// Package transport defines the byte-level network layer the session runs on.
// Implementations move frames between processes on their own goroutines and
// surface everything as events, which the session polls from its update loop.
package transport

import (
	"errors"
)

var (
	// ErrNotActive is returned when using a transport that isn't listening or connected.
	ErrNotActive = errors.New("transport is not active")
	// ErrUnknownConnection is returned for a connection ID the server doesn't know.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrServerFull is returned when a server already has maxConnections clients.
	ErrServerFull = errors.New("server is full")
)

type EventType int

const (
	Connected EventType = iota
	Data
	Disconnected
)

func (t EventType) String() string {
	switch t {
	case Connected:
		return "connected"
	case Data:
		return "data"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is something that happened on a connection. ConnID is 0 for client transports.
type Event struct {
	Type    EventType
	ConnID  int
	Address string
	Data    []byte
}

// Server accepts connections from remote clients.
type Server interface {
	// Listen starts accepting connections on host:port. At most maxConnections
	// clients are connected at once; extra connections are refused.
	Listen(host string, port int, maxConnections int) error
	Send(connID int, data []byte) error
	Disconnect(connID int) error
	// Receive returns the next pending event without blocking.
	Receive() (Event, bool)
	Shutdown() error
}

// Client connects to a remote server.
type Client interface {
	Connect(address string, port int) error
	Send(data []byte) error
	// Receive returns the next pending event without blocking.
	Receive() (Event, bool)
	Disconnect() error
}

// EventQueueSize bounds the events buffered between two polls.
const EventQueueSize = 1024
