package network

import (
	"github.com/dcrodman/netmanager/internal/protocol"
)

const (
	localClientAddress = "localClient"
	localServerAddress = "localServer"
)

// Loopback is one half of an in-process connection pair. Sending on it
// invokes the peer's dispatcher directly, before SendBytes returns, so a
// handler that replies re-enters the sender's dispatch path on the same stack.
type Loopback struct {
	connection
	peer *Loopback
}

// NewLoopbackPair returns the server's connection to the local client and the
// local client's connection to the server, wired to each other.
func NewLoopbackPair(id int, opts Options) (toClient *Loopback, toServer *Loopback) {
	toClient = &Loopback{}
	toClient.connection = newConnection(toClient, id, localClientAddress, ToClient, opts)
	toServer = &Loopback{}
	toServer.connection = newConnection(toServer, id, localServerAddress, ToServer, opts)

	toClient.peer = toServer
	toServer.peer = toClient
	return toClient, toServer
}

// Peer returns the other half of the pair.
func (l *Loopback) Peer() *Loopback { return l.peer }

func (l *Loopback) Send(msgType protocol.MsgType, body []byte) error {
	frame, err := l.encode(msgType, body)
	if err != nil {
		return err
	}
	return l.SendBytes(frame)
}

func (l *Loopback) SendBytes(frame []byte) error {
	if err := l.checkSendable(frame); err != nil {
		return err
	}
	return l.peer.Receive(frame)
}

// Disconnect closes both halves of the pair.
func (l *Loopback) Disconnect() error {
	l.closed = true
	l.peer.closed = true
	return nil
}
