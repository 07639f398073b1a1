package network

import (
	"fmt"

	"github.com/dcrodman/netmanager/internal/protocol"
)

// Link is the transport-facing side of a remote connection.
type Link interface {
	Write(frame []byte) error
	Close() error
}

// Remote is a connection backed by a network transport.
type Remote struct {
	connection
	link Link
}

func NewRemote(id int, address string, role Role, link Link, opts Options) *Remote {
	r := &Remote{link: link}
	r.connection = newConnection(r, id, address, role, opts)
	return r
}

func (r *Remote) Send(msgType protocol.MsgType, body []byte) error {
	frame, err := r.encode(msgType, body)
	if err != nil {
		return err
	}
	return r.SendBytes(frame)
}

func (r *Remote) SendBytes(frame []byte) error {
	if err := r.checkSendable(frame); err != nil {
		return err
	}
	if err := r.link.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportRejected, err)
	}
	return nil
}

func (r *Remote) Disconnect() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.link.Close()
}

// MarkClosed records that the transport already dropped the connection.
func (r *Remote) MarkClosed() {
	r.closed = true
}
