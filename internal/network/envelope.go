package network

import (
	"github.com/dcrodman/netmanager/internal/protocol"
)

// Envelope is a decoded message waiting to be handled.
type Envelope struct {
	Type    protocol.MsgType
	Payload []byte
	// Conn is the connection the message arrived on. Lookup only; the
	// envelope doesn't keep the connection alive.
	Conn Connection
}

// ReadMessage decodes the payload into msg.
func (e *Envelope) ReadMessage(msg interface{ Unmarshal([]byte) error }) error {
	return msg.Unmarshal(e.Payload)
}
