// Package protocol defines the control-plane messages that drive the session
// state machine and the frame format they travel in. Gameplay messages share
// the frame format but their bodies are opaque to this package.
package protocol

import "fmt"

// MsgType is the tag identifying the kind of message carried by a frame.
type MsgType uint16

// Control-plane message tags. Values up to Highest are reserved for the
// session itself. Anything above it is passed through untouched.
const (
	Connect      MsgType = 32
	Disconnect   MsgType = 33
	Error        MsgType = 34
	Ready        MsgType = 35
	NotReady     MsgType = 36
	AddPlayer    MsgType = 37
	RemovePlayer MsgType = 38
	Scene        MsgType = 39

	Highest MsgType = 47
)

var msgTypeNames = map[MsgType]string{
	Connect:      "Connect",
	Disconnect:   "Disconnect",
	Error:        "Error",
	Ready:        "Ready",
	NotReady:     "NotReady",
	AddPlayer:    "AddPlayer",
	RemovePlayer: "RemovePlayer",
	Scene:        "Scene",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MsgType(%d)", uint16(t))
}

// IsSystem reports whether t is reserved for the session control plane.
func (t MsgType) IsSystem() bool {
	return t <= Highest
}
