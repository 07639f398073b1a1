package protocol

import (
	"errors"
	"fmt"

	"github.com/dcrodman/netmanager/internal/core/bytes"
)

// HeaderSize is the length in bytes of the frame header.
const HeaderSize = 4

// MaxFrameSize is the largest frame the header can describe.
const MaxFrameSize = 0xFFFF

// ErrMalformedFrame is returned for frames that can't be decoded. Frames
// like this are dropped by the receiver and never reach a handler.
var ErrMalformedFrame = errors.New("malformed frame")

// Header precedes every frame. Size counts the whole frame, header included.
type Header struct {
	Size uint16
	Type MsgType
}

// Encode prepends a header to body. The result is never empty.
func Encode(msgType MsgType, body []byte) ([]byte, error) {
	size := HeaderSize + len(body)
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds maximum of %d", size, MaxFrameSize)
	}

	header, _ := bytes.BytesFromStruct(&Header{Size: uint16(size), Type: msgType})
	frame := make([]byte, 0, size)
	frame = append(frame, header...)
	return append(frame, body...), nil
}

// Decode splits frame into its message type and body. The body aliases frame.
func Decode(frame []byte) (MsgType, []byte, error) {
	if len(frame) < HeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedFrame, len(frame))
	}

	var header Header
	if err := bytes.StructFromBytes(frame[:HeaderSize], &header); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if int(header.Size) != len(frame) {
		return 0, nil, fmt.Errorf("%w: header declares %d bytes, got %d", ErrMalformedFrame, header.Size, len(frame))
	}
	return header.Type, frame[HeaderSize:], nil
}
