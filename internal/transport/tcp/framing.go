package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// lengthPrefixSize is the size of the little-endian length written before each frame.
const lengthPrefixSize = 2

const maxFrameSize = 0xFFFF

// readFrame is a blocking call that only returns once the peer has sent a
// complete frame. buffer is grown if the frame doesn't fit; the returned
// slice is a fresh copy the caller can keep.
func readFrame(conn net.Conn, buffer []byte) ([]byte, []byte, error) {
	if err := readFull(conn, buffer[:lengthPrefixSize]); err != nil {
		return nil, buffer, err
	}
	size := int(binary.LittleEndian.Uint16(buffer[:lengthPrefixSize]))
	if size == 0 {
		return nil, buffer, errors.New("peer sent a zero-length frame")
	}

	// Grow the receive buffer if they send us a frame bigger than its current capacity.
	if size > cap(buffer) {
		buffer = make([]byte, size)
	}
	if err := readFull(conn, buffer[:size]); err != nil {
		return nil, buffer, err
	}

	frame := make([]byte, size)
	copy(frame, buffer[:size])
	return frame, buffer, nil
}

func readFull(conn net.Conn, buffer []byte) error {
	if _, err := io.ReadFull(conn, buffer); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	return nil
}

// writeFrame writes the length prefix and frame until everything has been sent.
func writeFrame(conn net.Conn, frame []byte) error {
	if len(frame) == 0 || len(frame) > maxFrameSize {
		return fmt.Errorf("invalid frame length %d", len(frame))
	}

	data := make([]byte, lengthPrefixSize+len(frame))
	binary.LittleEndian.PutUint16(data, uint16(len(frame)))
	copy(data[lengthPrefixSize:], frame)

	for sent := 0; sent < len(data); {
		n, err := conn.Write(data[sent:])
		if err != nil {
			return fmt.Errorf("failed to send to %v: %w", conn.RemoteAddr(), err)
		}
		sent += n
	}
	return nil
}
