package protocol

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidSceneName is returned when a Scene message doesn't carry valid UTF-8.
var ErrInvalidSceneName = errors.New("scene name is not valid UTF-8")

const (
	fieldSlot  protowire.Number = 1
	fieldExtra protowire.Number = 2
	fieldCode  protowire.Number = 1
	fieldName  protowire.Number = 1
)

// AddPlayerMessage asks the server to create a player object in a slot.
type AddPlayerMessage struct {
	PlayerControllerID int16
	// Optional data handed through to the add-player hook.
	MsgData []byte
}

// RemovePlayerMessage asks the server to destroy the player in a slot.
type RemovePlayerMessage struct {
	PlayerControllerID int16
}

// ErrorMessage carries a transport or application error code.
type ErrorMessage struct {
	ErrorCode int32
}

// SceneMessage tells a client which scene the server is running.
type SceneMessage struct {
	Name string
}

func (m *AddPlayerMessage) Marshal() []byte {
	b := protowire.AppendTag(nil, fieldSlot, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.PlayerControllerID)))
	if len(m.MsgData) > 0 {
		b = protowire.AppendTag(b, fieldExtra, protowire.BytesType)
		b = protowire.AppendBytes(b, m.MsgData)
	}
	return b
}

func (m *AddPlayerMessage) Unmarshal(b []byte) error {
	*m = AddPlayerMessage{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSlot && typ == protowire.VarintType:
			v, n, err := consumeSigned(b, math.MinInt16, math.MaxInt16)
			m.PlayerControllerID = int16(v)
			return n, err
		case num == fieldExtra && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.MsgData = append([]byte(nil), v...)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *RemovePlayerMessage) Marshal() []byte {
	b := protowire.AppendTag(nil, fieldSlot, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.PlayerControllerID)))
}

func (m *RemovePlayerMessage) Unmarshal(b []byte) error {
	*m = RemovePlayerMessage{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldSlot && typ == protowire.VarintType {
			v, n, err := consumeSigned(b, math.MinInt16, math.MaxInt16)
			m.PlayerControllerID = int16(v)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *ErrorMessage) Marshal() []byte {
	b := protowire.AppendTag(nil, fieldCode, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(m.ErrorCode)))
}

func (m *ErrorMessage) Unmarshal(b []byte) error {
	*m = ErrorMessage{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldCode && typ == protowire.VarintType {
			v, n, err := consumeSigned(b, math.MinInt32, math.MaxInt32)
			m.ErrorCode = int32(v)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func (m *SceneMessage) Marshal() []byte {
	b := protowire.AppendTag(nil, fieldName, protowire.BytesType)
	return protowire.AppendString(b, NormalizeSceneName(m.Name))
}

func (m *SceneMessage) Unmarshal(b []byte) error {
	*m = SceneMessage{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldName && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if !utf8.Valid(v) {
				return 0, ErrInvalidSceneName
			}
			m.Name = NormalizeSceneName(string(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// NormalizeSceneName puts name in Unicode NFC form so that scene names coming
// from different peers compare equal when they render the same.
func NormalizeSceneName(name string) string {
	return norm.NFC.String(name)
}

// consumeSigned reads a zigzag varint that must fit in [lo, hi].
func consumeSigned(b []byte, lo, hi int64) (int64, int, error) {
	raw, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, n, nil
	}
	v := protowire.DecodeZigZag(raw)
	if v < lo || v > hi {
		return 0, 0, fmt.Errorf("%w: value %d outside [%d, %d]", ErrMalformedFrame, v, lo, hi)
	}
	return v, n, nil
}

// walkFields iterates over the fields of a protowire-encoded body. fn consumes
// the value of each field and returns the number of bytes it used.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
