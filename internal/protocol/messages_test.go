package protocol

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestAddPlayerMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  AddPlayerMessage
	}{
		{name: "slot only", msg: AddPlayerMessage{PlayerControllerID: 0}},
		{name: "negative slot", msg: AddPlayerMessage{PlayerControllerID: -1}},
		{name: "extra data", msg: AddPlayerMessage{PlayerControllerID: 3, MsgData: []byte("team=red")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got AddPlayerMessage
			if err := got.Unmarshal(tt.msg.Marshal()); err != nil {
				t.Fatalf("Unmarshal() returned an unexpected error: %v", err)
			}
			if diff := deep.Equal(tt.msg, got); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestAddPlayerMessage_SkipsUnknownFields(t *testing.T) {
	b := (&AddPlayerMessage{PlayerControllerID: 2}).Marshal()
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 1234)

	var got AddPlayerMessage
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal() returned an unexpected error: %v", err)
	}
	if got.PlayerControllerID != 2 {
		t.Errorf("PlayerControllerID = %d, want 2", got.PlayerControllerID)
	}
}

func TestRemovePlayerAndErrorMessages(t *testing.T) {
	var remove RemovePlayerMessage
	if err := remove.Unmarshal((&RemovePlayerMessage{PlayerControllerID: 7}).Marshal()); err != nil {
		t.Fatalf("RemovePlayerMessage.Unmarshal() error: %v", err)
	}
	if remove.PlayerControllerID != 7 {
		t.Errorf("PlayerControllerID = %d, want 7", remove.PlayerControllerID)
	}

	var errMsg ErrorMessage
	if err := errMsg.Unmarshal((&ErrorMessage{ErrorCode: -6}).Marshal()); err != nil {
		t.Fatalf("ErrorMessage.Unmarshal() error: %v", err)
	}
	if errMsg.ErrorCode != -6 {
		t.Errorf("ErrorCode = %d, want -6", errMsg.ErrorCode)
	}
}

func TestSceneMessage(t *testing.T) {
	// An e followed by a combining acute accent should normalize to the precomposed form.
	decomposed := "Cafe\u0301"
	var got SceneMessage
	if err := got.Unmarshal((&SceneMessage{Name: decomposed}).Marshal()); err != nil {
		t.Fatalf("Unmarshal() returned an unexpected error: %v", err)
	}
	if got.Name != "Caf\u00e9" {
		t.Errorf("Name = %q, want NFC form %q", got.Name, "Caf\u00e9")
	}
}

func TestSceneMessage_InvalidUTF8(t *testing.T) {
	b := protowire.AppendTag(nil, fieldName, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0xff, 0xfe})

	var got SceneMessage
	if err := got.Unmarshal(b); !errors.Is(err, ErrInvalidSceneName) {
		t.Errorf("Unmarshal() error = %v, want %v", err, ErrInvalidSceneName)
	}
}

func TestUnmarshal_Truncated(t *testing.T) {
	b := (&AddPlayerMessage{PlayerControllerID: 1, MsgData: []byte("abc")}).Marshal()

	var got AddPlayerMessage
	if err := got.Unmarshal(b[:len(b)-1]); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Unmarshal() error = %v, want %v", err, ErrMalformedFrame)
	}
}

func TestUnmarshal_OutOfRange(t *testing.T) {
	slotBody := func(v int64) []byte {
		b := protowire.AppendTag(nil, fieldSlot, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
	}
	tests := []struct {
		name string
		msg  interface{ Unmarshal([]byte) error }
		body []byte
	}{
		{name: "add player slot 65536", msg: &AddPlayerMessage{}, body: []byte{0x08, 0x80, 0x80, 0x08}},
		{name: "add player slot 65539", msg: &AddPlayerMessage{}, body: slotBody(65539)},
		{name: "add player slot below int16", msg: &AddPlayerMessage{}, body: slotBody(-32769)},
		{name: "remove player slot 40000", msg: &RemovePlayerMessage{}, body: slotBody(40000)},
		{name: "error code above int32", msg: &ErrorMessage{}, body: slotBody(1 << 32)},
		{name: "error code below int32", msg: &ErrorMessage{}, body: slotBody(-(1 << 31) - 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Unmarshal(tt.body); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("Unmarshal() error = %v, want %v", err, ErrMalformedFrame)
			}
		})
	}
}

func TestUnmarshal_RangeLimits(t *testing.T) {
	add := AddPlayerMessage{PlayerControllerID: 32767}
	var got AddPlayerMessage
	if err := got.Unmarshal(add.Marshal()); err != nil || got.PlayerControllerID != 32767 {
		t.Errorf("Unmarshal() = %d, %v; want 32767, nil", got.PlayerControllerID, err)
	}

	var errMsg ErrorMessage
	if err := errMsg.Unmarshal((&ErrorMessage{ErrorCode: -2147483648}).Marshal()); err != nil || errMsg.ErrorCode != -2147483648 {
		t.Errorf("Unmarshal() = %d, %v; want -2147483648, nil", errMsg.ErrorCode, err)
	}
}
