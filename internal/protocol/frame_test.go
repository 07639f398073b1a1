package protocol

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	frame, err := Encode(Scene, []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	want := []byte{0x06, 0x00, 0x27, 0x00, 0xAA, 0xBB}
	if diff := cmp.Diff(want, frame); diff != "" {
		t.Errorf("Encode() produced the wrong frame; diff:\n%s", diff)
	}
}

func TestEncode_EmptyBodyIsNotEmptyFrame(t *testing.T) {
	frame, err := Encode(Ready, nil)
	if err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}
	if len(frame) != HeaderSize {
		t.Errorf("expected a header-only frame of %d bytes, got %d", HeaderSize, len(frame))
	}
}

func TestEncode_TooLarge(t *testing.T) {
	if _, err := Encode(MsgType(100), make([]byte, MaxFrameSize)); err == nil {
		t.Error("expected Encode() to reject an oversized body")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		wantType MsgType
		wantBody []byte
		wantErr  error
	}{
		{
			name:     "header only",
			frame:    []byte{0x04, 0x00, 0x23, 0x00},
			wantType: Ready,
			wantBody: []byte{},
		},
		{
			name:     "gameplay frame",
			frame:    []byte{0x05, 0x00, 0x64, 0x00, 0x01},
			wantType: MsgType(100),
			wantBody: []byte{0x01},
		},
		{
			name:    "shorter than header",
			frame:   []byte{0x04, 0x00},
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "size mismatch",
			frame:   []byte{0x08, 0x00, 0x23, 0x00},
			wantErr: ErrMalformedFrame,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgType, body, err := Decode(tt.frame)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if msgType != tt.wantType {
				t.Errorf("Decode() type = %v, want %v", msgType, tt.wantType)
			}
			if diff := cmp.Diff(tt.wantBody, body); diff != "" {
				t.Errorf("Decode() body mismatch; diff:\n%s", diff)
			}
		})
	}
}

func TestMsgType_String(t *testing.T) {
	if got := AddPlayer.String(); got != "AddPlayer" {
		t.Errorf("String() = %s, want AddPlayer", got)
	}
	if got := MsgType(200).String(); got != "MsgType(200)" {
		t.Errorf("String() = %s, want MsgType(200)", got)
	}
	if !Scene.IsSystem() || MsgType(48).IsSystem() {
		t.Error("IsSystem() misclassified a tag")
	}
}
