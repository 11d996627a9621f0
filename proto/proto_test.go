package proto

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeJoinWorld(t *testing.T) {
	got, err := EncodeJoinWorld("main")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{'m', 'a', 'i', 'n', 0xDD, 0x63}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}

	if _, err := EncodeJoinWorld("世界"); !errors.Is(err, ErrWorldName) {
		t.Fatalf("expected ErrWorldName, got %v", err)
	}
}

func TestEncodeOutbound(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{
			name: "update player",
			got:  EncodeUpdatePlayer(UpdatePlayer{X: 1, Y: 2, JitterX: 3, JitterY: 20, Color: 0x112233, Tool: 5}),
			want: []byte{19, 0, 0, 0, 36, 0, 0, 0, 0x11, 0x22, 0x33, 5},
		},
		{
			name: "update player negative",
			got:  EncodeUpdatePlayer(UpdatePlayer{X: -1, Y: 0}),
			want: []byte{0xF0, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "set pixel",
			got:  EncodeSetPixel(SetPixel{X: 300, Y: -2, Color: 0xABCDEF}),
			want: []byte{0x2C, 0x01, 0, 0, 0xFE, 0xFF, 0xFF, 0xFF, 0xAB, 0xCD, 0xEF},
		},
		{
			name: "chunk request",
			got:  EncodeChunkRequest(-1, 2),
			want: []byte{0xFF, 0xFF, 0xFF, 0xFF, 2, 0, 0, 0},
		},
		{
			name: "rank verification",
			got:  EncodeRankVerification(2),
			want: []byte{2},
		},
	}
	for _, tt := range tests {
		if !bytes.Equal(tt.got, tt.want) {
			t.Fatalf("%s: got % x want % x", tt.name, tt.got, tt.want)
		}
	}
}

func TestDecodeSessionFrames(t *testing.T) {
	msg, err := Decode([]byte{byte(OpSetID), 7, 0, 0, 0})
	if err != nil {
		t.Fatalf("decode set_id: %v", err)
	}
	if m, ok := msg.(SetID); !ok || m.ID != 7 {
		t.Fatalf("unexpected message: %#v", msg)
	}

	msg, err = Decode([]byte{byte(OpSetQuota), 10, 0, 2, 0})
	if err != nil {
		t.Fatalf("decode set_quota: %v", err)
	}
	if m, ok := msg.(SetQuota); !ok || m.Rate != 10 || m.Per != 2 {
		t.Fatalf("unexpected message: %#v", msg)
	}

	msg, err = Decode([]byte{byte(OpSetRank), 3})
	if err != nil {
		t.Fatalf("decode set_rank: %v", err)
	}
	if m, ok := msg.(SetRank); !ok || m.Rank != 3 {
		t.Fatalf("unexpected message: %#v", msg)
	}

	msg, err = Decode([]byte{byte(OpTeleport), 0xFF, 0xFF, 0xFF, 0xFF, 5, 0, 0, 0})
	if err != nil {
		t.Fatalf("decode teleport: %v", err)
	}
	if m, ok := msg.(Teleport); !ok || m.X != -1 || m.Y != 5 {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestDecodeWorldUpdate(t *testing.T) {
	frame := []byte{byte(OpWorldUpdate), 1}
	frame = append(frame, 9, 0, 0, 0, 32, 0, 0, 0, 48, 0, 0, 0, 1, 2, 3, 4)
	frame = append(frame, 2, 0)
	frame = append(frame, 4, 0, 0, 0, 10, 0, 0, 0, 11, 0, 0, 0, 0xFF, 0, 0)
	frame = append(frame, 5, 0, 0, 0, 0xF6, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0xFF)

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode world update: %v", err)
	}
	m, ok := msg.(WorldUpdate)
	if !ok {
		t.Fatalf("unexpected message: %#v", msg)
	}
	if len(m.Players) != 1 || m.Players[0] != (PlayerUpdate{ID: 9, X: 32, Y: 48, Color: 0x010203, Tool: 4}) {
		t.Fatalf("unexpected players: %+v", m.Players)
	}
	if len(m.Pixels) != 2 {
		t.Fatalf("unexpected pixel count: %d", len(m.Pixels))
	}
	if m.Pixels[0] != (PixelUpdate{ID: 4, X: 10, Y: 11, Color: 0xFF0000}) {
		t.Fatalf("unexpected pixel: %+v", m.Pixels[0])
	}
	if m.Pixels[1] != (PixelUpdate{ID: 5, X: -10, Y: 0, Color: 0x0000FF}) {
		t.Fatalf("unexpected pixel: %+v", m.Pixels[1])
	}
}

func TestDecodeChunkLoadKeepsPayload(t *testing.T) {
	payload := CompressChunk(false, make([]Color, ChunkSize*ChunkSize))
	frame := append([]byte{byte(OpChunkLoad), 2, 0, 0, 0, 0xFD, 0xFF, 0xFF, 0xFF}, payload...)

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode chunk load: %v", err)
	}
	m, ok := msg.(ChunkLoad)
	if !ok || m.X != 2 || m.Y != -3 {
		t.Fatalf("unexpected message: %#v", msg)
	}
	if !bytes.Equal(m.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"empty", nil, ErrEmptyFrame},
		{"unknown opcode", []byte{42}, ErrUnknownOpcode},
		{"set_id too long", []byte{byte(OpSetID), 1, 0, 0, 0, 0}, ErrInvalidLength},
		{"set_id too short", []byte{byte(OpSetID), 1}, ErrInvalidLength},
		{"teleport truncated", []byte{byte(OpTeleport), 1, 0, 0, 0}, ErrTruncated},
		{"quota truncated", []byte{byte(OpSetQuota), 1}, ErrTruncated},
		{"world update truncated", []byte{byte(OpWorldUpdate), 1, 0}, ErrTruncated},
	}
	for _, tt := range tests {
		if _, err := Decode(tt.frame); !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}
