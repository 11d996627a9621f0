package proto

import (
	"encoding/binary"
	"fmt"
)

// reader walks a little-endian payload and latches the first short read.
type reader struct {
	b   []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.b) {
		r.err = ErrTruncated
		return nil
	}
	p := r.b[r.pos : r.pos+n]
	r.pos += n
	return p
}

func (r *reader) u8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *reader) u16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *reader) u32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) color() Color {
	p := r.take(3)
	if p == nil {
		return 0
	}
	return RGB(p[0], p[1], p[2])
}

func (r *reader) remaining() int {
	return len(r.b) - r.pos
}

// Decode parses one binary server frame.
func Decode(frame []byte) (Message, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	op := Opcode(frame[0])
	r := &reader{b: frame, pos: 1}

	var msg Message
	switch op {
	case OpSetID:
		if r.remaining() != 4 {
			return nil, fmt.Errorf("%w: set_id has %d bytes", ErrInvalidLength, r.remaining())
		}
		msg = SetID{ID: r.u32()}
	case OpWorldUpdate:
		msg = decodeWorldUpdate(r)
	case OpChunkLoad:
		x, y := r.i32(), r.i32()
		msg = ChunkLoad{X: x, Y: y, Payload: r.take(r.remaining())}
	case OpTeleport:
		x, y := r.i32(), r.i32()
		msg = Teleport{X: x, Y: y}
	case OpSetRank:
		msg = SetRank{Rank: r.u8()}
	case OpCaptcha:
		msg = CaptchaState{State: r.u8()}
	case OpSetQuota:
		rate, per := r.u16(), r.u16()
		msg = SetQuota{Rate: rate, Per: per}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, op)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", op, r.err)
	}
	return msg, nil
}

func decodeWorldUpdate(r *reader) WorldUpdate {
	var m WorldUpdate
	n := int(r.u8())
	for i := 0; i < n && r.err == nil; i++ {
		p := PlayerUpdate{ID: r.u32(), X: r.i32(), Y: r.i32(), Color: r.color(), Tool: r.u8()}
		m.Players = append(m.Players, p)
	}
	n = int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		p := PixelUpdate{ID: r.u32(), X: r.i32(), Y: r.i32(), Color: r.color()}
		m.Pixels = append(m.Pixels, p)
	}
	return m
}
