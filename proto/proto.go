package proto

import "errors"

const (
	// WorldVerification trails the world name in a join request.
	WorldVerification = 25565

	// ChunkSize is the edge length of the protocol's leaf raster.
	ChunkSize = 16

	// SubPixel is the number of player position units per world pixel.
	SubPixel = 16
)

var (
	ErrTruncated     = errors.New("proto: truncated frame")
	ErrInvalidLength = errors.New("proto: invalid frame length")
	ErrUnknownOpcode = errors.New("proto: unknown opcode")
	ErrEmptyFrame    = errors.New("proto: empty frame")
	ErrChunkOverflow = errors.New("proto: chunk data overflows raster")
	ErrWorldName     = errors.New("proto: world name is not latin-1")
)

type Opcode uint8

const (
	OpSetID Opcode = iota
	OpWorldUpdate
	OpChunkLoad
	OpTeleport
	OpSetRank
	OpCaptcha
	OpSetQuota
)

func (op Opcode) String() string {
	switch op {
	case OpSetID:
		return "set_id"
	case OpWorldUpdate:
		return "world_update"
	case OpChunkLoad:
		return "chunk_load"
	case OpTeleport:
		return "teleport"
	case OpSetRank:
		return "set_rank"
	case OpCaptcha:
		return "captcha"
	case OpSetQuota:
		return "set_quota"
	}
	return "unknown"
}

// Color is a packed 0xRRGGBB value.
type Color uint32

func RGB(r, g, b uint8) Color {
	return Color(r)<<16 | Color(g)<<8 | Color(b)
}

func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Message is one decoded server frame. The set of implementations is closed.
type Message interface {
	Opcode() Opcode
	message()
}

type SetID struct {
	ID uint32
}

type PlayerUpdate struct {
	ID    uint32
	X, Y  int32 // sub-pixel
	Color Color
	Tool  uint8
}

type PixelUpdate struct {
	ID    uint32
	X, Y  int32
	Color Color
}

type WorldUpdate struct {
	Players []PlayerUpdate
	Pixels  []PixelUpdate
}

// ChunkLoad carries a compressed chunk. X and Y are in chunk units.
type ChunkLoad struct {
	X, Y    int32
	Payload []byte
}

type Teleport struct {
	X, Y int32
}

type SetRank struct {
	Rank uint8
}

type CaptchaState struct {
	State uint8
}

type SetQuota struct {
	Rate uint16
	Per  uint16 // seconds
}

func (SetID) Opcode() Opcode        { return OpSetID }
func (WorldUpdate) Opcode() Opcode  { return OpWorldUpdate }
func (ChunkLoad) Opcode() Opcode    { return OpChunkLoad }
func (Teleport) Opcode() Opcode     { return OpTeleport }
func (SetRank) Opcode() Opcode      { return OpSetRank }
func (CaptchaState) Opcode() Opcode { return OpCaptcha }
func (SetQuota) Opcode() Opcode     { return OpSetQuota }

func (SetID) message()        {}
func (WorldUpdate) message()  {}
func (ChunkLoad) message()    {}
func (Teleport) message()     {}
func (SetRank) message()      {}
func (CaptchaState) message() {}
func (SetQuota) message()     {}

// outbound

type UpdatePlayer struct {
	X, Y             int // world pixels
	JitterX, JitterY int // sub-pixel offset, masked to [0, SubPixel)
	Color            Color
	Tool             uint8
}

type SetPixel struct {
	X, Y  int
	Color Color
}
