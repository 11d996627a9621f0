package proto

import (
	"bytes"
	"encoding/binary"
)

// EncodeJoinWorld encodes the world name as latin-1 followed by the verification word.
func EncodeJoinWorld(name string) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, r := range name {
		if r > 0xFF {
			return nil, ErrWorldName
		}
		buf.WriteByte(byte(r))
	}
	binary.Write(buf, binary.LittleEndian, uint16(WorldVerification))
	return buf.Bytes(), nil
}

func EncodeUpdatePlayer(m UpdatePlayer) []byte {
	buf := new(bytes.Buffer)
	r, g, b := m.Color.RGB()
	binary.Write(buf, binary.LittleEndian, [...]int32{
		int32(m.X*SubPixel + m.JitterX&(SubPixel-1)),
		int32(m.Y*SubPixel + m.JitterY&(SubPixel-1)),
	})
	buf.Write([]byte{r, g, b, m.Tool})
	return buf.Bytes()
}

func EncodeSetPixel(m SetPixel) []byte {
	buf := new(bytes.Buffer)
	r, g, b := m.Color.RGB()
	binary.Write(buf, binary.LittleEndian, [...]int32{int32(m.X), int32(m.Y)})
	buf.Write([]byte{r, g, b})
	return buf.Bytes()
}

// EncodeChunkRequest takes coordinates in chunk units.
func EncodeChunkRequest(cx, cy int) []byte {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint32(value[0:4], uint32(int32(cx)))
	binary.LittleEndian.PutUint32(value[4:8], uint32(int32(cy)))
	return value
}

func EncodeRankVerification(rank uint8) []byte {
	return []byte{rank}
}
