package proto

import (
	"bytes"
	"encoding/binary"
)

// Compressed chunk layout:
//
//	u8  locked
//	u16 original length (ignored)
//	u16 n
//	u16 marker[n]  offsets relative to the start of the pixel data
//	pixel data     literal rgb triples; at a marker offset, u16 count + one rgb triple
const chunkHeaderLen = 5

// DecompressChunk expands a chunk payload into size*size colors in row-major order.
func DecompressChunk(payload []byte, size int) (bool, []Color, error) {
	r := &reader{b: payload}
	locked := r.u8() != 0
	r.u16() // original length
	n := int(r.u16())
	if r.err != nil {
		return false, nil, r.err
	}

	base := chunkHeaderLen + 2*n
	markers := make([]int, n)
	for i := range markers {
		markers[i] = int(r.u16()) + base
	}

	total := size * size
	pix := make([]Color, 0, total)
	emit := func(c Color) bool {
		if len(pix) == total {
			r.err = ErrChunkOverflow
			return false
		}
		pix = append(pix, c)
		return true
	}

	for _, m := range markers {
		for r.err == nil && r.pos < m {
			c := r.color()
			if r.err == nil {
				emit(c)
			}
		}
		count := int(r.u16())
		c := r.color()
		if r.err != nil {
			break
		}
		// A run always emits at least once, even for a zero count.
		for {
			if !emit(c) {
				break
			}
			count--
			if count <= 0 {
				break
			}
		}
	}
	for r.err == nil && len(pix) < total {
		c := r.color()
		if r.err == nil {
			pix = append(pix, c)
		}
	}
	if r.err != nil {
		return false, nil, r.err
	}
	return locked, pix, nil
}

// CompressChunk is the inverse of DecompressChunk. Runs of two or more equal
// colors become repeat markers while their offset still fits in 16 bits.
func CompressChunk(locked bool, pix []Color) []byte {
	data := new(bytes.Buffer)
	var markers []uint16
	for i := 0; i < len(pix); {
		j := i + 1
		for j < len(pix) && pix[j] == pix[i] && j-i < 0xFFFF {
			j++
		}
		r, g, b := pix[i].RGB()
		if j-i >= 2 && data.Len() <= 0xFFFF {
			markers = append(markers, uint16(data.Len()))
			binary.Write(data, binary.LittleEndian, uint16(j-i))
			data.Write([]byte{r, g, b})
			i = j
			continue
		}
		data.Write([]byte{r, g, b})
		i++
	}

	buf := new(bytes.Buffer)
	if locked {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	binary.Write(buf, binary.LittleEndian, uint16(len(pix)*3))
	binary.Write(buf, binary.LittleEndian, uint16(len(markers)))
	binary.Write(buf, binary.LittleEndian, markers)
	buf.Write(data.Bytes())
	return buf.Bytes()
}
